package auth

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay-test-secret"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)

	issuer := NewIssuer(testSecret, 24*time.Hour)
	token, expiresAt, err := issuer.Issue("alice")
	req.NoError(err)
	req.NotEmpty(token)
	req.WithinDuration(time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	identity, err := NewVerifier(testSecret).Verify(token)
	req.NoError(err)
	req.Equal("alice", identity)
}

func TestIssueRejectsEmptyIdentity(t *testing.T) {
	_, _, err := NewIssuer(testSecret, time.Hour).Issue("")
	assert.ErrorIs(t, err, ErrEmptyIdentity)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := NewIssuer(testSecret, time.Hour).WithClock(fixedClock(issuedAt)).Issue("alice")
	require.NoError(t, err)

	verifier := NewVerifier(testSecret)

	_, err = verifier.WithClock(fixedClock(issuedAt.Add(59 * time.Minute))).Verify(token)
	assert.NoError(t, err)

	_, err = verifier.WithClock(fixedClock(issuedAt.Add(2 * time.Hour))).Verify(token)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	valid, _, err := NewIssuer(testSecret, time.Hour).Issue("alice")
	require.NoError(t, err)

	forged, _, err := NewIssuer("another-secret", time.Hour).Issue("mallory")
	require.NoError(t, err)

	expired, _, err := NewIssuer(testSecret, time.Hour).
		WithClock(fixedClock(time.Now().Add(-48 * time.Hour))).Issue("alice")
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "alice"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	noIdentity, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := map[string]string{
		"empty":       "",
		"garbage":     "not-a-token",
		"forged":      forged,
		"expired":     expired,
		"no expiry":   noExpiry,
		"no identity": noIdentity,
		"tampered":    tampered,
	}

	verifier := NewVerifier(testSecret)
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			identity, err := verifier.Verify(token)
			assert.Empty(t, identity)
			assert.Same(t, ErrAuthFailure, err)
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "client",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	identity, err := NewVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "client", identity)
}

func TestVerifyConcurrent(t *testing.T) {
	token, _, err := NewIssuer(testSecret, time.Hour).Issue("alice")
	require.NoError(t, err)

	verifier := NewVerifier(testSecret)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := verifier.Verify(token)
			assert.NoError(t, err)
			assert.Equal(t, "alice", identity)
		}()
	}
	wg.Wait()
}
