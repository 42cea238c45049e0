// Package auth issues and verifies the signed, time-bounded credentials that
// clients present when opening a relay connection.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthFailure is returned for every verification failure. Malformed,
	// forged and expired tokens are deliberately indistinguishable.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrEmptyIdentity is returned when a token is requested for an empty identity.
	ErrEmptyIdentity = errors.New("identity required")
)

// Claims is the payload carried inside a relay credential.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// identity returns the username claim, falling back to the subject.
func (c *Claims) identity() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Issuer signs credentials for a fixed lifetime.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer that signs with secret and stamps every token
// with an expiry of ttl from the time of issue.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the issuer that reads the current time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// TTL reports the lifetime given to issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a credential asserting identity and returns it with its expiry.
func (i *Issuer) Issue(identity string) (string, time.Time, error) {
	if identity == "" {
		return "", time.Time{}, ErrEmptyIdentity
	}

	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)

	claims := &Claims{
		Username: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
