package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates credentials against a shared secret. It holds no
// mutable state and is safe for concurrent use.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of the verifier that checks expiry against now.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify checks the token signature and expiry and returns the identity it
// asserts. Any failure yields ErrAuthFailure.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrAuthFailure
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrAuthFailure
	}

	identity := claims.identity()
	if identity == "" {
		return "", ErrAuthFailure
	}
	return identity, nil
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}
