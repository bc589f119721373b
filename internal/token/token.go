// Package token issues and verifies the stateless bearer tokens handed out
// at login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AndyMelnik/iot-query-probe-v2/internal/util"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or
	// signed with another secret.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret is returned by NewIssuer for an empty secret.
	ErrEmptySecret = errors.New("token secret must not be empty")
)

// Claims are the JWT claims carried by a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Issuer signs and verifies HS256 tokens with a shared secret. The secret
// is kept in a memguard enclave and only decrypted for each operation.
type Issuer struct {
	secret *memguard.Enclave
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. The caller's secret slice is not modified.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	i := &Issuer{
		// NewEnclave wipes its argument.
		secret: memguard.NewEnclave(util.CopyBytes(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL is the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the given identity.
func (i *Issuer) Issue(userID, email, role string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: userID,
		Email:  email,
		Role:   role,
	}

	key, err := i.secret.Open()
	if err != nil {
		return "", fmt.Errorf("opening token secret: %w", err)
	}
	defer key.Destroy()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Any failure is reported as ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	key, err := i.secret.Open()
	if err != nil {
		return nil, fmt.Errorf("opening token secret: %w", err)
	}
	defer key.Destroy()

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return key.Bytes(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
