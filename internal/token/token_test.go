package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	signed, err := issuer.Issue("u-1", "ops@example.com", "admin")
	require.NoError(t, err)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestNewIssuerKeepsCallerSecret(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	_, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, testSecret, secret)
}

func TestNewIssuerRejectsEmptySecret(t *testing.T) {
	_, err := NewIssuer(nil, time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(testSecret, time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	signed, err := issuer.Issue("u-1", "ops@example.com", "admin")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = issuer.Verify(signed)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejects(t *testing.T) {
	issuer, err := NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer([]byte("another-secret-another-secret-xx"), time.Hour)
	require.NoError(t, err)

	foreign, err := other.Issue("u-1", "ops@example.com", "admin")
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u-1"}).SignedString(testSecret)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":        "not-a-jwt",
		"other secret":   foreign,
		"missing expiry": noExp,
		"alg none":       noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
