package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linfan/backend/internal/apperr"
)

func sign(t *testing.T, method jwt.SigningMethod, secret string, c claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTResolverVerifiesSignature(t *testing.T) {
	r := NewJWTResolver("s3cret")
	ctx := context.Background()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Email:            "a@example.com",
	}

	id, err := r.Resolve(ctx, sign(t, jwt.SigningMethodHS256, "s3cret", c))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.ExternalID)
	assert.Equal(t, "a@example.com", id.Email)

	_, err = r.Resolve(ctx, sign(t, jwt.SigningMethodHS256, "other", c))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = r.Resolve(ctx, sign(t, jwt.SigningMethodHS512, "s3cret", c))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	expired := c
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = r.Resolve(ctx, sign(t, jwt.SigningMethodHS256, "s3cret", expired))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = r.Resolve(ctx, "not-a-token")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestJWTResolverWithoutSecretOnlyDecodes(t *testing.T) {
	r := NewJWTResolver("")
	ctx := context.Background()

	id, err := r.Resolve(ctx, sign(t, jwt.SigningMethodHS256, "whatever", claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-2"}}))
	require.NoError(t, err)
	assert.Equal(t, "uid-2", id.ExternalID)

	_, err = r.Resolve(ctx, sign(t, jwt.SigningMethodHS256, "whatever", claims{Email: "x@example.com"}))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
