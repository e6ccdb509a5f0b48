package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", 60, 7, "ann@example.com", "admin")
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ann@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "7", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseTokenRejects(t *testing.T) {
	good, err := GenerateToken("secret", 60, 1, "a@b.c", "user")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseToken("other", good)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := GenerateToken("secret", -1, 1, "a@b.c", "user")
		require.NoError(t, err)
		_, err = ParseToken("secret", expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken("secret", "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		unsigned, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ParseToken("secret", unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
