package jwt

import (
	"testing"
	"time"

	"github.com/justinMonserrat/plop/internal/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)

	token, err := manager.GenerateAccessToken(entity.Profile{
		Id:       "user-1",
		Email:    "alice@example.com",
		Username: "alice",
	})
	require.NoError(t, err)

	claims, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserId)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, time.Hour)

	token, err := manager.GenerateAccessToken(entity.Profile{Id: "user-1"})
	require.NoError(t, err)

	_, err = manager.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenSignedWithDifferentSecretRejected(t *testing.T) {
	manager := NewJWTManager("secret-a", 15*time.Minute, time.Hour)
	other := NewJWTManager("secret-b", 15*time.Minute, time.Hour)

	token, err := manager.GenerateAccessToken(entity.Profile{Id: "user-1"})
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromAnotherIssuerRejected(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, time.Hour)

	// Same key, foreign issuer.
	claims := Claims{
		UserId: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = manager.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, time.Hour)

	a, err := manager.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := manager.GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
