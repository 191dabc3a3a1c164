package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/models"
)

func TestTokenPairRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")

	access, refresh, expiresIn, err := svc.GenerateTokenPair("user-1", "alice@example.com", models.RoleAdmin)
	require.NoError(t, err)
	assert.Greater(t, expiresIn, int64(0))

	claims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "access", claims.Type)

	refreshClaims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refreshClaims.Type)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	access, _, _, err := NewJWTService("secret-a").GenerateTokenPair("user-1", "a@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").ValidateToken(access)
	assert.Error(t, err)
}

func TestValidateRefreshTokenRejectsAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret")
	access, _, _, err := svc.GenerateTokenPair("user-1", "a@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)
}
