package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink-backend/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, "auth-service", time.Hour)

	token, err := tm.GenerateAccessToken(42, "donor@example.com", domain.RoleHospital)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int32(42), claims.UserID)
	assert.Equal(t, domain.RoleHospital, claims.Role)
	assert.Equal(t, domain.Principal{UserID: 42, Email: "donor@example.com", Role: domain.RoleHospital}, claims.Principal())
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager(testSecret, "auth-service", time.Hour)

	t.Run("Expired", func(t *testing.T) {
		expired := NewTokenManager(testSecret, "auth-service", time.Millisecond)
		token, err := expired.GenerateAccessToken(1, "", domain.RoleDonor)
		require.NoError(t, err)
		time.Sleep(1100 * time.Millisecond)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewTokenManager("ffffffffffffffffffffffffffffffff", "auth-service", time.Hour)
		token, err := other.GenerateAccessToken(1, "", domain.RoleDonor)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else", time.Hour)
		token, err := other.GenerateAccessToken(1, "", domain.RoleDonor)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongType", func(t *testing.T) {
		claims := UserClaims{
			UserID: 1,
			Type:   "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "auth-service",
				Audience:  jwt.ClaimStrings{accessAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
