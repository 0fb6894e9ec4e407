package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const testSecret = "test_secret_key_1234567890"

func TestJWTMaker_GenerateAndParseToken_ValidCases(t *testing.T) {
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(testSecret, tokenTTL)

	tests := []struct {
		name     string
		identity models.Identity
	}{
		{
			name:     "super admin without tenant",
			identity: models.Identity{UserID: "u-1", Email: "root@schoolhub.io", Role: models.RoleSuperAdmin},
		},
		{
			name:     "school admin with tenant",
			identity: models.Identity{UserID: "u-2", Email: "head@school.edu", Role: models.RoleSchoolAdmin, TenantID: "org-1"},
		},
		{
			name:     "student of a school",
			identity: models.Identity{UserID: "u-3", Email: "kid@school.edu", Role: models.RoleStudent, TenantID: "org-1"},
		},
		{
			name:     "parent",
			identity: models.Identity{UserID: "u-4", Email: "mom@mail.com", Role: models.RoleParent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.identity)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.identity, claims.Identity())
			assert.Equal(t, tt.identity.UserID, claims.Subject)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)
	identity := models.Identity{UserID: "u-1", Email: "user@mail.com", Role: models.RoleStudent}

	validToken, err := maker.GenerateToken(identity)
	require.NoError(t, err)

	expired, err := NewJWTMaker(testSecret, -time.Hour).GenerateToken(identity)
	require.NoError(t, err)

	wrongSecret, err := NewJWTMaker("wrong_secret_key", 15*time.Minute).GenerateToken(identity)
	require.NoError(t, err)

	noUser, err := maker.GenerateToken(models.Identity{Email: "anon@mail.com"})
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{UserID: "u-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "invalid.token.here"},
		{name: "expired token", token: expired},
		{name: "wrong secret key", token: wrongSecret},
		{name: "tampered token", token: validToken + "tampered"},
		{name: "token without user id", token: noUser},
		{name: "unsigned token", token: noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_TokenExpiration(t *testing.T) {
	// exp хранится с точностью до секунды
	maker := NewJWTMaker(testSecret, 2*time.Second)

	token, err := maker.GenerateToken(models.Identity{UserID: "u-1", Role: models.RoleStudent})
	require.NoError(t, err)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)

	time.Sleep(3100 * time.Millisecond)

	_, err = maker.ParseToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}
