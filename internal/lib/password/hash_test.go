package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGetHash(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "regular password", password: "password123"},
		{name: "password with special chars", password: "p@ssw0rd!@#$%^&*()"},
		{name: "cyrillic password", password: "пароль-ученика"},
		{name: "too long password", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetHash(tt.password)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTooLong)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, got)
			assert.NoError(t, CompareHash(got, tt.password))
		})
	}
}

func TestCompareHash_Mismatch(t *testing.T) {
	hash, err := GetHash("correct-horse")
	require.NoError(t, err)

	err = CompareHash(hash, "battery-staple")
	require.Error(t, err)
	assert.ErrorIs(t, err, bcrypt.ErrMismatchedHashAndPassword)
}

func TestGetHash_SaltedEachTime(t *testing.T) {
	h1, err := GetHash("same-password")
	require.NoError(t, err)
	h2, err := GetHash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
