package linkcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		code, err := New()
		require.NoError(t, err)
		assert.Len(t, code, Length)
		assert.True(t, Valid(code), code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{name: "valid", code: "ABCD2345", want: true},
		{name: "too short", code: "ABC234", want: false},
		{name: "lowercase", code: "abcd2345", want: false},
		{name: "ambiguous zero", code: "ABCD0345", want: false},
		{name: "ambiguous letter O", code: "OBCD2345", want: false},
		{name: "empty", code: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.code))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABCD2345", Normalize("  abcd2345 "))
}

func TestAdmissionNumber(t *testing.T) {
	assert.Equal(t, "GHS-2025-0001", AdmissionNumber("ghs", 2025, 1))
	assert.Equal(t, "GHS-2025-0120", AdmissionNumber("GHS", 2025, 120))
	assert.Equal(t, "GHS-2025-12345", AdmissionNumber("GHS", 2025, 12345))
}

func TestOrgCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "three words", in: "Green Hill School", want: "GHS"},
		{name: "single word", in: "Lyceum", want: "LYC"},
		{name: "long name trimmed", in: "A B C D E F G H", want: "ABCDEF"},
		{name: "two words", in: "Oak Academy", want: "OAK"},
		{name: "no latin letters", in: "Школа", want: "XXX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrgCode(tt.in))
		})
	}
}
