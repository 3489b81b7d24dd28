package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		want     error
	}{
		{"accepts strong password", "Str0ng!Pass", nil},
		{"too short", "S0r!t", ErrPasswordTooShort},
		{"missing uppercase", "weakpass1!", ErrPasswordUpper},
		{"missing lowercase", "WEAKPASS1!", ErrPasswordLower},
		{"missing digit", "Weakpass!!", ErrPasswordDigit},
		{"missing special", "Weakpass11", ErrPasswordSpecial},
		{"common weak password", "password1", ErrPasswordUpper},
		{"space counts as special", "Weak pass1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng!Pass", hash)

	assert.True(t, VerifyPassword(hash, "Str0ng!Pass"))
	assert.False(t, VerifyPassword(hash, "Str0ng!Pass "))
	assert.False(t, VerifyPassword(hash, ""))
}
