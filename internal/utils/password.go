package utils

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Password policy violations. ValidatePassword returns the first rule
// that fails so handlers can surface a single actionable message.
var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordUpper    = errors.New("password must contain an uppercase letter")
	ErrPasswordLower    = errors.New("password must contain a lowercase letter")
	ErrPasswordDigit    = errors.New("password must contain a digit")
	ErrPasswordSpecial  = errors.New("password must contain a special character")
)

// ValidatePassword enforces the account password policy: minimum 8
// characters with at least one uppercase letter, one lowercase letter,
// one digit and one special character.
func ValidatePassword(plain string) error {
	if len(plain) < 8 {
		return ErrPasswordTooShort
	}
	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordUpper
	case !lower:
		return ErrPasswordLower
	case !digit:
		return ErrPasswordDigit
	case !special:
		return ErrPasswordSpecial
	}
	return nil
}
