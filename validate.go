package authsentry

import (
	"regexp"
	"unicode"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	return emailPattern.MatchString(email)
}

// checkPasswordStrength enforces the new-password policy: configured minimum
// length plus at least one upper, lower, digit, and special character.
func (e *Engine) checkPasswordStrength(plaintext string) error {
	if len(plaintext) < e.config.Password.MinLength {
		return ErrWeakPassword.WithDetails("reason", "too_short")
	}

	var upper, lower, digit, special bool
	for _, r := range plaintext {
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
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword.WithDetails("reason", "character_classes")
	}
	return nil
}
