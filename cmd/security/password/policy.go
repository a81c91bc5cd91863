package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate gates a new credential before it is hashed and stored.
// It does not mutate input.
func (c Config) Validate(password string) error {
	// Count characters (runes), not bytes, to be user-friendly.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if !c.IsStrong(password) {
		return ErrWeakPassword
	}
	return nil
}

// IsStrong reports whether password has at least MinLength characters and
// contains an uppercase letter, a lowercase letter, a digit and a symbol from
// the policy's punctuation set.
func (c Config) IsStrong(password string) bool {
	minLen := c.Policy.MinLength
	if minLen < 8 {
		minLen = 8
	}
	if utf8.RuneCountInString(password) < minLen {
		return false
	}

	symbols := c.Policy.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(symbols, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// IsStrong applies DefaultConfig's rule set.
func IsStrong(password string) bool { return defaultConfig.IsStrong(password) }
