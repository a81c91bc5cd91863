package password

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidInput is returned by Hash for an empty password.
	ErrInvalidInput = errors.New("invalid input: empty password")

	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")

	// ErrRandomSource means the secure random generator failed. Callers must abort.
	ErrRandomSource = errors.New("secure random source unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid password config")
)

// errMalformed never leaves the package: Verify maps it to false.
var errMalformed = errors.New("malformed password hash")
