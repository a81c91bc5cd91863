package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrRandomSource means the secure random generator failed. Callers must abort.
	ErrRandomSource = errors.New("secure random source unavailable")

	// ErrConfig is returned for invalid generator configuration.
	ErrConfig = errors.New("invalid token config")
)
