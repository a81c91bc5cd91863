package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")

	// ErrTokenCollision is returned when repeated token draws all hit live
	// sessions. With a healthy random source this does not happen.
	ErrTokenCollision = errors.New("session token collision")

	// ErrClosed is returned by Create after Shutdown.
	ErrClosed = errors.New("session store closed")
)
