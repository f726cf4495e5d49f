package platform

import "errors"

// Errors for platform sources.
var (
	// ErrNilHandler is returned when subscribing a nil callback.
	ErrNilHandler = errors.New("platform: event handler is nil")

	// ErrNoWatchablePaths is returned when none of the configured paths
	// can be watched.
	ErrNoWatchablePaths = errors.New("platform: no watchable layout configuration paths")
)
