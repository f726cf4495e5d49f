package layout

import "errors"

// Errors returned by readers.
var (
	// ErrNotConfigured is returned when no readable configuration exists.
	ErrNotConfigured = errors.New("no keyboard layout configuration found")

	// ErrNoLayout is returned when a configuration names no layout.
	ErrNoLayout = errors.New("keyboard configuration has no layout")
)
