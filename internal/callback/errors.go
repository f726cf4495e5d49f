package callback

import "errors"

// Errors returned by New.
var (
	// ErrNilCallback is returned when no callback function is supplied.
	ErrNilCallback = errors.New("callback function is nil")

	// ErrNilDispatcher is returned when no dispatcher is supplied.
	ErrNilDispatcher = errors.New("callback dispatcher is nil")
)
