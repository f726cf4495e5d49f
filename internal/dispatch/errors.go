package dispatch

import "errors"

// Errors for dispatch operations.
var (
	// ErrLoopClosed is returned when dispatching to a closed loop.
	ErrLoopClosed = errors.New("dispatch loop is closed")

	// ErrLoopRunning is returned when Run is called on a running loop.
	ErrLoopRunning = errors.New("dispatch loop already running")

	// ErrDispatchTimeout is returned when no queue slot frees up in time.
	ErrDispatchTimeout = errors.New("dispatch timed out waiting for a queue slot")

	// ErrNilFunc is returned when dispatching a nil function.
	ErrNilFunc = errors.New("dispatch function is nil")
)
