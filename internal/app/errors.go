package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("instance already running")

	// ErrShutdown indicates the instance has been shut down.
	ErrShutdown = errors.New("instance has been shut down")

	// ErrNoLoop indicates an operation that needs the instance's own
	// consumer loop on an instance built with an external dispatcher.
	ErrNoLoop = errors.New("instance uses an external dispatcher")
)

// ComponentError represents an error from a specific component.
type ComponentError struct {
	Component string // Component name (e.g., "source", "lua", "metrics")
	Action    string // Action being performed
	Err       error  // Underlying error
}

func (e *ComponentError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
