package luahost

import "errors"

// Errors for Lua runtime operations.
var (
	// ErrRuntimeClosed is returned when operating on a closed runtime.
	ErrRuntimeClosed = errors.New("lua runtime is closed")

	// ErrNilKeyboard is returned when creating a runtime without a keyboard.
	ErrNilKeyboard = errors.New("lua runtime requires a keyboard")

	// ErrNilExecutor is returned when creating a runtime without an executor.
	ErrNilExecutor = errors.New("lua runtime requires an executor")
)
