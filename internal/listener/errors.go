package listener

import "errors"

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("listener: closed")
