package notify

import (
	"errors"
	"fmt"
)

// Errors for notification state operations.
var (
	// ErrInvalidCallback is returned when registering a nil callback.
	ErrInvalidCallback = errors.New("invalid callback: expected a function")

	// ErrTornDown is returned when registering on a torn-down state.
	ErrTornDown = errors.New("notification state has been torn down")

	// ErrSubscriptionFailed matches every *SubscriptionError.
	ErrSubscriptionFailed = errors.New("layout change subscription failed")
)

// SubscriptionError reports that the callback was stored but the platform
// subscription could not be established. Registering again retries it.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	if e.Err == nil {
		return ErrSubscriptionFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSubscriptionFailed, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is so callers can match ErrSubscriptionFailed.
func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscriptionFailed
}
