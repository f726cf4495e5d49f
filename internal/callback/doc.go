// Package callback provides Handle, a reference-counted wrapper around a
// single consumer callback that may be invoked from any goroutine.
//
// A Handle never runs its callback on the invoking goroutine. Invoke asks a
// Dispatcher to run it on the consumer's execution context, and the queued
// request re-checks the handle's liveness immediately before the callback
// runs. Finalize clears liveness, so every request still queued against a
// finalized handle becomes a no-op:
//
//	h, err := callback.New(func() { refreshLayout() }, loop)
//	if err != nil {
//	    return err
//	}
//
//	// From any goroutine:
//	h.Invoke()
//
//	// During shutdown:
//	h.Finalize()
//	h.Invoke() // no-op
package callback
