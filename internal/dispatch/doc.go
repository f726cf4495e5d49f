// Package dispatch moves work from arbitrary goroutines onto a single
// consumer goroutine.
//
// Loop is a plain channel-backed event loop. The goroutine that calls Run is
// the consumer's execution context: every function passed to Dispatch runs
// there, one at a time, in the order the requests were accepted.
//
//	loop := dispatch.NewLoop(dispatch.WithQueueSize(64))
//	go producer(loop) // calls loop.Dispatch(fn) from its own goroutine
//	err := loop.Run(ctx)
//
// ScreenLoop offers the same contract on top of a tcell screen's event queue
// so terminal UIs keep a single event loop.
//
// Shutdown never waits on producers. Once Close is called, or the context
// given to Run is cancelled, Dispatch fails fast with ErrLoopClosed and
// requests still queued are dropped.
package dispatch
