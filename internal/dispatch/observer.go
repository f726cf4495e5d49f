package dispatch

import "time"

// Drop reasons reported to Observer.Dropped.
const (
	DropClosed  = "closed"
	DropTimeout = "timeout"
	DropPending = "pending_at_shutdown"
	DropPanic   = "panic"
)

// Observer receives loop statistics.
// Implementations must be safe for concurrent use.
type Observer interface {
	Enqueued()
	// Executed is called after a request ran to completion.
	Executed(d time.Duration)
	Dropped(reason string)
}

type nopObserver struct{}

func (nopObserver) Enqueued()              {}
func (nopObserver) Executed(time.Duration) {}
func (nopObserver) Dropped(string)         {}
