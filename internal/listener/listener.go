package listener

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dshills/kblayout/internal/logging"
	"github.com/dshills/kblayout/internal/notify"
	"github.com/dshills/kblayout/internal/platform"
)

// Observer receives platform event statistics.
type Observer interface {
	// PlatformEvent is called for every event received from the source.
	// delivered is false when the state was already gone.
	PlatformEvent(delivered bool)
}

// Listener is the layout change listener of one runtime instance.
type Listener struct {
	source platform.Source
	state  weak.Pointer[notify.State]

	mu     sync.Mutex
	sub    platform.Subscription
	closed bool

	events   atomic.Int64
	observer Observer
	logger   *logging.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(l *Listener) {
		l.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Listener) {
		l.logger = lg
	}
}

// New creates a listener for state and attaches it as the state's
// subscriber. No subscription is made until Subscribe is called, which
// the state does on its first registration.
func New(src platform.Source, state *notify.State, opts ...Option) *Listener {
	l := &Listener{
		source: src,
		state:  weak.Make(state),
	}
	for _, opt := range opts {
		opt(l)
	}
	state.SetSubscriber(l)
	return l
}

// Subscribe subscribes to the platform source. Calling it while already
// subscribed does nothing. A failed attempt leaves the listener
// unsubscribed, so a later call retries.
func (l *Listener) Subscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return nil
	}
	if l.closed {
		return ErrClosed
	}

	sub, err := l.source.Subscribe(l.handleEvent)
	if err != nil {
		return err
	}
	l.sub = sub
	l.logger.Debug("subscribed to layout changes")
	return nil
}

// handleEvent runs on a source-owned goroutine.
func (l *Listener) handleEvent() {
	l.events.Add(1)

	s := l.state.Value()
	if s == nil {
		l.observe(false)
		return
	}
	l.observe(true)
	s.Notify()
}

func (l *Listener) observe(delivered bool) {
	if l.observer != nil {
		l.observer.PlatformEvent(delivered)
	}
}

// Close releases the platform subscription. Unsubscribe errors are logged
// and otherwise ignored. Close is idempotent.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.sub == nil {
		return nil
	}
	if err := l.sub.Unsubscribe(); err != nil {
		l.logger.Warn("layout change unsubscribe failed: %v", err)
	}
	l.sub = nil
	return nil
}

// IsSubscribed returns true while a platform subscription is held.
func (l *Listener) IsSubscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

// EventCount returns how many platform events have been received.
func (l *Listener) EventCount() int64 {
	return l.events.Load()
}
