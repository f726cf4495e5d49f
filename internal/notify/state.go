package notify

import (
	"sync"

	"github.com/dshills/kblayout/internal/callback"
	"github.com/dshills/kblayout/internal/logging"
)

// Subscriber establishes the platform subscription feeding this state.
// Subscribe must be idempotent.
type Subscriber interface {
	Subscribe() error
}

// Observer receives registration statistics.
type Observer interface {
	Registered()
	Finalized()
}

// State is the notification record of one runtime instance.
type State struct {
	mu         sync.Mutex
	current    *callback.Handle
	tornDown   bool
	subscriber Subscriber

	dispatcher callback.Dispatcher
	handleOpts []callback.Option
	observer   Observer
	logger     *logging.Logger
}

// Option configures a State.
type Option func(*State)

// WithHandleOptions sets options applied to every handle the state creates.
func WithHandleOptions(opts ...callback.Option) Option {
	return func(s *State) {
		s.handleOpts = append(s.handleOpts, opts...)
	}
}

// WithObserver sets the registration observer.
func WithObserver(o Observer) Option {
	return func(s *State) {
		s.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *State) {
		s.logger = l
	}
}

// NewState creates an empty state whose handles dispatch through d.
func NewState(d callback.Dispatcher, opts ...Option) *State {
	s := &State{dispatcher: d}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSubscriber attaches the subscriber triggered on registration.
func (s *State) SetSubscriber(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriber = sub
}

// RegisterCallback makes fn the state's only callback.
//
// Any previous handle is finalized before the new one is stored. After the
// handle is live the subscriber is asked to subscribe; if that fails the
// registration still stands and a *SubscriptionError is returned.
func (s *State) RegisterCallback(fn func()) error {
	if fn == nil {
		return ErrInvalidCallback
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return ErrTornDown
	}

	opts := append([]callback.Option{}, s.handleOpts...)
	opts = append(opts, callback.WithFinalizer(s.finalized))
	h, err := callback.New(fn, s.dispatcher, opts...)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	old := s.current
	if old != nil {
		retire(old)
	}
	s.current = h
	sub := s.subscriber
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.Registered()
	}
	if old != nil {
		s.logger.Debug("replaced callback %s with %s", old.ID(), h.ID())
	} else {
		s.logger.Debug("registered callback %s", h.ID())
	}

	if sub == nil {
		return nil
	}
	if err := sub.Subscribe(); err != nil {
		s.logger.Warn("layout change subscription failed: %v", err)
		return &SubscriptionError{Err: err}
	}
	return nil
}

// Unregister finalizes and clears the current callback.
// It returns false if no callback was registered.
func (s *State) Unregister() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	retire(s.current)
	s.current = nil
	return true
}

// Current returns the live handle, or nil.
func (s *State) Current() *callback.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Notify invokes the current handle, if any. It is safe to call from any
// goroutine at any time, including during and after Teardown.
func (s *State) Notify() {
	h := s.Current()
	if h == nil {
		return
	}
	// Hold a reference for the duration of the request.
	if h.Acquire() {
		defer h.Release()
	}
	h.Invoke()
}

// Teardown finalizes the current handle and marks the state unusable.
// Only the first call has any effect.
func (s *State) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown {
		return
	}
	s.tornDown = true
	if s.current != nil {
		retire(s.current)
		s.current = nil
	}
}

// IsTornDown returns true once Teardown has run.
func (s *State) IsTornDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tornDown
}

// retire finalizes h and drops the state's own reference to it.
// Producers still holding a reference keep the handle reachable but dead.
func retire(h *callback.Handle) {
	h.Finalize()
	h.Release()
}

// finalized runs once per handle, on its first Finalize.
func (s *State) finalized() {
	if s.observer != nil {
		s.observer.Finalized()
	}
}
