package callback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/kblayout/internal/logging"
)

// Dispatcher runs fn on the consumer's execution context.
//
// Dispatch may block briefly waiting for a delivery slot but must return an
// error instead of blocking once the context has shut down.
type Dispatcher interface {
	Dispatch(fn func()) error
}

// Observer receives handle lifecycle notifications.
// Implementations must be safe for concurrent use.
type Observer interface {
	// Skipped is called when a request against a finalized handle is dropped.
	// stage is "invoke" when dropped at request time and "deliver" when
	// dropped on the consumer context.
	Skipped(stage string)
	// DispatchFailed is called when the dispatcher rejected a request.
	DispatchFailed(err error)
	// Delivered is called after the callback itself ran.
	Delivered(d time.Duration)
}

// Handle wraps one consumer callback.
//
// The zero value is not usable; create handles with New.
type Handle struct {
	id         string
	fn         func()
	dispatcher Dispatcher

	live atomic.Bool
	refs atomic.Int32

	finalizeOnce sync.Once
	onFinalize   func()

	observer Observer
	logger   *logging.Logger
}

// Option configures a Handle.
type Option func(*Handle)

// WithFinalizer sets a hook that runs once, on the first Finalize.
func WithFinalizer(fn func()) Option {
	return func(h *Handle) {
		h.onFinalize = fn
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(h *Handle) {
		h.observer = o
	}
}

// WithLogger sets the logger used for absorbed failures.
func WithLogger(l *logging.Logger) Option {
	return func(h *Handle) {
		h.logger = l
	}
}

// New creates a live handle with a reference count of 1.
// The caller becomes the handle's sole strong owner.
func New(fn func(), d Dispatcher, opts ...Option) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if d == nil {
		return nil, ErrNilDispatcher
	}

	h := &Handle{
		id:         uuid.NewString(),
		fn:         fn,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.live.Store(true)
	h.refs.Store(1)
	return h, nil
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id
}

// IsLive reports whether invocations still run the callback.
func (h *Handle) IsLive() bool {
	return h.live.Load()
}

// Refs returns the current strong reference count.
func (h *Handle) Refs() int32 {
	return h.refs.Load()
}

// Invoke requests that the callback run on the consumer's execution context
// with no arguments. It is a no-op on a finalized handle. Failures to
// dispatch are absorbed: a closed context simply means the consumer no
// longer receives notifications.
func (h *Handle) Invoke() {
	if h == nil {
		return
	}
	if !h.live.Load() {
		h.skipped("invoke")
		return
	}

	err := h.dispatcher.Dispatch(h.deliver)
	if err != nil {
		if h.observer != nil {
			h.observer.DispatchFailed(err)
		}
		h.logger.Debug("dispatch for handle %s dropped: %v", h.id, err)
	}
}

// deliver runs on the consumer's execution context.
// Liveness must be read here, not when the request was queued.
func (h *Handle) deliver() {
	if !h.live.Load() {
		h.skipped("deliver")
		return
	}
	start := time.Now()
	h.fn()
	if h.observer != nil {
		h.observer.Delivered(time.Since(start))
	}
}

func (h *Handle) skipped(stage string) {
	if h.observer != nil {
		h.observer.Skipped(stage)
	}
}

// Finalize clears the liveness flag. Only the first call has any effect.
func (h *Handle) Finalize() {
	if h == nil {
		return
	}
	h.finalizeOnce.Do(func() {
		h.live.Store(false)
		if h.onFinalize != nil {
			h.onFinalize()
		}
	})
}

// Acquire takes an additional strong reference.
// It returns false, without taking a reference, if the handle is finalized.
func (h *Handle) Acquire() bool {
	for {
		if !h.live.Load() {
			return false
		}
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a strong reference. Dropping the last reference finalizes
// the handle.
func (h *Handle) Release() {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return
		}
		if h.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				h.Finalize()
			}
			return
		}
	}
}
