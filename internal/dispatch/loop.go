package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/kblayout/internal/logging"
)

// Defaults for Loop.
const (
	DefaultQueueSize   = 64
	DefaultPostTimeout = 250 * time.Millisecond
)

const tracerName = "github.com/dshills/kblayout/internal/dispatch"

// Loop serializes function calls onto the goroutine running Run.
type Loop struct {
	queue chan func()
	done  chan struct{}

	closed    atomic.Bool
	running   atomic.Bool
	closeOnce sync.Once

	postTimeout time.Duration
	observer    Observer
	logger      *logging.Logger
	tracer      trace.Tracer
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets how many requests can wait for the consumer.
func WithQueueSize(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.queue = make(chan func(), size)
		}
	}
}

// WithPostTimeout bounds how long Dispatch waits for a free slot.
// Zero makes Dispatch fail immediately when the queue is full.
func WithPostTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.postTimeout = d
		}
	}
}

// WithObserver sets the statistics observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Loop) {
		l.logger = lg
	}
}

// WithTracer sets the tracer used for delivery spans.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		if t != nil {
			l.tracer = t
		}
	}
}

// NewLoop creates a loop. It does nothing until Run is called.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		queue:       make(chan func(), DefaultQueueSize),
		done:        make(chan struct{}),
		postTimeout: DefaultPostTimeout,
		observer:    nopObserver{},
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes requests until ctx is cancelled or Close is called.
// The calling goroutine becomes the consumer's execution context.
// Requests still queued when Run returns are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	if l.closed.Load() {
		l.dropPending()
		return ErrLoopClosed
	}

	for {
		select {
		case <-ctx.Done():
			l.Close()
			l.dropPending()
			return ctx.Err()
		case <-l.done:
			l.dropPending()
			return nil
		case fn := <-l.queue:
			if l.closed.Load() {
				l.observer.Dropped(DropPending)
				continue
			}
			l.execute(ctx, fn)
		}
	}
}

// RunPending runs the requests already queued and returns how many ran.
// It must be called from the consumer's execution context; it is the entry
// point for hosts that drive their own loop.
func (l *Loop) RunPending() int {
	n := 0
	for {
		if l.closed.Load() {
			return n
		}
		select {
		case fn := <-l.queue:
			l.execute(context.Background(), fn)
			n++
		default:
			return n
		}
	}
}

// execute runs a single request with panic recovery.
func (l *Loop) execute(ctx context.Context, fn func()) {
	_, span := l.tracer.Start(ctx, "dispatch.deliver",
		trace.WithAttributes(attribute.Int("dispatch.queue_depth", len(l.queue))))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("dispatched function panicked: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			l.logger.Error("%v\n%s", err, debug.Stack())
			l.observer.Dropped(DropPanic)
		}
		span.End()
	}()

	fn()
	l.observer.Executed(time.Since(start))
}

// dropPending discards requests that will never run.
func (l *Loop) dropPending() {
	for {
		select {
		case <-l.queue:
			l.observer.Dropped(DropPending)
		default:
			return
		}
	}
}

// Dispatch queues fn to run on the consumer's execution context.
//
// When the queue is full Dispatch waits up to the post timeout for a slot.
// It never waits on a closed loop: Close unblocks every waiting producer.
func (l *Loop) Dispatch(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}
	if l.closed.Load() {
		l.observer.Dropped(DropClosed)
		return ErrLoopClosed
	}

	// Fast path.
	select {
	case <-l.done:
		l.observer.Dropped(DropClosed)
		return ErrLoopClosed
	case l.queue <- fn:
		return l.accepted()
	default:
	}

	if l.postTimeout <= 0 {
		l.observer.Dropped(DropTimeout)
		return ErrDispatchTimeout
	}

	timer := time.NewTimer(l.postTimeout)
	defer timer.Stop()

	select {
	case <-l.done:
		l.observer.Dropped(DropClosed)
		return ErrLoopClosed
	case l.queue <- fn:
		return l.accepted()
	case <-timer.C:
		l.observer.Dropped(DropTimeout)
		l.logger.Warn("dispatch queue full for %s, dropping request", l.postTimeout)
		return ErrDispatchTimeout
	}
}

// accepted records a successful send. A send can win against a concurrent
// Close after Run has already drained the queue; the queue is drained again
// so the request is counted as dropped rather than left behind.
func (l *Loop) accepted() error {
	l.observer.Enqueued()
	if l.closed.Load() {
		l.dropPending()
		return ErrLoopClosed
	}
	return nil
}

// DispatchWait runs fn on the consumer's execution context and waits for
// its result. It must not be called from the consumer's own goroutine.
func (l *Loop) DispatchWait(ctx context.Context, fn func() error) error {
	if fn == nil {
		return ErrNilFunc
	}

	result := make(chan error, 1)
	err := l.Dispatch(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("dispatched function panicked: %v", r)
			}
			result <- err
		}()
		err = fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The request may have run just before close.
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	case err := <-result:
		return err
	}
}

// Close stops the loop. Pending requests are dropped. Safe to call more
// than once and from any goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// IsClosed returns true if the loop has been closed.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}

// IsRunning returns true while Run is active.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Pending returns the number of queued requests.
func (l *Loop) Pending() int {
	return len(l.queue)
}
