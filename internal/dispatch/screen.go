package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/kblayout/internal/logging"
)

// postRetryInterval is how often a full tcell queue is retried.
const postRetryInterval = 5 * time.Millisecond

// screenFunc is the payload of interrupts carrying dispatched work.
type screenFunc func()

// screenStop wakes PollEvent so Run can observe Close.
type screenStop struct{}

// ScreenLoop dispatches onto the goroutine polling a tcell screen.
//
// Dispatched functions travel through the screen's own event queue as
// interrupt events, so they interleave with key and resize events in
// arrival order and a UI never needs a second loop.
type ScreenLoop struct {
	screen tcell.Screen

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	postTimeout time.Duration
	observer    Observer
	logger      *logging.Logger
}

// NewScreenLoop creates a loop bound to an initialized screen.
// Queue size and tracer options do not apply; tcell owns the queue.
func NewScreenLoop(screen tcell.Screen, opts ...Option) *ScreenLoop {
	base := NewLoop(opts...)
	return &ScreenLoop{
		screen:      screen,
		done:        make(chan struct{}),
		postTimeout: base.postTimeout,
		observer:    base.observer,
		logger:      base.logger,
	}
}

// Dispatch posts fn to the screen's event queue.
func (s *ScreenLoop) Dispatch(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}

	deadline := time.Now().Add(s.postTimeout)
	ev := tcell.NewEventInterrupt(screenFunc(fn))
	for {
		if s.closed.Load() {
			s.observer.Dropped(DropClosed)
			return ErrLoopClosed
		}
		if err := s.screen.PostEvent(ev); err == nil {
			s.observer.Enqueued()
			return nil
		}
		if !time.Now().Before(deadline) {
			s.observer.Dropped(DropTimeout)
			return ErrDispatchTimeout
		}
		select {
		case <-s.done:
		case <-time.After(postRetryInterval):
		}
	}
}

// Run polls the screen until ctx is cancelled, Close is called, the screen
// is finalized, or handle returns false. Every non-dispatch event is passed
// to handle on the polling goroutine.
func (s *ScreenLoop) Run(ctx context.Context, handle func(ev tcell.Event) bool) error {
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			s.Close()
			return nil
		}

		intr, isInterrupt := ev.(*tcell.EventInterrupt)
		if s.closed.Load() {
			// Anything still queued after Close is abandoned.
			if isInterrupt {
				if _, ok := intr.Data().(screenFunc); ok {
					s.observer.Dropped(DropPending)
				}
			}
			return ctx.Err()
		}

		if isInterrupt {
			switch data := intr.Data().(type) {
			case screenStop:
				continue
			case screenFunc:
				s.execute(data)
				continue
			}
		}

		if handle != nil && !handle(ev) {
			s.Close()
			return nil
		}
	}
}

func (s *ScreenLoop) execute(fn screenFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("%v\n%s", fmt.Errorf("dispatched function panicked: %v", r), debug.Stack())
			s.observer.Dropped(DropPanic)
		}
	}()
	fn()
	s.observer.Executed(time.Since(start))
}

// Close stops the loop and wakes the polling goroutine.
// The screen itself is left for the caller to finalize.
func (s *ScreenLoop) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.screen.PostEvent(tcell.NewEventInterrupt(screenStop{}))
	})
}

// Done is closed when the loop is closed.
func (s *ScreenLoop) Done() <-chan struct{} {
	return s.done
}

// IsClosed returns true if the loop has been closed.
func (s *ScreenLoop) IsClosed() bool {
	return s.closed.Load()
}
