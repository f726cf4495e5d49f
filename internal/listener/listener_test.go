package listener

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kblayout/internal/dispatch"
	"github.com/dshills/kblayout/internal/notify"
	"github.com/dshills/kblayout/internal/platform"
)

type eventObserver struct {
	delivered atomic.Int32
	dropped   atomic.Int32
}

func (o *eventObserver) PlatformEvent(delivered bool) {
	if delivered {
		o.delivered.Add(1)
	} else {
		o.dropped.Add(1)
	}
}

// failingUnsubscribe wraps a source whose subscriptions cannot be released.
type failingUnsubscribe struct {
	platform.Source
}

func (f failingUnsubscribe) Subscribe(onEvent func()) (platform.Subscription, error) {
	if _, err := f.Source.Subscribe(onEvent); err != nil {
		return nil, err
	}
	return platform.SubscriptionFunc(func() error {
		return errors.New("bus gone")
	}), nil
}

func TestListener_RegistrationSubscribesOnce(t *testing.T) {
	loop := dispatch.NewLoop()
	src := platform.NewManualSource()
	state := notify.NewState(loop)
	l := New(src, state)

	assert.False(t, l.IsSubscribed())

	require.NoError(t, state.RegisterCallback(func() {}))
	require.NoError(t, state.RegisterCallback(func() {}))
	require.NoError(t, l.Subscribe())

	assert.True(t, l.IsSubscribed())
	assert.Equal(t, int64(1), src.SubscribeCalls())
	assert.Equal(t, 1, src.Subscribers())
}

func TestListener_EventInvokesCurrentCallback(t *testing.T) {
	loop := dispatch.NewLoop()
	src := platform.NewManualSource()
	state := notify.NewState(loop)
	obs := &eventObserver{}
	l := New(src, state, WithObserver(obs))

	var calls atomic.Int32
	require.NoError(t, state.RegisterCallback(func() { calls.Add(1) }))

	src.Fire()
	src.Fire()
	assert.Equal(t, 2, loop.RunPending())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(2), l.EventCount())
	assert.Equal(t, int32(2), obs.delivered.Load())
}

func TestListener_SubscriptionFailureThenRetry(t *testing.T) {
	loop := dispatch.NewLoop()
	src := platform.NewManualSource()
	state := notify.NewState(loop)
	l := New(src, state)

	boom := errors.New("no layout source")
	src.FailWith(boom)

	var calls atomic.Int32
	err := state.RegisterCallback(func() { calls.Add(1) })
	require.Error(t, err)
	assert.ErrorIs(t, err, notify.ErrSubscriptionFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.IsSubscribed())

	// The callback is stored; no event arrives until a retry succeeds.
	assert.NotNil(t, state.Current())
	src.Fire()
	assert.Equal(t, 0, loop.RunPending())

	src.FailWith(nil)
	require.NoError(t, state.RegisterCallback(func() { calls.Add(1) }))
	assert.True(t, l.IsSubscribed())

	src.Fire()
	loop.RunPending()
	assert.Equal(t, int32(1), calls.Load())
}

func TestListener_DropsEventsAfterStateReleased(t *testing.T) {
	src := platform.NewManualSource()
	obs := &eventObserver{}

	l := func() *Listener {
		state := notify.NewState(dispatch.NewLoop())
		l := New(src, state, WithObserver(obs))
		require.NoError(t, l.Subscribe())
		return l
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		src.Fire()
		return obs.dropped.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, l.IsSubscribed())
}

func TestListener_EventsAfterTeardownAreIgnored(t *testing.T) {
	loop := dispatch.NewLoop()
	src := platform.NewManualSource()
	state := notify.NewState(loop)
	l := New(src, state)

	var calls atomic.Int32
	require.NoError(t, state.RegisterCallback(func() { calls.Add(1) }))

	src.Fire()
	state.Teardown()
	src.Fire()
	loop.RunPending()

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(2), l.EventCount())
}

func TestListener_Close(t *testing.T) {
	src := platform.NewManualSource()
	state := notify.NewState(dispatch.NewLoop())
	l := New(src, state)

	require.NoError(t, l.Subscribe())
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.False(t, l.IsSubscribed())
	assert.Equal(t, 0, src.Subscribers())
	assert.ErrorIs(t, l.Subscribe(), ErrClosed)
}

func TestListener_CloseIgnoresUnsubscribeFailure(t *testing.T) {
	src := failingUnsubscribe{platform.NewManualSource()}
	state := notify.NewState(dispatch.NewLoop())
	l := New(src, state)

	require.NoError(t, l.Subscribe())
	assert.NoError(t, l.Close())
	assert.False(t, l.IsSubscribed())
}

func TestListener_ConcurrentSubscribe(t *testing.T) {
	src := platform.NewManualSource()
	state := notify.NewState(dispatch.NewLoop())
	l := New(src, state)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Subscribe())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), src.SubscribeCalls())
}
