package platform

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kblayout/internal/layout"
)

// scriptedReader returns whatever layout was last set.
type scriptedReader struct {
	mu    sync.Mutex
	info  layout.Info
	err   error
	reads int
}

func (r *scriptedReader) Read(ctx context.Context) (layout.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return r.info, r.err
}

func (r *scriptedReader) set(l string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = layout.Info{Layout: l}
}

func TestPollSource_FiresOnChangeOnly(t *testing.T) {
	r := &scriptedReader{info: layout.Info{Layout: "us"}}
	src := NewPollSource(r, WithInterval(5*time.Millisecond))
	defer src.Close()

	var events atomic.Int32
	_, err := src.Subscribe(func() { events.Add(1) })
	require.NoError(t, err)
	require.True(t, src.Polling())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), events.Load())

	r.set("de")
	assert.Eventually(t, func() bool { return events.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), events.Load())
}

func TestPollSource_InitialReadFailureFailsSubscribe(t *testing.T) {
	boom := errors.New("setxkbmap: not found")
	r := &scriptedReader{err: boom}
	src := NewPollSource(r)

	sub, err := src.Subscribe(func() {})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, sub)
	assert.False(t, src.Polling())
}

func TestPollSource_StopsWithLastSubscriber(t *testing.T) {
	r := &scriptedReader{info: layout.Info{Layout: "us"}}
	src := NewPollSource(r, WithInterval(time.Hour))

	a, err := src.Subscribe(func() {})
	require.NoError(t, err)
	b, err := src.Subscribe(func() {})
	require.NoError(t, err)

	require.NoError(t, a.Unsubscribe())
	assert.True(t, src.Polling())
	require.NoError(t, b.Unsubscribe())
	assert.False(t, src.Polling())

	// Only the first subscriber triggers the seed read.
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.reads)
}

func TestPollSource_NilHandler(t *testing.T) {
	_, err := NewPollSource(&scriptedReader{}).Subscribe(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

// hangingReader blocks until its context ends, like a query against a
// wedged X server.
func hangingReader(ctx context.Context) (layout.Info, error) {
	<-ctx.Done()
	return layout.Info{}, ctx.Err()
}

func TestPollSource_InitialReadTimesOut(t *testing.T) {
	src := NewPollSource(layout.ReaderFunc(hangingReader), WithReadTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := src.Subscribe(func() {})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe blocked on a hanging read")
	}
	assert.False(t, src.Polling())
}

func TestPollSource_RecoversFromHangingTick(t *testing.T) {
	var hang atomic.Bool
	var current atomic.Value
	current.Store("us")
	reader := layout.ReaderFunc(func(ctx context.Context) (layout.Info, error) {
		if hang.Load() {
			return hangingReader(ctx)
		}
		return layout.Info{Layout: current.Load().(string)}, nil
	})
	src := NewPollSource(reader, WithInterval(5*time.Millisecond), WithReadTimeout(10*time.Millisecond))
	defer src.Close()

	var events atomic.Int32
	_, err := src.Subscribe(func() { events.Add(1) })
	require.NoError(t, err)

	hang.Store(true)
	time.Sleep(30 * time.Millisecond)
	current.Store("de")
	hang.Store(false)

	assert.Eventually(t, func() bool { return events.Load() == 1 }, time.Second, 5*time.Millisecond)
}
