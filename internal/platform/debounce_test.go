package platform

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		d.Call()
	}
	assert.True(t, d.IsPending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.IsPending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_Cancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Call()
	d.Cancel()
	assert.False(t, d.IsPending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_ZeroDelayIsSynchronous(t *testing.T) {
	calls := 0
	d := NewDebouncer(0, func() { calls++ })

	d.Call()
	d.Call()
	assert.Equal(t, 2, calls)
	assert.False(t, d.IsPending())
}

func TestDebouncer_NilCallback(t *testing.T) {
	d := NewDebouncer(0, nil)
	assert.NotPanics(t, d.Call)
}
