package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kblayout/internal/config"
	"github.com/dshills/kblayout/internal/dispatch"
	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
	"github.com/dshills/kblayout/internal/metrics"
	"github.com/dshills/kblayout/internal/notify"
	"github.com/dshills/kblayout/internal/platform"
)

func staticReader(info layout.Info) layout.Reader {
	return layout.ReaderFunc(func(context.Context) (layout.Info, error) {
		return info, nil
	})
}

func newTestInstance(t *testing.T, src platform.Source) *Instance {
	t.Helper()
	inst, err := New(Options{
		Logger: logging.Nop(),
		Source: src,
		Reader: staticReader(layout.Info{Model: "pc105", Layout: "gb"}),
	})
	require.NoError(t, err)
	t.Cleanup(inst.Shutdown)
	return inst
}

// runInstance runs inst on a new goroutine and returns a channel with
// Run's result.
func runInstance(t *testing.T, inst *Instance) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- inst.Run(context.Background()) }()
	require.Eventually(t, inst.Loop().IsRunning, time.Second, time.Millisecond)
	return errCh
}

func TestEndToEnd_ReplaceThenTeardown(t *testing.T) {
	src := platform.NewManualSource()
	inst := newTestInstance(t, src)
	loop := inst.Loop()

	var c1, c2 atomic.Int32
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() { c1.Add(1) }))

	// E1 is delivered on the consumer loop, not on the firing goroutine.
	src.Fire()
	assert.Equal(t, int32(0), c1.Load())
	assert.Equal(t, 1, loop.RunPending())
	assert.Equal(t, int32(1), c1.Load())

	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() { c2.Add(1) }))
	src.Fire()
	loop.RunPending()
	assert.Equal(t, int32(1), c1.Load())
	assert.Equal(t, int32(1), c2.Load())

	inst.Shutdown()
	assert.NotPanics(t, func() { src.Fire() })
	loop.RunPending()
	assert.Equal(t, int32(1), c1.Load())
	assert.Equal(t, int32(1), c2.Load())

	// One underlying subscription for both registrations, released on
	// shutdown.
	assert.Equal(t, int64(1), src.SubscribeCalls())
	assert.Equal(t, 0, src.Subscribers())
}

func TestEndToEnd_InFlightEventForReplacedCallback(t *testing.T) {
	src := platform.NewManualSource()
	inst := newTestInstance(t, src)

	var c1, c2 atomic.Int32
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() { c1.Add(1) }))
	src.Fire()
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() { c2.Add(1) }))

	inst.Loop().RunPending()
	assert.Equal(t, int32(0), c1.Load())
	assert.Equal(t, int32(0), c2.Load())
}

func TestShutdown_Idempotent(t *testing.T) {
	inst := newTestInstance(t, platform.NewManualSource())

	inst.Shutdown()
	inst.Shutdown()

	assert.True(t, inst.IsShutdown())
	assert.True(t, inst.State().IsTornDown())
	assert.ErrorIs(t, inst.Health(), ErrShutdown)
	assert.ErrorIs(t, inst.OnDidChangeKeyboardLayout(func() {}), notify.ErrTornDown)
}

func TestRegister_InvalidCallback(t *testing.T) {
	inst := newTestInstance(t, platform.NewManualSource())
	assert.ErrorIs(t, inst.OnDidChangeKeyboardLayout(nil), notify.ErrInvalidCallback)
}

func TestRegister_SubscriptionFailure(t *testing.T) {
	src := platform.NewManualSource()
	src.FailWith(errors.New("no layout source"))
	inst := newTestInstance(t, src)

	err := inst.OnDidChangeKeyboardLayout(func() {})
	assert.ErrorIs(t, err, notify.ErrSubscriptionFailed)
	assert.False(t, inst.Listener().IsSubscribed())

	src.FailWith(nil)
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() {}))
	assert.True(t, inst.Listener().IsSubscribed())
}

func TestRegister_HangingPollReadFailsSubscription(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Kind = config.SourcePoll
	cfg.Source.ReadTimeout = config.Duration(20 * time.Millisecond)
	hanging := layout.ReaderFunc(func(ctx context.Context) (layout.Info, error) {
		<-ctx.Done()
		return layout.Info{}, ctx.Err()
	})
	inst, err := New(Options{Config: cfg, Logger: logging.Nop(), Reader: hanging})
	require.NoError(t, err)

	registered := make(chan error, 1)
	go func() { registered <- inst.OnDidChangeKeyboardLayout(func() {}) }()
	select {
	case err := <-registered:
		assert.ErrorIs(t, err, notify.ErrSubscriptionFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("registration blocked on a hanging layout read")
	}
	assert.False(t, inst.Listener().IsSubscribed())

	stopped := make(chan struct{})
	go func() {
		inst.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked")
	}
}

func TestConcurrentProducersRaceTeardown(t *testing.T) {
	src := platform.NewManualSource()
	m := metrics.New()
	inst, err := New(Options{
		Logger:  logging.Nop(),
		Source:  src,
		Reader:  staticReader(layout.Info{Layout: "us"}),
		Metrics: m,
	})
	require.NoError(t, err)

	var delivered atomic.Int64
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() { delivered.Add(1) }))
	runErr := runInstance(t, inst)

	const producers = 16
	const perProducer = 200

	var wg sync.WaitGroup
	start := make(chan struct{})
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < perProducer; i++ {
				src.Fire()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		time.Sleep(time.Millisecond)
		inst.Shutdown()
	}()

	close(start)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("producers deadlocked against teardown")
	}

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	after := delivered.Load()
	assert.LessOrEqual(t, after, int64(producers*perProducer))
	src.Fire()
	assert.Equal(t, after, delivered.Load())
}

func TestRun_CancelShutsDown(t *testing.T) {
	inst := newTestInstance(t, platform.NewManualSource())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- inst.Run(ctx) }()
	require.Eventually(t, inst.Loop().IsRunning, time.Second, time.Millisecond)

	assert.ErrorIs(t, inst.Run(ctx), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, inst.IsShutdown())
}

func TestCurrentLayoutAndISO(t *testing.T) {
	inst := newTestInstance(t, platform.NewManualSource())

	info, err := inst.CurrentLayout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gb", info.Layout)

	iso, err := inst.IsISOKeyboard(context.Background())
	require.NoError(t, err)
	assert.True(t, iso)
}

func TestIsISOKeyboard_ReadError(t *testing.T) {
	inst, err := New(Options{
		Logger: logging.Nop(),
		Source: platform.NewManualSource(),
		Reader: layout.ReaderFunc(func(context.Context) (layout.Info, error) {
			return layout.Info{}, layout.ErrNotConfigured
		}),
	})
	require.NoError(t, err)
	defer inst.Shutdown()

	_, err = inst.IsISOKeyboard(context.Background())
	assert.ErrorIs(t, err, layout.ErrNotConfigured)
}

func TestLoadScript(t *testing.T) {
	src := platform.NewManualSource()
	inst := newTestInstance(t, src)
	runErr := runInstance(t, inst)

	dir := t.TempDir()
	script := filepath.Join(dir, "init.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
		changes = 0
		assert(keyboard.on_did_change_layout(function()
			changes = changes + 1
		end))
		assert(keyboard.is_iso_keyboard())
		assert(keyboard.current_layout().layout == "gb")
	`), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, inst.LoadScript(ctx, script))
	assert.True(t, inst.Listener().IsSubscribed())

	src.Fire()
	src.Fire()

	rt, err := inst.luaRuntime()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rt.Delivered() == 2 }, 2*time.Second, 5*time.Millisecond)

	inst.Shutdown()
	require.NoError(t, <-runErr)
	assert.True(t, rt.IsClosed())
}

func TestLoadScript_Error(t *testing.T) {
	inst := newTestInstance(t, platform.NewManualSource())
	runErr := runInstance(t, inst)

	script := filepath.Join(t.TempDir(), "bad.lua")
	require.NoError(t, os.WriteFile(script, []byte(`keyboard.on_did_change_layout(42)`), 0o644))

	err := inst.LoadScript(context.Background(), script)
	var cerr *ComponentError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "lua", cerr.Component)

	inst.Shutdown()
	require.NoError(t, <-runErr)
	assert.ErrorIs(t, inst.LoadScript(context.Background(), script), ErrShutdown)
}

func TestExternalDispatcher(t *testing.T) {
	screen := tcell.NewSimulationScreen("")
	require.NoError(t, screen.Init())
	sl := dispatch.NewScreenLoop(screen)

	src := platform.NewManualSource()
	inst, err := New(Options{
		Logger:     logging.Nop(),
		Source:     src,
		Reader:     staticReader(layout.Info{Layout: "us"}),
		Dispatcher: sl,
	})
	require.NoError(t, err)
	defer inst.Shutdown()

	assert.Nil(t, inst.Loop())
	assert.ErrorIs(t, inst.Run(context.Background()), ErrNoLoop)
	assert.ErrorIs(t, inst.LoadScript(context.Background(), "x.lua"), ErrNoLoop)

	var calls atomic.Int32
	require.NoError(t, inst.OnDidChangeKeyboardLayout(func() {
		calls.Add(1)
		sl.Close()
	}))
	src.Fire()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sl.Run(context.Background(), func(tcell.Event) bool { return true })
	}()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("screen loop did not stop")
	}
	assert.Equal(t, int32(1), calls.Load())
	screen.Fini()
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.QueueSize = 0
	_, err := New(Options{Config: cfg, Logger: logging.Nop()})
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}

func TestNew_BuildsConfiguredSource(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{config.SourceFile, &platform.FileSource{}},
		{config.SourcePoll, &platform.PollSource{}},
		{config.SourceManual, &platform.ManualSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.Default()
			cfg.Source.Kind = tt.kind
			inst, err := New(Options{Config: cfg, Logger: logging.Nop()})
			require.NoError(t, err)
			defer inst.Shutdown()
			assert.IsType(t, tt.want, inst.Source())
		})
	}
}
