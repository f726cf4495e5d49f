// Package app wires the notification bridge into one runtime instance.
//
// An Instance owns a consumer loop, the notification state, the layout
// change listener and the platform source feeding it. It is the surface a
// consumer runtime sees: OnDidChangeKeyboardLayout registers the single
// layout change callback, CurrentLayout and IsISOKeyboard query the
// keyboard, and Shutdown tears everything down.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/kblayout/internal/callback"
	"github.com/dshills/kblayout/internal/config"
	"github.com/dshills/kblayout/internal/dispatch"
	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/listener"
	"github.com/dshills/kblayout/internal/logging"
	"github.com/dshills/kblayout/internal/luahost"
	"github.com/dshills/kblayout/internal/metrics"
	"github.com/dshills/kblayout/internal/notify"
	"github.com/dshills/kblayout/internal/platform"
)

// Options configures an Instance. Zero values select the configured
// defaults.
type Options struct {
	// Config is the configuration. Defaults to config.Default().
	Config *config.Config

	// Logger is the base logger. Defaults to logging.Default().
	Logger *logging.Logger

	// Source overrides the configured platform source.
	Source platform.Source

	// Reader overrides the configured layout reader.
	Reader layout.Reader

	// Dispatcher replaces the instance's own consumer loop, e.g. with a
	// dispatch.ScreenLoop. Run and LoadScript are unavailable then.
	Dispatcher callback.Dispatcher

	// Metrics receives bridge statistics. Optional.
	Metrics *metrics.Metrics

	// Tracer traces deliveries on the consumer loop. Optional.
	Tracer trace.Tracer
}

// Instance is one consumer runtime instance.
type Instance struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	loop       *dispatch.Loop // nil with an external dispatcher
	dispatcher callback.Dispatcher
	state      *notify.State
	listener   *listener.Listener
	source     platform.Source
	ownSource  bool
	reader     layout.Reader

	mu  sync.Mutex
	lua *luahost.Runtime

	running      atomic.Bool
	shutdown     atomic.Bool
	shutdownOnce sync.Once
}

// New creates an instance. Nothing is subscribed until the first callback
// is registered.
func New(opts Options) (*Instance, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	inst := &Instance{
		cfg:     cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}

	inst.reader = opts.Reader
	if inst.reader == nil {
		inst.reader = newReader(cfg.Source)
	}
	inst.source = opts.Source
	if inst.source == nil {
		inst.source = newSource(cfg.Source, inst.reader, logger.WithComponent("source"))
		inst.ownSource = true
	}

	inst.dispatcher = opts.Dispatcher
	if inst.dispatcher == nil {
		loopOpts := []dispatch.Option{
			dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
			dispatch.WithPostTimeout(cfg.Dispatch.PostTimeout.Std()),
			dispatch.WithLogger(logger.WithComponent("dispatch")),
			dispatch.WithTracer(opts.Tracer),
		}
		if opts.Metrics != nil {
			loopOpts = append(loopOpts, dispatch.WithObserver(opts.Metrics))
		}
		inst.loop = dispatch.NewLoop(loopOpts...)
		inst.dispatcher = inst.loop
	}

	handleOpts := []callback.Option{callback.WithLogger(logger.WithComponent("callback"))}
	stateOpts := []notify.Option{notify.WithLogger(logger.WithComponent("notify"))}
	listenerOpts := []listener.Option{listener.WithLogger(logger.WithComponent("listener"))}
	if opts.Metrics != nil {
		handleOpts = append(handleOpts, callback.WithObserver(opts.Metrics))
		stateOpts = append(stateOpts, notify.WithObserver(opts.Metrics))
		listenerOpts = append(listenerOpts, listener.WithObserver(opts.Metrics))
	}
	stateOpts = append(stateOpts, notify.WithHandleOptions(handleOpts...))

	inst.state = notify.NewState(inst.dispatcher, stateOpts...)
	inst.listener = listener.New(inst.source, inst.state, listenerOpts...)
	return inst, nil
}

// OnDidChangeKeyboardLayout registers fn as the instance's only layout
// change callback, replacing any previous one. fn runs on the consumer
// loop with no arguments.
//
// If the platform subscription fails the callback is still stored and a
// *notify.SubscriptionError is returned; registering again retries.
func (i *Instance) OnDidChangeKeyboardLayout(fn func()) error {
	return i.state.RegisterCallback(fn)
}

// CurrentLayout returns the active keyboard configuration.
func (i *Instance) CurrentLayout(ctx context.Context) (layout.Info, error) {
	return i.reader.Read(ctx)
}

// IsISOKeyboard reports whether the configured keyboard model is ISO.
func (i *Instance) IsISOKeyboard(ctx context.Context) (bool, error) {
	info, err := i.reader.Read(ctx)
	if err != nil {
		return false, err
	}
	return info.IsISO(), nil
}

// LoadScript loads a Lua script into the instance's Lua runtime, creating
// the runtime on first use. Run must be active.
func (i *Instance) LoadScript(ctx context.Context, path string) error {
	rt, err := i.luaRuntime()
	if err != nil {
		return err
	}
	if err := rt.DoFile(ctx, path); err != nil {
		return &ComponentError{Component: "lua", Action: "load " + path, Err: err}
	}
	return nil
}

func (i *Instance) luaRuntime() (*luahost.Runtime, error) {
	if i.loop == nil {
		return nil, ErrNoLoop
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.shutdown.Load() {
		return nil, ErrShutdown
	}
	if i.lua == nil {
		rt, err := luahost.New(i, i.loop,
			luahost.WithExecutionTimeout(i.cfg.Script.Timeout.Std()),
			luahost.WithLogger(i.logger.WithComponent("lua")),
		)
		if err != nil {
			return nil, err
		}
		i.lua = rt
	}
	return i.lua, nil
}

// Run runs the consumer loop on the calling goroutine until ctx is
// cancelled or Shutdown is called, then shuts the instance down.
func (i *Instance) Run(ctx context.Context) error {
	if i.loop == nil {
		return ErrNoLoop
	}
	if !i.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer i.running.Store(false)

	i.logger.Debug("consumer loop started")
	err := i.loop.Run(ctx)
	i.Shutdown()
	i.closeLua()

	if errors.Is(err, context.Canceled) || errors.Is(err, dispatch.ErrLoopClosed) {
		return nil
	}
	return err
}

// Shutdown tears the instance down. The notification state is torn down
// first, so no callback runs after Shutdown returns unless it was already
// executing. Shutdown is idempotent and safe from any goroutine.
func (i *Instance) Shutdown() {
	i.shutdownOnce.Do(func() {
		i.mu.Lock()
		i.shutdown.Store(true)
		i.mu.Unlock()
		i.state.Teardown()

		if err := i.listener.Close(); err != nil {
			i.logger.Warn("closing listener: %v", err)
		}
		if i.loop != nil {
			i.loop.Close()
		}
		if c, ok := i.source.(io.Closer); ok && i.ownSource {
			if err := c.Close(); err != nil {
				i.logger.Warn("closing layout source: %v", err)
			}
		}
		i.logger.Debug("instance shut down")
	})

	// The Lua state belongs to the loop goroutine while Run is active;
	// Run closes it on exit.
	if !i.running.Load() {
		i.closeLua()
	}
}

func (i *Instance) closeLua() {
	i.mu.Lock()
	rt := i.lua
	i.mu.Unlock()
	if rt != nil {
		_ = rt.Close()
	}
}

// Health reports an error once the consumer loop is closed.
func (i *Instance) Health() error {
	if i.shutdown.Load() {
		return ErrShutdown
	}
	return nil
}

// IsShutdown returns true once Shutdown has been called.
func (i *Instance) IsShutdown() bool {
	return i.shutdown.Load()
}

// Loop returns the instance's consumer loop, or nil with an external
// dispatcher.
func (i *Instance) Loop() *dispatch.Loop {
	return i.loop
}

// State returns the notification state.
func (i *Instance) State() *notify.State {
	return i.state
}

// Listener returns the layout change listener.
func (i *Instance) Listener() *listener.Listener {
	return i.listener
}

// Source returns the platform source.
func (i *Instance) Source() platform.Source {
	return i.source
}

// Config returns the instance configuration.
func (i *Instance) Config() *config.Config {
	return i.cfg
}
