package luahost

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
)

// DefaultExecutionTimeout bounds a single script load or callback.
const DefaultExecutionTimeout = 5 * time.Second

// Keyboard is the host surface exposed to scripts.
type Keyboard interface {
	OnDidChangeKeyboardLayout(fn func()) error
	CurrentLayout(ctx context.Context) (layout.Info, error)
	IsISOKeyboard(ctx context.Context) (bool, error)
}

// Executor runs fn on the consumer loop and waits for its result.
type Executor interface {
	DispatchWait(ctx context.Context, fn func() error) error
}

// Runtime is a sandboxed Lua state bound to a consumer loop.
type Runtime struct {
	L    *lua.LState
	kb   Keyboard
	exec Executor

	// handlers keeps registered Lua functions reachable from Go.
	handlers *lua.LTable

	timeout time.Duration
	logger  *logging.Logger

	closed        atomic.Bool
	delivered     atomic.Int64
	handlerErrors atomic.Int64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecutionTimeout bounds script loads and callback runs.
// Lua code is interrupted at its next instruction once the timeout passes.
func WithExecutionTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger. Script output from print goes here too.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// New creates a runtime. The Lua state is created on the calling
// goroutine; nothing else touches it until the executor runs work.
func New(kb Keyboard, exec Executor, opts ...Option) (*Runtime, error) {
	if kb == nil {
		return nil, ErrNilKeyboard
	}
	if exec == nil {
		return nil, ErrNilExecutor
	}

	r := &Runtime{
		kb:      kb,
		exec:    exec,
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(r.L)
	r.handlers = r.L.NewTable()
	r.installPrint()
	r.L.SetGlobal("keyboard", r.keyboardModule())
	return r, nil
}

// openSafeLibraries opens only Lua libraries without filesystem or
// process access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (r *Runtime) installPrint() {
	r.L.SetGlobal("print", r.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		r.logger.Info("%s", strings.Join(parts, "\t"))
		return 0
	}))
}

// DoFile loads and runs a script on the consumer loop.
func (r *Runtime) DoFile(ctx context.Context, path string) error {
	return r.run(ctx, func() error {
		return r.L.DoFile(path)
	})
}

// DoString runs Lua source on the consumer loop.
func (r *Runtime) DoString(ctx context.Context, code string) error {
	return r.run(ctx, func() error {
		return r.L.DoString(code)
	})
}

func (r *Runtime) run(ctx context.Context, fn func() error) error {
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	return r.exec.DispatchWait(ctx, func() error {
		if r.closed.Load() {
			return ErrRuntimeClosed
		}
		return r.guarded(fn)
	})
}

// guarded must run on the consumer loop.
func (r *Runtime) guarded(fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

// Close releases the Lua state on the consumer loop, or directly if the
// loop is no longer running. Close is idempotent.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.exec.DispatchWait(ctx, func() error {
		r.L.Close()
		return nil
	})
	if err != nil {
		r.L.Close()
	}
	return nil
}

// IsClosed returns true once Close has been called.
func (r *Runtime) IsClosed() bool {
	return r.closed.Load()
}

// Delivered returns how many layout change callbacks ran a Lua handler.
func (r *Runtime) Delivered() int64 {
	return r.delivered.Load()
}

// HandlerErrors returns how many Lua handler calls raised an error.
func (r *Runtime) HandlerErrors() int64 {
	return r.handlerErrors.Load()
}
