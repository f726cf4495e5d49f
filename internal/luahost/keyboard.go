package luahost

import (
	"context"
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/notify"
)

const layoutHandlerKey = "on_did_change_layout"

func (r *Runtime) keyboardModule() *lua.LTable {
	return r.L.SetFuncs(r.L.NewTable(), map[string]lua.LGFunction{
		"on_did_change_layout": r.onDidChangeLayout,
		"current_layout":       r.currentLayout,
		"is_iso_keyboard":      r.isISOKeyboard,
	})
}

// on_did_change_layout(fn) -> true | false, message
func (r *Runtime) onDidChangeLayout(L *lua.LState) int {
	if L.GetTop() != 1 {
		L.ArgError(1, "expected exactly one argument")
		return 0
	}
	if L.Get(1).Type() != lua.LTFunction {
		L.ArgError(1, "expected a function")
		return 0
	}
	fn := L.ToFunction(1)

	L.SetField(r.handlers, layoutHandlerKey, fn)

	err := r.kb.OnDidChangeKeyboardLayout(r.deliverLayoutChange)
	switch {
	case err == nil:
		L.Push(lua.LTrue)
		return 1
	case errors.Is(err, notify.ErrSubscriptionFailed):
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	default:
		L.SetField(r.handlers, layoutHandlerKey, lua.LNil)
		L.RaiseError("%s", err.Error())
		return 0
	}
}

// deliverLayoutChange runs on the consumer loop.
func (r *Runtime) deliverLayoutChange() {
	if r.closed.Load() {
		return
	}
	handler := r.L.GetField(r.handlers, layoutHandlerKey)
	if handler.Type() != lua.LTFunction {
		return
	}

	err := r.guarded(func() error {
		return r.L.CallByParam(lua.P{
			Fn:      handler,
			NRet:    0,
			Protect: true,
		})
	})
	r.delivered.Add(1)
	if err != nil {
		r.handlerErrors.Add(1)
		r.logger.Warn("layout change handler failed: %v", err)
	}
}

// current_layout() -> table | nil, message
func (r *Runtime) currentLayout(L *lua.LState) int {
	info, err := r.kb.CurrentLayout(r.callContext(L))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(layoutTable(L, info))
	return 1
}

// is_iso_keyboard() -> bool | nil, message
func (r *Runtime) isISOKeyboard(L *lua.LState) int {
	iso, err := r.kb.IsISOKeyboard(r.callContext(L))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LBool(iso))
	return 1
}

func (r *Runtime) callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func layoutTable(L *lua.LState, info layout.Info) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("model", lua.LString(info.Model))
	t.RawSetString("layout", lua.LString(info.Layout))
	t.RawSetString("variant", lua.LString(info.Variant))
	t.RawSetString("options", lua.LString(info.Options))
	t.RawSetString("name", lua.LString(info.DisplayName()))
	t.RawSetString("iso", lua.LBool(info.IsISO()))

	groups := L.NewTable()
	for _, g := range info.Layouts() {
		groups.Append(lua.LString(g))
	}
	t.RawSetString("groups", groups)
	return t
}
