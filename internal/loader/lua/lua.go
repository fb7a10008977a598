// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua loads plugins written in Lua.
//
// Each script file is one image. Opening it creates a sandboxed Lua state
// and runs the script; the state is the library handle. The script's entry
// point is a global function that returns the plugin object:
//
//	ABI_VERSION = "1.0.0"
//
//	function plugin_create()
//	  local p = { counter = 0 }
//	  function p:name() return "Plugin1" end
//	  function p:on_load() self.counter = 1; host_log("Plugin1 loaded") end
//	  function p:on_unload() host_log("Plugin1 unloaded") end
//	  function p:work(a, b) return a + b end
//	  return p
//	end
//
// Instances call back into the state that created them, so the state is
// closed only after every instance has been dropped.
package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/plugin"
)

// Well-known globals resolved from a script.
const (
	ConstructorGlobal = "plugin_create"
	ABIVersionGlobal  = "ABI_VERSION"
)

// maxExact is the largest magnitude a Lua number holds without rounding.
const maxExact = 1 << 53

// ErrInexact is returned when a Work operand or result does not survive the
// trip through a Lua number unchanged.
var ErrInexact = errors.New("integer not exactly representable as a Lua number")

// Recorder receives every host_log call made by a script.
type Recorder func(path, message string)

// Loader opens Lua plugin scripts.
type Loader struct {
	recorder Recorder
}

// Compile-time interface check.
var _ loader.Loader = (*Loader)(nil)

// Option configures the Loader.
type Option func(*Loader)

// WithRecorder forwards host_log messages to r in addition to slog.
func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		l.recorder = r
	}
}

// New creates a Lua loader.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open reads the script and runs it in a fresh sandboxed state.
func (l *Loader) Open(ctx context.Context, path string) (loader.Library, error) {
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").With("path", path).With("operation", "open").Hint("failed to read script").Wrap(err)
	}

	L, err := newSandbox(hostFuncs{
		"host_log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			slog.InfoContext(ctx, "lua plugin log", "path", path, "message", msg)
			if l.recorder != nil {
				l.recorder(path, msg)
			}
			return 0
		},
	})
	if err != nil {
		return nil, oops.In("lua").With("path", path).With("operation", "open").Hint("failed to create state").Wrap(err)
	}
	lib := &Library{path: path, state: L}

	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return nil, oops.In("lua").With("path", path).With("operation", "open").Hint("script failed to run").Wrap(err)
	}

	return lib, nil
}

// Library is an opened Lua script.
type Library struct {
	path   string
	state  *lua.LState
	closed bool
}

// Compile-time interface check.
var _ loader.Library = (*Library)(nil)

// Path implements loader.Library.
func (l *Library) Path() string { return l.path }

// Backend implements loader.Library.
func (l *Library) Backend() string { return loader.BackendLua }

// Constructor resolves the plugin_create global.
func (l *Library) Constructor() (loader.Constructor, error) {
	if l.closed {
		return nil, oops.In("lua").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	fn, ok := l.state.GetGlobal(ConstructorGlobal).(*lua.LFunction)
	if !ok {
		return nil, oops.In("lua").With("path", l.path).With("symbol", ConstructorGlobal).Wrap(loader.ErrSymbolNotFound)
	}
	return func() (plugin.Plugin, error) {
		return l.construct(fn)
	}, nil
}

// ABIVersion resolves the ABI_VERSION global.
func (l *Library) ABIVersion() (string, error) {
	if l.closed {
		return "", oops.In("lua").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	v, ok := l.state.GetGlobal(ABIVersionGlobal).(lua.LString)
	if !ok {
		return "", oops.In("lua").With("path", l.path).With("symbol", ABIVersionGlobal).Wrap(loader.ErrSymbolNotFound)
	}
	return string(v), nil
}

// Close shuts the Lua state down.
func (l *Library) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.state.Close()
	return nil
}

func (l *Library) construct(fn *lua.LFunction) (plugin.Plugin, error) {
	if l.closed {
		return nil, oops.In("lua").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	L := l.state
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, oops.In("lua").With("path", l.path).With("operation", ConstructorGlobal).Wrap(err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.In("lua").With("path", l.path).Errorf("%s returned %s, want table", ConstructorGlobal, ret.Type())
	}

	inst := &instance{lib: l, self: tbl}
	nameVal, err := inst.call("name", 1)
	if err != nil {
		return nil, err
	}
	name, ok := nameVal.(lua.LString)
	if !ok {
		return nil, oops.In("lua").With("path", l.path).Errorf("name() returned %s, want string", nameVal.Type())
	}
	inst.name = string(name)
	return inst, nil
}

// instance is a plugin object living inside a Lua state.
type instance struct {
	lib  *Library
	self *lua.LTable
	name string
}

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*instance)(nil)
	_ plugin.LoadHook   = (*instance)(nil)
	_ plugin.UnloadHook = (*instance)(nil)
)

// call invokes self:method(args...) and returns its first result, or LNil
// when nret is zero. A missing optional method is reported as LNil.
func (i *instance) call(method string, nret int, args ...lua.LValue) (lua.LValue, error) {
	if i.lib.closed {
		return lua.LNil, oops.In("lua").With("plugin", i.name).With("method", method).Wrap(loader.ErrLibraryClosed)
	}
	L := i.lib.state
	fn, ok := L.GetField(i.self, method).(*lua.LFunction)
	if !ok {
		return lua.LNil, oops.In("lua").With("plugin", i.name).With("path", i.lib.path).
			With("method", method).Wrap(loader.ErrSymbolNotFound)
	}

	callArgs := append([]lua.LValue{i.self}, args...)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, callArgs...); err != nil {
		return lua.LNil, oops.In("lua").With("plugin", i.name).With("method", method).Wrap(err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func (i *instance) hasMethod(method string) bool {
	if i.lib.closed {
		return true
	}
	_, ok := i.lib.state.GetField(i.self, method).(*lua.LFunction)
	return ok
}

// Name returns the name captured at construction.
func (i *instance) Name() string {
	return i.name
}

// OnLoad calls self:on_load() if defined. A returned string is an error.
func (i *instance) OnLoad() error {
	return i.hook("on_load")
}

// OnUnload calls self:on_unload() if defined. A returned string is an error.
func (i *instance) OnUnload() error {
	return i.hook("on_unload")
}

func (i *instance) hook(method string) error {
	if !i.hasMethod(method) {
		return nil
	}
	ret, err := i.call(method, 1)
	if err != nil {
		return err
	}
	if msg, ok := ret.(lua.LString); ok && msg != "" {
		return oops.In("lua").With("plugin", i.name).With("method", method).New(string(msg))
	}
	return nil
}

// Work calls self:work(a, b).
func (i *instance) Work(a, b int64) (int64, error) {
	for _, v := range []int64{a, b} {
		if v > maxExact || v < -maxExact {
			return 0, oops.In("lua").With("plugin", i.name).With("operand", v).Wrap(ErrInexact)
		}
	}
	ret, err := i.call("work", 1, lua.LNumber(a), lua.LNumber(b))
	if err != nil {
		return 0, err
	}
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("plugin %s: work returned %s, want number", i.name, ret.Type())
	}
	f := float64(n)
	if math.IsNaN(f) || f != math.Trunc(f) || f > maxExact || f < -maxExact {
		return 0, oops.In("lua").With("plugin", i.name).With("result", f).Wrap(ErrInexact)
	}
	return int64(f), nil
}
