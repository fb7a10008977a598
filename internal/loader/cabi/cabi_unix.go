// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build linux || darwin || freebsd

package cabi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/samber/oops"
	"golang.org/x/sys/unix"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/plugin"
)

// Loader opens C-ABI plugin images.
type Loader struct {
	mode int
}

// New creates a C-ABI loader. Symbols are bound eagerly and kept local to
// each image.
func New() *Loader {
	return &Loader{mode: purego.RTLD_NOW | purego.RTLD_LOCAL}
}

// Open implements loader.Loader.
func (l *Loader) Open(_ context.Context, path string) (loader.Library, error) {
	handle, err := purego.Dlopen(path, l.mode)
	if err != nil {
		return nil, oops.In("cabi").With("path", path).Wrap(err)
	}
	return &Library{path: path, handle: handle}, nil
}

// Library is an opened C-ABI image.
type Library struct {
	path   string
	handle uintptr

	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ loader.Library = (*Library)(nil)

// Path implements loader.Library.
func (l *Library) Path() string { return l.path }

// Backend implements loader.Library.
func (l *Library) Backend() string { return loader.BackendCABI }

func (l *Library) lookup(name string) (uintptr, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, oops.In("cabi").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil || sym == 0 {
		if err == nil {
			err = errors.New("null symbol address")
		}
		return 0, oops.In("cabi").
			With("path", l.path).
			With("symbol", name).
			Wrap(fmt.Errorf("%w: %w", loader.ErrSymbolNotFound, err))
	}
	return sym, nil
}

// Constructor implements loader.Library.
func (l *Library) Constructor() (loader.Constructor, error) {
	sym, err := l.lookup(CreateSymbol)
	if err != nil {
		return nil, err
	}
	var create func() unsafe.Pointer
	purego.RegisterFunc(&create, sym)

	return func() (plugin.Plugin, error) {
		obj := (*cObject)(create())
		if obj == nil || obj.vt == nil {
			return nil, oops.In("cabi").With("path", l.path).Errorf("%s returned a null object", CreateSymbol)
		}
		return bind(l, obj)
	}, nil
}

// ABIVersion implements loader.Library.
func (l *Library) ABIVersion() (string, error) {
	sym, err := l.lookup(ABIVersionSymbol)
	if err != nil {
		return "", err
	}
	var version func() unsafe.Pointer
	purego.RegisterFunc(&version, sym)
	return cString(version()), nil
}

// Close implements loader.Library. Closing twice is a no-op.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := purego.Dlclose(l.handle); err != nil {
		return oops.In("cabi").With("path", l.path).Wrap(err)
	}
	return nil
}

func (l *Library) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// cObject mirrors plughost_object.
type cObject struct {
	vt   unsafe.Pointer
	self unsafe.Pointer
}

// cVTable mirrors plughost_vtable.
type cVTable struct {
	name     uintptr
	onLoad   uintptr
	onUnload uintptr
	work     uintptr
	destroy  uintptr
}

// instance calls through an image's dispatch table.
type instance struct {
	lib  *Library
	self unsafe.Pointer
	name string

	onLoad   func(self unsafe.Pointer) int32
	onUnload func(self unsafe.Pointer) int32
	work     func(self unsafe.Pointer, a, b int64) int64
	destroy  func(self unsafe.Pointer)

	released bool
}

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*instance)(nil)
	_ plugin.LoadHook   = (*instance)(nil)
	_ plugin.UnloadHook = (*instance)(nil)
)

func bind(lib *Library, obj *cObject) (*instance, error) {
	vt := (*cVTable)(obj.vt)
	if vt.name == 0 || vt.work == 0 || vt.destroy == 0 {
		if vt.destroy != 0 {
			var destroy func(self unsafe.Pointer)
			purego.RegisterFunc(&destroy, vt.destroy)
			destroy(obj.self)
		}
		return nil, oops.In("cabi").
			With("path", lib.path).
			Hint("name, work and destroy are required").
			Wrap(fmt.Errorf("%w: incomplete dispatch table", loader.ErrSymbolNotFound))
	}

	inst := &instance{lib: lib, self: obj.self}
	var name func(self unsafe.Pointer) unsafe.Pointer
	purego.RegisterFunc(&name, vt.name)
	purego.RegisterFunc(&inst.work, vt.work)
	purego.RegisterFunc(&inst.destroy, vt.destroy)
	if vt.onLoad != 0 {
		purego.RegisterFunc(&inst.onLoad, vt.onLoad)
	}
	if vt.onUnload != 0 {
		purego.RegisterFunc(&inst.onUnload, vt.onUnload)
	}
	inst.name = cString(name(inst.self))
	return inst, nil
}

func (i *instance) live() error {
	if i.released {
		return oops.In("cabi").With("plugin", i.name).Errorf("instance already released")
	}
	if i.lib.isClosed() {
		return oops.In("cabi").With("plugin", i.name).Wrap(loader.ErrLibraryClosed)
	}
	return nil
}

// Name implements plugin.Plugin.
func (i *instance) Name() string { return i.name }

// Work implements plugin.Plugin.
func (i *instance) Work(a, b int64) (int64, error) {
	if err := i.live(); err != nil {
		return 0, err
	}
	return i.work(i.self, a, b), nil
}

// OnLoad implements plugin.LoadHook.
func (i *instance) OnLoad() error {
	return i.hook("on_load", i.onLoad)
}

// OnUnload implements plugin.UnloadHook.
func (i *instance) OnUnload() error {
	return i.hook("on_unload", i.onUnload)
}

func (i *instance) hook(name string, fn func(self unsafe.Pointer) int32) error {
	if fn == nil {
		return nil
	}
	if err := i.live(); err != nil {
		return err
	}
	if rc := fn(i.self); rc != 0 {
		return oops.In("cabi").With("plugin", i.name).With("hook", name).With("code", rc).
			Errorf("%s returned %d", name, rc)
	}
	return nil
}

// Close calls the image's destroy entry. It must run before the library
// is closed.
func (i *instance) Close() error {
	if i.released {
		return nil
	}
	if i.lib.isClosed() {
		return oops.In("cabi").With("plugin", i.name).Wrap(loader.ErrLibraryClosed)
	}
	i.released = true
	i.destroy(i.self)
	i.self = nil
	return nil
}

func cString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	return unix.BytePtrToString((*byte)(p))
}
