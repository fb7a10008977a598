// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package loadertest provides in-memory loader fakes for tests.
package loadertest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/plugin"
)

// Journal records lifecycle events across plugins and libraries in the
// order they happen. It is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event.
func (j *Journal) Record(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// Image describes what a fake library at some path contains.
type Image struct {
	// Plugin builds the instance. Nil means the constructor symbol is missing.
	Plugin func(lib *Library) plugin.Plugin
	// Version is the exported ABI version. Empty means the symbol is missing.
	Version string
	// CloseErr is returned from Close.
	CloseErr error
}

// Loader serves Images keyed by path.
type Loader struct {
	Journal *Journal
	Images  map[string]Image
	// OpenErrs forces Open failures per path, one entry per attempt.
	OpenErrs map[string][]error

	mu     sync.Mutex
	opened []*Library
}

// NewLoader returns an empty fake loader writing to journal.
func NewLoader(journal *Journal) *Loader {
	return &Loader{
		Journal:  journal,
		Images:   make(map[string]Image),
		OpenErrs: make(map[string][]error),
	}
}

// Add registers an image at path.
func (l *Loader) Add(path string, img Image) *Loader {
	l.Images[path] = img
	return l
}

// Open implements loader.Loader.
func (l *Loader) Open(_ context.Context, path string) (loader.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if errs := l.OpenErrs[path]; len(errs) > 0 {
		l.OpenErrs[path] = errs[1:]
		return nil, errs[0]
	}
	img, ok := l.Images[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	lib := &Library{path: path, image: img, journal: l.Journal}
	l.opened = append(l.opened, lib)
	l.Journal.Record("open %s", path)
	return lib, nil
}

// Opened returns every library opened so far.
func (l *Loader) Opened() []*Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Library(nil), l.opened...)
}

// Library is a fake opened image.
type Library struct {
	path    string
	image   Image
	journal *Journal

	mu     sync.Mutex
	closed bool
}

// Compile-time interface check.
var _ loader.Library = (*Library)(nil)

// Path implements loader.Library.
func (l *Library) Path() string { return l.path }

// Backend implements loader.Library.
func (l *Library) Backend() string { return "fake" }

// Closed reports whether Close has been called.
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Constructor implements loader.Library.
func (l *Library) Constructor() (loader.Constructor, error) {
	if l.image.Plugin == nil {
		return nil, fmt.Errorf("%s: %w", l.path, loader.ErrSymbolNotFound)
	}
	return func() (plugin.Plugin, error) {
		return l.image.Plugin(l), nil
	}, nil
}

// ABIVersion implements loader.Library.
func (l *Library) ABIVersion() (string, error) {
	if l.image.Version == "" {
		return "", fmt.Errorf("%s: %w", l.path, loader.ErrSymbolNotFound)
	}
	return l.image.Version, nil
}

// Close implements loader.Library.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("library closed twice")
	}
	l.closed = true
	l.journal.Record("close %s", l.path)
	return l.image.CloseErr
}

// Plugin is a configurable fake plugin instance. Every call is journaled,
// and calls made after the backing library closed panic.
type Plugin struct {
	PluginName  string
	Lib         *Library
	Journal     *Journal
	LoadErr     error
	UnloadErr   error
	PanicName   bool
	PanicLoad   bool
	PanicUnload bool
	Releasable  bool
}

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*Plugin)(nil)
	_ plugin.LoadHook   = (*Plugin)(nil)
	_ plugin.UnloadHook = (*Plugin)(nil)
)

func (p *Plugin) checkLive(op string) {
	if p.Lib != nil && p.Lib.Closed() {
		panic(fmt.Sprintf("%s: %s called after library %s closed", p.PluginName, op, p.Lib.Path()))
	}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string {
	p.checkLive("name")
	if p.PanicName {
		panic("name exploded")
	}
	return p.PluginName
}

// Work implements plugin.Plugin.
func (p *Plugin) Work(a, b int64) (int64, error) {
	p.checkLive("work")
	p.Journal.Record("work %s", p.PluginName)
	return a + b, nil
}

// OnLoad implements plugin.LoadHook.
func (p *Plugin) OnLoad() error {
	p.checkLive("on_load")
	p.Journal.Record("on_load %s", p.PluginName)
	if p.PanicLoad {
		panic("on_load exploded")
	}
	return p.LoadErr
}

// OnUnload implements plugin.UnloadHook.
func (p *Plugin) OnUnload() error {
	p.checkLive("on_unload")
	p.Journal.Record("on_unload %s", p.PluginName)
	if p.PanicUnload {
		panic("on_unload exploded")
	}
	return p.UnloadErr
}

// ReleasablePlugin is a Plugin that also owns foreign memory.
type ReleasablePlugin struct {
	*Plugin
}

// Close releases the instance.
func (p *ReleasablePlugin) Close() error {
	p.checkLive("release")
	p.Journal.Record("release %s", p.PluginName)
	return nil
}

// Adder returns an image constructor for a plugin named name.
func Adder(journal *Journal, name string) func(lib *Library) plugin.Plugin {
	return func(lib *Library) plugin.Plugin {
		return &Plugin{PluginName: name, Lib: lib, Journal: journal}
	}
}

// Configured returns an image constructor that copies tmpl for each instance.
func Configured(tmpl Plugin) func(lib *Library) plugin.Plugin {
	return func(lib *Library) plugin.Plugin {
		p := tmpl
		p.Lib = lib
		if p.Releasable {
			return &ReleasablePlugin{Plugin: &p}
		}
		return &p
	}
}
