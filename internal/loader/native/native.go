// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package native opens Go plugins built with -buildmode=plugin.
//
// An image exports a constructor named NewPlugin and, optionally, a string
// variable named ABIVersion:
//
//	var ABIVersion = "1.0.0"
//
//	func NewPlugin() plugin.Plugin { return &adder{} }
//
// The Go runtime cannot unmap a plugin once opened, so Library.Close only
// marks the handle closed.
package native

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/plugin"
)

// Loader opens Go plugin images.
type Loader struct{}

// New creates a native loader.
func New() *Loader {
	return &Loader{}
}

// symbolTable is the subset of *plugin.Plugin a Library needs.
type symbolTable interface {
	Lookup(name string) (any, error)
}

// Library is an opened Go plugin image.
type Library struct {
	path    string
	symbols symbolTable
	closed  bool
}

// Compile-time interface check.
var _ loader.Library = (*Library)(nil)

// Path implements loader.Library.
func (l *Library) Path() string { return l.path }

// Backend implements loader.Library.
func (l *Library) Backend() string { return loader.BackendNative }

// Constructor implements loader.Library.
func (l *Library) Constructor() (loader.Constructor, error) {
	if l.closed {
		return nil, oops.In("native").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	sym, err := l.symbols.Lookup(plugin.ConstructorSymbol)
	if err != nil {
		return nil, oops.In("native").
			With("path", l.path).
			With("symbol", plugin.ConstructorSymbol).
			Wrap(fmt.Errorf("%w: %w", loader.ErrSymbolNotFound, err))
	}
	ctor, ok := asConstructor(sym)
	if !ok {
		return nil, oops.In("native").
			With("path", l.path).
			With("symbol", plugin.ConstructorSymbol).
			Hint("export func NewPlugin() plugin.Plugin").
			Wrap(fmt.Errorf("%w: unexpected type %T", loader.ErrSymbolNotFound, sym))
	}
	return func() (plugin.Plugin, error) {
		return ctor(), nil
	}, nil
}

// ABIVersion implements loader.Library.
func (l *Library) ABIVersion() (string, error) {
	if l.closed {
		return "", oops.In("native").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	sym, err := l.symbols.Lookup(plugin.ABIVersionSymbol)
	if err != nil {
		return "", oops.In("native").
			With("path", l.path).
			With("symbol", plugin.ABIVersionSymbol).
			Wrap(fmt.Errorf("%w: %w", loader.ErrSymbolNotFound, err))
	}
	switch v := sym.(type) {
	case *string:
		return *v, nil
	case func() string:
		return v(), nil
	default:
		return "", oops.In("native").
			With("path", l.path).
			With("symbol", plugin.ABIVersionSymbol).
			Wrap(fmt.Errorf("%w: unexpected type %T", loader.ErrSymbolNotFound, sym))
	}
}

// Close implements loader.Library.
func (l *Library) Close() error {
	l.closed = true
	return nil
}

// asConstructor accepts the shapes a plugin may export its constructor as.
// A function symbol arrives as a func value, a variable as a pointer to it.
func asConstructor(sym any) (plugin.Constructor, bool) {
	switch fn := sym.(type) {
	case func() plugin.Plugin:
		return fn, fn != nil
	case plugin.Constructor:
		return fn, fn != nil
	case *func() plugin.Plugin:
		if fn == nil || *fn == nil {
			return nil, false
		}
		return *fn, true
	case *plugin.Constructor:
		if fn == nil || *fn == nil {
			return nil, false
		}
		return *fn, true
	default:
		return nil, false
	}
}
