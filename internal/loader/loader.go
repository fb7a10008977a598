// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package loader defines the boundary between the plugin manager and the
// facilities that map plugin images into the process.
//
// A Loader opens an image and returns a Library handle. The handle resolves
// the image's single constructor entry point and must stay open for as long
// as any instance built by that constructor is alive.
package loader

import (
	"context"
	"errors"

	"github.com/holomush/plughost/pkg/plugin"
)

// Backend names used in configuration and introspection.
const (
	BackendNative  = "native"
	BackendCABI    = "cabi"
	BackendLua     = "lua"
	BackendProcess = "process"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrSymbolNotFound is returned when an image lacks a well-known symbol
	// or exports it with the wrong type.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrNoBackend is returned when no route accepts a path.
	ErrNoBackend = errors.New("no loader backend for path")
	// ErrLibraryClosed is returned when a closed library is used.
	ErrLibraryClosed = errors.New("library is closed")
	// ErrUnsupported is returned by backends unavailable on this platform.
	ErrUnsupported = errors.New("loader backend not supported on this platform")
)

// Constructor invokes an image's entry point. Each call transfers exclusive
// ownership of a new instance to the caller.
type Constructor func() (plugin.Plugin, error)

// Library is an opened plugin image.
type Library interface {
	// Path returns the path the library was opened from.
	Path() string

	// Backend returns the name of the backend that opened the library.
	Backend() string

	// Constructor resolves the image's constructor entry point.
	// Returns an error wrapping ErrSymbolNotFound if it is missing or mistyped.
	Constructor() (Constructor, error)

	// ABIVersion resolves the image's contract version.
	// Returns an error wrapping ErrSymbolNotFound if the image does not export one.
	ABIVersion() (string, error)

	// Close unmaps the image. No instance built from it may be used afterwards.
	Close() error
}

// Loader opens plugin images.
type Loader interface {
	Open(ctx context.Context, path string) (Library, error)
}

// Func adapts a function to the Loader interface.
type Func func(ctx context.Context, path string) (Library, error)

// Open calls f(ctx, path).
func (f Func) Open(ctx context.Context, path string) (Library, error) {
	return f(ctx, path)
}
