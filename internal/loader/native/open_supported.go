// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build (linux || darwin || freebsd) && cgo

package native

import (
	"context"
	goplugin "plugin"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/loader"
)

// pluginSymbols adapts *plugin.Plugin, whose Lookup returns plugin.Symbol.
type pluginSymbols struct {
	p *goplugin.Plugin
}

func (s pluginSymbols) Lookup(name string) (any, error) {
	return s.p.Lookup(name)
}

// Open implements loader.Loader.
func (l *Loader) Open(_ context.Context, path string) (loader.Library, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, oops.In("native").
			With("path", path).
			Hint("images must be built with -buildmode=plugin by the same toolchain as the host").
			Wrap(err)
	}
	return &Library{path: path, symbols: pluginSymbols{p: p}}, nil
}
