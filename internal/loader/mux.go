// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Route sends paths whose base name matches Pattern to Loader.
type Route struct {
	Pattern string
	Loader  Loader
}

type compiledRoute struct {
	pattern string
	glob    glob.Glob
	loader  Loader
}

// Mux dispatches Open to the first route whose pattern matches the
// file's base name.
type Mux struct {
	routes []compiledRoute
}

// Compile-time interface check.
var _ Loader = (*Mux)(nil)

// NewMux compiles the routes in order. Earlier routes win.
func NewMux(routes ...Route) (*Mux, error) {
	compiled := make([]compiledRoute, 0, len(routes))
	for i, r := range routes {
		if r.Pattern == "" {
			return nil, fmt.Errorf("route %d: empty pattern", i)
		}
		if r.Loader == nil {
			return nil, fmt.Errorf("route %d (%q): nil loader", i, r.Pattern)
		}
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("route %d (%q): %w", i, r.Pattern, err)
		}
		compiled = append(compiled, compiledRoute{pattern: r.Pattern, glob: g, loader: r.Loader})
	}
	return &Mux{routes: compiled}, nil
}

// Match returns the loader for path, or nil if no route accepts it.
func (m *Mux) Match(path string) Loader {
	base := filepath.Base(path)
	for _, r := range m.routes {
		if r.glob.Match(base) {
			return r.loader
		}
	}
	return nil
}

// Open checks that path exists and hands it to the matching route.
func (m *Mux) Open(ctx context.Context, path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, oops.In("loader").With("path", path).Wrap(err)
	}
	l := m.Match(path)
	if l == nil {
		return nil, oops.In("loader").With("path", path).Wrap(ErrNoBackend)
	}
	return l.Open(ctx, path)
}

// Discover returns the files in dir accepted by some route, sorted by name.
// A missing directory yields no files and no error.
func (m *Mux) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("loader").With("dir", dir).Hint("failed to read plugins directory").Wrap(err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if m.Match(path) == nil {
			continue
		}
		paths = append(paths, path)
	}

	sort.Strings(paths)
	return paths, nil
}
