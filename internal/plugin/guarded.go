// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"sync"

	pluginpkg "github.com/holomush/plughost/pkg/plugin"
)

// Guarded serializes access to a Manager with a single mutex covering both
// of its lists.
type Guarded struct {
	mu sync.Mutex
	m  *Manager
}

// NewGuarded wraps m. Panics if m is nil.
func NewGuarded(m *Manager) *Guarded {
	if m == nil {
		panic("plugin: manager cannot be nil")
	}
	return &Guarded{m: m}
}

// Load calls Manager.Load under the lock.
func (g *Guarded) Load(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.Load(ctx, path)
}

// LoadAll calls Manager.LoadAll under the lock.
func (g *Guarded) LoadAll(ctx context.Context, paths []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.LoadAll(ctx, paths)
}

// Call looks up name and runs fn with the plugin while holding the lock,
// so the plugin cannot be unloaded underneath fn.
func (g *Guarded) Call(name string, fn func(pluginpkg.Plugin) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.m.Get(name)
	if err != nil {
		return err
	}
	return fn(p)
}

// UnloadAll calls Manager.UnloadAll under the lock.
func (g *Guarded) UnloadAll(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m.UnloadAll(ctx)
}

// Close calls Manager.Close under the lock.
func (g *Guarded) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.Close()
}

// Infos calls Manager.Infos under the lock.
func (g *Guarded) Infos() []pluginpkg.Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.Infos()
}

// Len calls Manager.Len under the lock.
func (g *Guarded) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.Len()
}

// Handles calls Manager.Handles under the lock.
func (g *Guarded) Handles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m.Handles()
}
