// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/loader/loadertest"
)

func TestNewBackend(t *testing.T) {
	for _, name := range []string{loader.BackendNative, loader.BackendCABI, loader.BackendLua, loader.BackendProcess} {
		t.Run(name, func(t *testing.T) {
			l, err := newBackend(name)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}

	_, err := newBackend("wasm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wasm")
}

func TestNewHost_SharesBackendAcrossRoutes(t *testing.T) {
	calls := map[string]int{}
	deps := (&HostDeps{
		BackendFactory: func(backend string) (loader.Loader, error) {
			calls[backend]++
			return loadertest.NewLoader(&loadertest.Journal{}), nil
		},
	}).withDefaults()

	cfg := &config.Config{Loaders: []config.Route{
		{Pattern: "*.lua", Backend: loader.BackendLua},
		{Pattern: "*.luac", Backend: loader.BackendLua},
		{Pattern: "*.so", Backend: loader.BackendNative},
	}}

	h, err := newHost(cfg, deps)
	require.NoError(t, err)
	require.NotNil(t, h.manager)
	assert.Equal(t, map[string]int{loader.BackendLua: 1, loader.BackendNative: 1}, calls)
	assert.NotNil(t, h.mux.Match("x.luac"))
	assert.Nil(t, h.mux.Match("x.txt"))
}

func TestNewHost_InvalidRoutePattern(t *testing.T) {
	cfg := &config.Config{Loaders: []config.Route{{Pattern: "[", Backend: loader.BackendLua}}}

	_, err := newHost(cfg, (&HostDeps{}).withDefaults())
	require.Error(t, err)
}

func TestHost_ConfiguredPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.lua", "a.lua", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	cfg := &config.Config{
		Plugins: config.PluginsConfig{Dir: dir, Paths: []string{"/opt/extra.lua"}},
		Loaders: config.DefaultRoutes(),
	}
	h, err := newHost(cfg, (&HostDeps{}).withDefaults())
	require.NoError(t, err)
	defer func() { _ = h.manager.Close() }()

	paths, err := h.configuredPaths(cfg, "cli.lua")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.lua"),
		filepath.Join(dir, "b.lua"),
		"/opt/extra.lua",
		"cli.lua",
	}, paths)
}

func TestHost_LoadsThroughRetry(t *testing.T) {
	isolate(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Open.Retries = 2
	cfg.Open.Backoff = "1ms"

	h, err := newHost(cfg, (&HostDeps{}).withDefaults())
	require.NoError(t, err)
	defer func() { _ = h.manager.Close() }()

	require.NoError(t, h.manager.Load(context.Background(), luaPlugin1))
	assert.Equal(t, []string{"Plugin1"}, h.manager.Names())
}
