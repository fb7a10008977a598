// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/loader/loadertest"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("image"), 0o600))
}

func TestNewMux_RejectsBadRoutes(t *testing.T) {
	fake := loadertest.NewLoader(&loadertest.Journal{})

	tests := []struct {
		name  string
		route loader.Route
	}{
		{name: "empty pattern", route: loader.Route{Pattern: "", Loader: fake}},
		{name: "nil loader", route: loader.Route{Pattern: "*.so"}},
		{name: "bad glob", route: loader.Route{Pattern: "[unclosed", Loader: fake}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.NewMux(tt.route)
			assert.Error(t, err)
		})
	}
}

func TestMux_FirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	cabiPath := filepath.Join(dir, "plugin1.cabi.so")
	goPath := filepath.Join(dir, "plugin1.so")
	writeFile(t, cabiPath)
	writeFile(t, goPath)

	journal := &loadertest.Journal{}
	cabi := loadertest.NewLoader(journal).Add(cabiPath, loadertest.Image{})
	native := loadertest.NewLoader(journal).Add(goPath, loadertest.Image{})

	mux, err := loader.NewMux(
		loader.Route{Pattern: "*.cabi.so", Loader: cabi},
		loader.Route{Pattern: "*.so", Loader: native},
	)
	require.NoError(t, err)

	_, err = mux.Open(context.Background(), cabiPath)
	require.NoError(t, err)
	_, err = mux.Open(context.Background(), goPath)
	require.NoError(t, err)

	assert.Len(t, cabi.Opened(), 1)
	assert.Len(t, native.Opened(), 1)
}

func TestMux_Open_MissingFile(t *testing.T) {
	mux, err := loader.NewMux(loader.Route{Pattern: "*", Loader: loadertest.NewLoader(&loadertest.Journal{})})
	require.NoError(t, err)

	_, err = mux.Open(context.Background(), "/nonexistent/path")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMux_Open_NoRoute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path)

	mux, err := loader.NewMux(loader.Route{Pattern: "*.lua", Loader: loadertest.NewLoader(&loadertest.Journal{})})
	require.NoError(t, err)

	_, err = mux.Open(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrNoBackend)
}

func TestMux_Discover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.lua"))
	writeFile(t, filepath.Join(dir, "a.lua"))
	writeFile(t, filepath.Join(dir, "readme.md"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.lua"), 0o750))

	mux, err := loader.NewMux(loader.Route{Pattern: "*.lua", Loader: loadertest.NewLoader(&loadertest.Journal{})})
	require.NoError(t, err)

	paths, err := mux.Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.lua"), filepath.Join(dir, "b.lua")}, paths)
}

func TestMux_Discover_MissingDirectory(t *testing.T) {
	mux, err := loader.NewMux(loader.Route{Pattern: "*", Loader: loadertest.NewLoader(&loadertest.Journal{})})
	require.NoError(t, err)

	paths, err := mux.Discover(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}
