// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build linux || darwin || freebsd

package cabi_test

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/loader/cabi"
	"github.com/holomush/plughost/pkg/plugin"
)

// buildImage compiles testdata/<name>.c into a shared object, skipping the
// test when no C compiler is available.
func buildImage(t *testing.T, name string) string {
	t.Helper()
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}
	out := filepath.Join(t.TempDir(), name+".cabi.so")
	args := []string{"-shared", "-fPIC", "-o", out, filepath.Join("testdata", name+".c")}
	if runtime.GOOS == "darwin" {
		args = append([]string{"-dynamiclib"}, args[1:]...)
	}
	if msg, err := exec.Command(cc, args...).CombinedOutput(); err != nil {
		t.Skipf("cannot build test image: %v: %s", err, msg)
	}
	return out
}

func openImage(t *testing.T, name string) loader.Library {
	t.Helper()
	lib, err := cabi.New().Open(context.Background(), buildImage(t, name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func liveInstances(t *testing.T, lib loader.Library) int32 {
	t.Helper()
	return liveCount(t, lib, "plugin1_live_instances")
}

func liveCount(t *testing.T, lib loader.Library, symbol string) int32 {
	t.Helper()
	h, err := purego.Dlopen(lib.Path(), purego.RTLD_NOW|purego.RTLD_LOCAL)
	require.NoError(t, err)
	defer func() { _ = purego.Dlclose(h) }()
	var count func() int32
	purego.RegisterLibFunc(&count, h, symbol)
	return count()
}

func TestLibrary_Lifecycle(t *testing.T) {
	lib := openImage(t, "plugin1")
	assert.Equal(t, loader.BackendCABI, lib.Backend())

	ctor, err := lib.Constructor()
	require.NoError(t, err)
	p, err := ctor()
	require.NoError(t, err)
	assert.Equal(t, "Plugin1", p.Name())
	assert.Equal(t, int32(1), liveInstances(t, lib))

	require.NoError(t, p.(plugin.LoadHook).OnLoad())
	n, err := p.Work(3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, p.(plugin.UnloadHook).OnUnload())

	closer, ok := p.(io.Closer)
	require.True(t, ok, "C instances own foreign memory and must be releasable")
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close(), "release is idempotent")
	assert.Equal(t, int32(0), liveInstances(t, lib))

	_, err = p.Work(1, 1)
	assert.Error(t, err, "released instances reject calls")
}

func TestLibrary_UnloadHookReportsFailureCode(t *testing.T) {
	lib := openImage(t, "plugin1")
	ctor, err := lib.Constructor()
	require.NoError(t, err)
	p, err := ctor()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.(io.Closer).Close() })

	// on_unload fails when on_load never ran.
	err = p.(plugin.UnloadHook).OnUnload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 7")
}

func TestLibrary_ABIVersion(t *testing.T) {
	lib := openImage(t, "plugin1")
	v, err := lib.ABIVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)
}

func TestLibrary_MissingSymbols(t *testing.T) {
	lib := openImage(t, "noctor")
	_, err := lib.Constructor()
	assert.ErrorIs(t, err, loader.ErrSymbolNotFound)
	_, err = lib.ABIVersion()
	assert.ErrorIs(t, err, loader.ErrSymbolNotFound)
}

func TestLibrary_IncompleteDispatchTableIsDestroyed(t *testing.T) {
	lib := openImage(t, "partial")
	ctor, err := lib.Constructor()
	require.NoError(t, err)

	_, err = ctor()
	assert.ErrorIs(t, err, loader.ErrSymbolNotFound)
	assert.Equal(t, int32(0), liveCount(t, lib, "partial_live_instances"))
}

func TestLibrary_ClosedLibrary(t *testing.T) {
	lib := openImage(t, "plugin1")
	ctor, err := lib.Constructor()
	require.NoError(t, err)
	p, err := ctor()
	require.NoError(t, err)
	require.NoError(t, p.(io.Closer).Close())

	require.NoError(t, lib.Close())
	require.NoError(t, lib.Close(), "close is idempotent")

	_, err = lib.Constructor()
	assert.ErrorIs(t, err, loader.ErrLibraryClosed)
}

func TestLoader_OpenMissingImage(t *testing.T) {
	_, err := cabi.New().Open(context.Background(), "/nonexistent/plugin1.cabi.so")
	assert.Error(t, err)
}
