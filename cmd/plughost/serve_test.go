// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/observability"
	pluginpkg "github.com/holomush/plughost/pkg/plugin"
)

type fakeObsServer struct {
	started  chan struct{}
	errCh    chan error
	startErr error
	stopped  bool
}

func newFakeObsServer() *fakeObsServer {
	return &fakeObsServer{started: make(chan struct{}), errCh: make(chan error, 1)}
}

func (s *fakeObsServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	close(s.started)
	return s.errCh, nil
}

func (s *fakeObsServer) Stop(_ context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeObsServer) Addr() string { return "127.0.0.1:0" }

type serveHarness struct {
	cfg       *config.Config
	obs       *fakeObsServer
	ready     observability.ReadinessChecker
	inventory observability.Inventory
	deps      *HostDeps
	cmd       *cobra.Command
	out       *bytes.Buffer
}

func newServeHarness(t *testing.T, paths ...string) *serveHarness {
	t.Helper()
	isolate(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Plugins.Paths = paths
	cfg.Metrics.Addr = "127.0.0.1:0"

	h := &serveHarness{cfg: cfg, obs: newFakeObsServer(), out: new(bytes.Buffer)}
	h.deps = &HostDeps{
		ObservabilityServerFactory: func(_ string, readiness observability.ReadinessChecker, inventory observability.Inventory) ObservabilityServer {
			h.ready = readiness
			h.inventory = inventory
			return h.obs
		},
	}
	h.cmd = &cobra.Command{}
	h.cmd.SetOut(h.out)
	return h
}

// start runs serve in the background and waits for the observability
// server to come up.
func (h *serveHarness) start(t *testing.T, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, h.cfg, h.cmd, h.deps)
	}()
	select {
	case <-h.obs.started:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for observability server")
	}
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for serve to return")
		return nil
	}
}

func TestServe_ReadyWithPluginsAndStopsOnCancel(t *testing.T) {
	h := newServeHarness(t, luaPlugin1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.start(t, ctx)
	require.NotNil(t, h.ready)
	assert.True(t, h.ready())
	infos, ok := h.inventory().([]pluginpkg.Info)
	require.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, "Plugin1", infos[0].Name)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.True(t, h.obs.stopped)
	assert.Contains(t, h.out.String(), "Serving 1 plugins")
}

func TestServe_NotReadyWithoutPlugins(t *testing.T) {
	h := newServeHarness(t, "/nonexistent/plugin1.lua")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.start(t, ctx)
	assert.False(t, h.ready(), "failed loads must not make serve ready")

	cancel()
	require.NoError(t, waitDone(t, done))
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	logs := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return logs
}

func TestServe_LogsEachLoadFailureOnce(t *testing.T) {
	logs := captureLogs(t)
	h := newServeHarness(t, luaPlugin1, "/nonexistent/plugin2.lua")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := h.start(t, ctx)
	cancel()
	require.NoError(t, waitDone(t, done))

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, `"msg":"failed to load plugin"`), out)
	assert.NotContains(t, out, "some plugins failed")
	assert.Contains(t, out, `"msg":"plugins loaded"`)
	assert.Contains(t, out, `"failed":1`)
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "none", err: nil, want: 0},
		{name: "single", err: errors.New("boom"), want: 1},
		{name: "joined", err: errors.Join(errors.New("a"), errors.New("b")), want: 2},
		{name: "wrapped", err: fmt.Errorf("load: %w", errors.New("a")), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loadFailures(tt.err))
		})
	}
}

func TestServe_ServerErrorTriggersShutdown(t *testing.T) {
	h := newServeHarness(t, luaPlugin1)

	done := h.start(t, context.Background())
	h.obs.errCh <- errors.New("listener died")

	require.NoError(t, waitDone(t, done))
	assert.True(t, h.obs.stopped)
}

func TestServe_ObservabilityStartFailure(t *testing.T) {
	h := newServeHarness(t, luaPlugin1)
	h.obs.startErr = errors.New("address in use")

	err := runServeWithDeps(context.Background(), h.cfg, h.cmd, h.deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

func TestServe_MetricsDisabled(t *testing.T) {
	h := newServeHarness(t, luaPlugin1)
	h.cfg.Metrics.Addr = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, runServeWithDeps(ctx, h.cfg, h.cmd, h.deps))
	assert.Nil(t, h.ready, "no observability server is created without an address")
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()
	addr, err := cmd.Flags().GetString("metrics-addr")
	require.NoError(t, err)
	assert.Empty(t, addr)
}
