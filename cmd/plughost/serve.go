// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/plugin"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the configured plugins loaded until interrupted",
		Long: `Load every configured image and keep the plugins loaded until
SIGINT or SIGTERM. When --metrics-addr is set, Prometheus metrics, health
probes, and the plugin inventory (/plugins) are served over HTTP; the
readiness probe passes once at least one plugin is registered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")

	return cmd
}

// runServeWithDeps loads the configured images and blocks until a signal
// arrives or ctx is cancelled. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *HostDeps) error {
	deps = deps.withDefaults()

	h, err := newHost(cfg, deps)
	if err != nil {
		return err
	}
	plugins := plugin.NewGuarded(h.manager)
	defer func() {
		if closeErr := plugins.Close(); closeErr != nil {
			slog.Warn("error closing plugin manager", "error", closeErr)
		}
	}()

	paths, err := h.configuredPaths(cfg)
	if err != nil {
		return err
	}
	// LoadAll logs each failure itself.
	loadErr := plugins.LoadAll(ctx, paths)
	slog.InfoContext(ctx, "plugins loaded",
		"plugins", plugins.Len(),
		"libraries", plugins.Handles(),
		"failed", loadFailures(loadErr),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr,
			func() bool { return plugins.Len() > 0 },
			func() any { return plugins.Infos() },
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("Serving %d plugins\n", plugins.Len())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	plugins.UnloadAll(shutdownCtx)
	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors watches for errors from a server's error channel and
// triggers shutdown via cancel if an error occurs.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// loadFailures counts the failures joined into a LoadAll error.
func loadFailures(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
