// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/config"
)

// runConfig holds configuration for the run command.
type runConfig struct {
	library string
	plugin  string
	a       int64
	b       int64
}

// Default values for run command flags.
const (
	defaultRunPlugin = "Plugin1"
	defaultRunA      = 3
	defaultRunB      = 4
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	rc := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run <library>",
		Short: "Load one image and call a plugin's work operation",
		Long: `Load a single plugin image, print the registered plugins, look up
the named plugin, and print the result of calling its work operation.
Everything is unloaded before the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rc.library = args[0]
			return runRunWithDeps(cmd.Context(), cfg, rc, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&rc.plugin, "plugin", defaultRunPlugin, "name of the plugin to call")
	cmd.Flags().Int64Var(&rc.a, "a", defaultRunA, "first operand")
	cmd.Flags().Int64Var(&rc.b, "b", defaultRunB, "second operand")

	return cmd
}

// runRunWithDeps loads rc.library and calls the named plugin.
// If deps is nil, default implementations are used.
func runRunWithDeps(ctx context.Context, cfg *config.Config, rc *runConfig, cmd *cobra.Command, deps *HostDeps) error {
	deps = deps.withDefaults()

	h, err := newHost(cfg, deps)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := h.manager.Close(); closeErr != nil {
			slog.Warn("error closing plugin manager", "error", closeErr)
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loading plugins from %s\n", rc.library)
	if err := h.manager.Load(ctx, rc.library); err != nil {
		return err
	}
	fmt.Fprintf(out, "Plugins: %v\n", h.manager.Names())

	p, err := h.manager.Get(rc.plugin)
	if err != nil {
		return err
	}
	result, err := p.Work(rc.a, rc.b)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "called %s %d\n", p.Name(), result)
	return nil
}
