// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/plughost/internal/config"
)

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [library...]",
		Short: "Load the configured images and describe the registered plugins",
		Long: `Load every image found in the plugins directory, every configured
path, and every library given on the command line, then print the
registered plugins as YAML. Images that fail to load are reported after
the listing and make the command fail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runListWithDeps(cmd.Context(), cfg, args, cmd, nil)
		},
	}
}

// runListWithDeps loads the configured images plus extra and prints them.
// If deps is nil, default implementations are used.
func runListWithDeps(ctx context.Context, cfg *config.Config, extra []string, cmd *cobra.Command, deps *HostDeps) error {
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

	paths, err := h.configuredPaths(cfg, extra...)
	if err != nil {
		return err
	}
	loadErr := h.manager.LoadAll(ctx, paths)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(h.manager.Infos()); err != nil {
		return oops.In("plughost").Wrap(err)
	}
	if err := enc.Close(); err != nil {
		return oops.In("plughost").Wrap(err)
	}
	return loadErr
}
