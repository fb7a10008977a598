// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/logging"
)

const serviceName = "plughost"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the plughost CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plughost",
		Short: "plughost - load and run dynamically loaded plugins",
		Long: `plughost opens plugin images, constructs the plugin each one exports,
and drives the plugins through their load, work, and unload lifecycle.

Images are routed to a backend by file name: native Go plugins, C-ABI
shared objects, Lua scripts, or plugin executables.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/plughost/config.yaml)")
	flags.String("log-format", logging.FormatJSON, "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("plugins-dir", "", "directory scanned for plugin images (default: XDG_DATA_HOME/plughost/plugins)")
	flags.Bool("unique-names", false, "reject plugins whose name is already registered")
	flags.String("abi-constraint", "", "contract version constraint every image must satisfy, e.g. ^1.0")
	flags.Uint64("retries", 0, "retries for images that fail to open")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// loadConfig reads the configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(serviceName, version, cfg.Log.Format, level)
	return cfg, nil
}
