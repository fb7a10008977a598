// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/loader/cabi"
	pluginlua "github.com/holomush/plughost/internal/loader/lua"
	"github.com/holomush/plughost/internal/loader/native"
	"github.com/holomush/plughost/internal/loader/process"
	"github.com/holomush/plughost/internal/plugin"
)

// newBackend creates the default loader for a backend name.
func newBackend(backend string) (loader.Loader, error) {
	switch backend {
	case loader.BackendNative:
		return native.New(), nil
	case loader.BackendCABI:
		return cabi.New(), nil
	case loader.BackendLua:
		return pluginlua.New(), nil
	case loader.BackendProcess:
		return process.New(), nil
	default:
		return nil, oops.In("plughost").With("backend", backend).Errorf("unknown loader backend %q", backend)
	}
}

// host is the loader stack and manager built from a configuration.
type host struct {
	mux     *loader.Mux
	manager *plugin.Manager
}

// newHost routes cfg.Loaders to backends, wraps the router with the
// configured retry policy, and creates a manager over it. Each backend is
// created once and shared by every route that names it.
func newHost(cfg *config.Config, deps *HostDeps) (*host, error) {
	backends := make(map[string]loader.Loader)
	routes := make([]loader.Route, 0, len(cfg.Loaders))
	for _, r := range cfg.Loaders {
		l, ok := backends[r.Backend]
		if !ok {
			var err error
			if l, err = deps.BackendFactory(r.Backend); err != nil {
				return nil, err
			}
			backends[r.Backend] = l
		}
		routes = append(routes, loader.Route{Pattern: r.Pattern, Loader: l})
	}

	mux, err := loader.NewMux(routes...)
	if err != nil {
		return nil, oops.In("plughost").Wrap(err)
	}

	backoff, err := cfg.Backoff()
	if err != nil {
		return nil, err
	}
	constraint, err := cfg.ABIConstraint()
	if err != nil {
		return nil, err
	}

	opts := []plugin.ManagerOption{plugin.WithLogger(slog.Default())}
	if cfg.Plugins.UniqueNames {
		opts = append(opts, plugin.WithUniqueNames())
	}
	if constraint != nil {
		opts = append(opts, plugin.WithABIConstraint(constraint))
	}

	return &host{
		mux:     mux,
		manager: plugin.NewManager(loader.NewRetry(mux, cfg.Open.Retries, backoff), opts...),
	}, nil
}

// configuredPaths lists the images named by the configuration followed by
// extra: files discovered in the plugins directory, then plugins.paths.
func (h *host) configuredPaths(cfg *config.Config, extra ...string) ([]string, error) {
	var paths []string
	if cfg.Plugins.Dir != "" {
		found, err := h.mux.Discover(cfg.Plugins.Dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	paths = append(paths, cfg.Plugins.Paths...)
	return append(paths, extra...), nil
}
