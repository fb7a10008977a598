// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/observability"
	"github.com/holomush/plughost/internal/plugin"
)

// HostDeps contains injectable dependencies for commands that load plugins.
// All fields with nil values will use their default implementations.
type HostDeps struct {
	// BackendFactory creates the loader for a backend name.
	// Default: newBackend
	BackendFactory func(backend string) (loader.Loader, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with the plugin metrics registered
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, inventory observability.Inventory) ObservabilityServer
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *HostDeps) withDefaults() *HostDeps {
	if d == nil {
		d = &HostDeps{}
	}
	if d.BackendFactory == nil {
		d.BackendFactory = newBackend
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, inventory observability.Inventory) ObservabilityServer {
			return observability.NewServer(addr, version,
				observability.WithReadiness(readinessChecker),
				observability.WithRegistration(plugin.RegisterMetrics),
				observability.WithInventory(inventory),
			)
		}
	}
	return d
}
