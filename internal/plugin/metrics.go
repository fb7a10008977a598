// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for load metrics.
const (
	ResultSuccess         = "success"
	ResultOpenFailed      = "open_failed"
	ResultSymbolNotFound  = "symbol_not_found"
	ResultConstructFailed = "construct_failed"
	ResultABIMismatch     = "abi_mismatch"
	ResultDuplicateName   = "duplicate_name"
	ResultHookFailed      = "hook_failed"
	ResultManagerClosed   = "manager_closed"
)

// PluginsLoaded is the gauge of registered plugin instances.
// Use RegisterMetrics to register this with a Prometheus registry.
var PluginsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "plughost_plugins_loaded",
	Help: "Number of registered plugin instances",
})

// LibrariesOpen is the gauge of tracked library handles.
// Use RegisterMetrics to register this with a Prometheus registry.
var LibrariesOpen = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "plughost_libraries_open",
	Help: "Number of open plugin library handles",
})

// LoadTotal counts load attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoadTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plughost_load_total",
		Help: "Total number of plugin load attempts",
	},
	[]string{"result"},
)

// HookFailures counts failed lifecycle hooks.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plughost_hook_failures_total",
		Help: "Total number of failed plugin lifecycle hooks",
	},
	[]string{"hook"},
)

// RegisterMetrics registers plugin manager metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PluginsLoaded)
	reg.MustRegister(LibrariesOpen)
	reg.MustRegister(LoadTotal)
	reg.MustRegister(HookFailures)
}

// RecordLoad increments the load counter. Use the Result* constants.
func RecordLoad(result string) {
	LoadTotal.WithLabelValues(result).Inc()
}

// RecordHookFailure increments the hook failure counter for hook
// ("on_load" or "on_unload").
func RecordHookFailure(hook string) {
	HookFailures.WithLabelValues(hook).Inc()
}
