// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin defines the contract every plughost plugin implements.
//
// A plugin image exposes exactly one constructor. For Go images built with
// -buildmode=plugin that constructor is an exported package-level function:
//
//	package main
//
//	import "github.com/holomush/plughost/pkg/plugin"
//
//	type adder struct{ counter int }
//
//	func (a *adder) Name() string                     { return "Plugin1" }
//	func (a *adder) OnLoad() error                    { a.counter = 1; return nil }
//	func (a *adder) Work(x, y int64) (int64, error)   { return x + y, nil }
//
//	func NewPlugin() plugin.Plugin { return &adder{} }
//
// The host calls OnLoad once before the instance becomes visible to lookups
// and OnUnload once before the instance is dropped. The image that produced
// an instance stays open until every instance has been dropped.
package plugin

// Well-known symbol names resolved by the Go backends.
const (
	// ConstructorSymbol is the exported constructor, of type func() Plugin.
	ConstructorSymbol = "NewPlugin"
	// ABIVersionSymbol is the optional exported contract version, of type string.
	ABIVersionSymbol = "ABIVersion"
)

// ContractVersion is the version of this contract. Images that export
// ABIVersion should set it to this value at build time.
const ContractVersion = "1.0.0"

// Plugin is the capability set every plugin implements.
type Plugin interface {
	// Name returns a stable identifier used for lookup and diagnostics.
	Name() string

	// Work is the plugin's domain operation.
	Work(a, b int64) (int64, error)
}

// LoadHook is implemented by plugins that need initialization.
// OnLoad runs exactly once, after construction and before registration.
// A non-nil error aborts registration of this plugin only.
type LoadHook interface {
	OnLoad() error
}

// UnloadHook is implemented by plugins that need cleanup.
// OnUnload runs exactly once before the instance is dropped. Errors are
// logged by the host and never stop the remaining unloads.
type UnloadHook interface {
	OnUnload() error
}

// Constructor builds a plugin instance. Ownership of the returned value
// passes to the caller.
type Constructor func() Plugin

// Info describes a registered plugin instance.
type Info struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Path     string `yaml:"path" json:"path"`
	Backend  string `yaml:"backend" json:"backend"`
	LoadedAt string `yaml:"loaded_at" json:"loaded_at"`
}
