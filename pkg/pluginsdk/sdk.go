// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk serves plughost plugins from a separate process.
//
// Process plugins communicate with the host over net/rpc using the HashiCorp
// go-plugin framework. The child process is the plugin image: the host
// starts it when the image is opened, calls Create once to construct the
// instance, and kills the process when the image is closed.
//
// Example usage:
//
//	package main
//
//	import (
//		"github.com/holomush/plughost/pkg/plugin"
//		"github.com/holomush/plughost/pkg/pluginsdk"
//	)
//
//	type adder struct{}
//
//	func (adder) Name() string                   { return "Plugin1" }
//	func (adder) Work(a, b int64) (int64, error) { return a + b, nil }
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{
//			Constructor: func() plugin.Plugin { return adder{} },
//		})
//	}
package pluginsdk

import (
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/holomush/plughost/pkg/plugin"
)

// PluginKey is the name the host dispenses.
const PluginKey = "plugin"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PLUGHOST_PLUGIN",
	MagicCookieValue: "plughost-v1",
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Constructor builds the plugin instance when the host asks for it.
	// Required; Serve will panic if nil.
	Constructor plugin.Constructor

	// ABIVersion is reported to hosts that enforce a contract version.
	// Defaults to plugin.ContractVersion.
	ABIVersion string
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Constructor == nil {
		panic("pluginsdk: config.Constructor cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginSet(config),
	})
}

// PluginSet returns the go-plugin plugin map for the given config.
// The host side passes a config with a nil Constructor.
func PluginSet(config *ServeConfig) map[string]hashiplug.Plugin {
	p := &RPCPlugin{}
	if config != nil {
		p.Constructor = config.Constructor
		p.ABIVersion = config.ABIVersion
	}
	return map[string]hashiplug.Plugin{PluginKey: p}
}

// RPCPlugin implements go-plugin's Plugin interface for net/rpc.
type RPCPlugin struct {
	// Constructor is used by the plugin side only.
	Constructor plugin.Constructor
	// ABIVersion is used by the plugin side only.
	ABIVersion string
}

// Server returns the RPC server (called by plugin process).
func (p *RPCPlugin) Server(_ *hashiplug.MuxBroker) (interface{}, error) {
	version := p.ABIVersion
	if version == "" {
		version = plugin.ContractVersion
	}
	return &RPCServer{ctor: p.Constructor, version: version}, nil
}

// Client returns the RPC client (called by host process).
func (p *RPCPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
