// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package process runs plugins as child processes using HashiCorp's
// go-plugin system over net/rpc.
//
// The executable is the image: Open starts it and completes the handshake,
// every constructor call dispenses a fresh RPC session and asks the child to
// build an instance, and Close kills the child. Plugin executables are
// written with pkg/pluginsdk.
package process

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/plugin"
	"github.com/holomush/plughost/pkg/pluginsdk"
)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client starts the process if needed and returns the RPC protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pluginsdk.HandshakeConfig,
		Plugins:          pluginsdk.PluginSet(nil),
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath comes from configuration or discovery
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
	})
}

// Loader starts process plugins.
type Loader struct {
	factory ClientFactory
}

// New creates a loader that starts real child processes.
func New() *Loader {
	return &Loader{factory: &DefaultClientFactory{}}
}

// NewWithFactory creates a loader with a custom client factory (for testing).
// Panics if factory is nil.
func NewWithFactory(factory ClientFactory) *Loader {
	if factory == nil {
		panic("process: factory cannot be nil")
	}
	return &Loader{factory: factory}
}

// Open implements loader.Loader.
func (l *Loader) Open(ctx context.Context, path string) (loader.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.In("process").With("path", path).Wrap(err)
	}

	client := l.factory.NewClient(path)
	proto, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, oops.In("process").
			With("path", path).
			Hint("plugin executables must call pluginsdk.Serve").
			Wrap(err)
	}

	slog.DebugContext(ctx, "plugin process started", "path", path)
	return &Library{path: path, client: client, proto: proto}, nil
}

// Library is a running plugin process.
type Library struct {
	path   string
	client PluginClient
	proto  hashiplug.ClientProtocol

	mu     sync.Mutex
	closed bool
}

// Compile-time interface check.
var _ loader.Library = (*Library)(nil)

// Path implements loader.Library.
func (l *Library) Path() string { return l.path }

// Backend implements loader.Library.
func (l *Library) Backend() string { return loader.BackendProcess }

func (l *Library) checkOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return oops.In("process").With("path", l.path).Wrap(loader.ErrLibraryClosed)
	}
	return nil
}

// dispense opens a new RPC session with the child.
func (l *Library) dispense() (*pluginsdk.RPCClient, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	raw, err := l.proto.Dispense(pluginsdk.PluginKey)
	if err != nil {
		return nil, oops.In("process").With("path", l.path).Wrap(err)
	}
	rc, ok := raw.(*pluginsdk.RPCClient)
	if !ok {
		return nil, oops.In("process").
			With("path", l.path).
			Errorf("dispensed %T, want *pluginsdk.RPCClient", raw)
	}
	return rc, nil
}

// Constructor implements loader.Library. Every process plugin exposes a
// constructor; a child that cannot build an instance fails at call time.
// Instances own their session and end it when released through io.Closer.
func (l *Library) Constructor() (loader.Constructor, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return func() (plugin.Plugin, error) {
		rc, err := l.dispense()
		if err != nil {
			return nil, err
		}
		if err := rc.Create(); err != nil {
			_ = rc.Close()
			return nil, oops.In("process").With("path", l.path).Wrap(err)
		}
		return rc, nil
	}, nil
}

// ABIVersion implements loader.Library.
func (l *Library) ABIVersion() (string, error) {
	rc, err := l.dispense()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return rc.ABIVersion()
}

// Close implements loader.Library. It kills the child process.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.client.Kill()
	return nil
}
