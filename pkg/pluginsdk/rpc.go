// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk

import (
	"errors"
	"fmt"
	"io"
	"net/rpc"

	"github.com/samber/oops"

	"github.com/holomush/plughost/pkg/plugin"
)

// Sentinel errors reported across the RPC boundary.
var (
	// ErrNotCreated is returned when an instance method is called before Create.
	ErrNotCreated = errors.New("plugin instance not created")
	// ErrAlreadyCreated is returned when Create is called twice.
	ErrAlreadyCreated = errors.New("plugin instance already created")
)

// WorkArgs carries the operands of Work.
type WorkArgs struct {
	A int64
	B int64
}

// RPCServer runs in the plugin process and owns the plugin instance.
type RPCServer struct {
	ctor    plugin.Constructor
	version string
	impl    plugin.Plugin
}

// Create constructs the instance and replies with its name.
func (s *RPCServer) Create(_ interface{}, resp *string) (err error) {
	if s.impl != nil {
		return ErrAlreadyCreated
	}
	if s.ctor == nil {
		return errors.New("no constructor configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panicked: %v", r)
		}
	}()
	p := s.ctor()
	if p == nil {
		return errors.New("constructor returned nil")
	}
	s.impl = p
	*resp = p.Name()
	return nil
}

// ABIVersion replies with the contract version the plugin was built against.
func (s *RPCServer) ABIVersion(_ interface{}, resp *string) error {
	*resp = s.version
	return nil
}

// OnLoad forwards the load hook.
func (s *RPCServer) OnLoad(_ interface{}, resp *bool) error {
	if s.impl == nil {
		return ErrNotCreated
	}
	*resp = true
	if h, ok := s.impl.(plugin.LoadHook); ok {
		return h.OnLoad()
	}
	return nil
}

// OnUnload forwards the unload hook and drops the instance.
func (s *RPCServer) OnUnload(_ interface{}, resp *bool) error {
	if s.impl == nil {
		return ErrNotCreated
	}
	*resp = true
	impl := s.impl
	s.impl = nil
	if h, ok := impl.(plugin.UnloadHook); ok {
		return h.OnUnload()
	}
	return nil
}

// Work forwards the domain operation.
func (s *RPCServer) Work(args WorkArgs, resp *int64) error {
	if s.impl == nil {
		return ErrNotCreated
	}
	n, err := s.impl.Work(args.A, args.B)
	if err != nil {
		return err
	}
	*resp = n
	return nil
}

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*RPCClient)(nil)
	_ plugin.LoadHook   = (*RPCClient)(nil)
	_ plugin.UnloadHook = (*RPCClient)(nil)
	_ io.Closer         = (*RPCClient)(nil)
)

// RPCClient runs in the host process. After Create it stands in for the
// remote instance.
type RPCClient struct {
	client *rpc.Client
	name   string
	closed bool
}

// Create asks the plugin process to construct its instance.
// The instance name is cached so Name never crosses the boundary.
func (c *RPCClient) Create() error {
	var name string
	if err := c.client.Call("Plugin.Create", new(interface{}), &name); err != nil {
		return oops.In("pluginsdk").With("operation", "create").Wrap(err)
	}
	c.name = name
	return nil
}

// ABIVersion asks the plugin process for its contract version.
func (c *RPCClient) ABIVersion() (string, error) {
	var version string
	if err := c.client.Call("Plugin.ABIVersion", new(interface{}), &version); err != nil {
		return "", oops.In("pluginsdk").With("operation", "abi_version").Wrap(err)
	}
	return version, nil
}

// Name returns the name reported by Create.
func (c *RPCClient) Name() string {
	return c.name
}

// OnLoad implements plugin.LoadHook.
func (c *RPCClient) OnLoad() error {
	if err := c.client.Call("Plugin.OnLoad", new(interface{}), new(bool)); err != nil {
		return oops.In("pluginsdk").With("plugin", c.name).With("operation", "on_load").Wrap(err)
	}
	return nil
}

// OnUnload implements plugin.UnloadHook.
func (c *RPCClient) OnUnload() error {
	if err := c.client.Call("Plugin.OnUnload", new(interface{}), new(bool)); err != nil {
		return oops.In("pluginsdk").With("plugin", c.name).With("operation", "on_unload").Wrap(err)
	}
	return nil
}

// Close ends the RPC session. The child drops its side of the session;
// calls made afterwards fail with rpc.ErrShutdown. Closing twice is a no-op.
func (c *RPCClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.client.Close(); err != nil && !errors.Is(err, rpc.ErrShutdown) {
		return oops.In("pluginsdk").With("plugin", c.name).With("operation", "close").Wrap(err)
	}
	return nil
}

// Work implements plugin.Plugin.
func (c *RPCClient) Work(a, b int64) (int64, error) {
	var n int64
	if err := c.client.Call("Plugin.Work", WorkArgs{A: a, B: b}, &n); err != nil {
		return 0, oops.In("pluginsdk").With("plugin", c.name).With("operation", "work").Wrap(err)
	}
	return n, nil
}
