// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin loads plugin images and manages the lifetime of the
// instances they construct.
//
// A Manager keeps two ordered lists: the library handles it opened and the
// plugin instances built from them. Instances are always torn down before
// any handle is closed, because an instance's code and dispatch data live
// inside its image.
//
// A Manager is not safe for concurrent use. Wrap it in a Guarded when more
// than one goroutine needs it.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/pkg/errutil"
	pluginpkg "github.com/holomush/plughost/pkg/plugin"
)

var tracer = otel.Tracer("plughost/plugin")

// Manager owns plugin instances and the library handles backing them.
type Manager struct {
	reg     *registry
	cleanup runtime.Cleanup
}

// registry holds the state the implicit shutdown needs. It must never
// point back at its Manager, or the cleanup would keep the Manager alive.
type registry struct {
	loader        loader.Loader
	logger        *slog.Logger
	uniqueNames   bool
	abiConstraint *semver.Constraints

	instances []*entry
	handles   []loader.Library
	closed    bool
}

type entry struct {
	plugin pluginpkg.Plugin
	info   pluginpkg.Info
}

// ManagerOption configures the Manager.
type ManagerOption func(*registry)

// WithUniqueNames rejects a plugin whose name is already registered.
// By default duplicates are kept and Get returns the first one loaded.
func WithUniqueNames() ManagerOption {
	return func(r *registry) {
		r.uniqueNames = true
	}
}

// WithABIConstraint requires every image to export a contract version that
// satisfies c. Images without a version are rejected.
func WithABIConstraint(c *semver.Constraints) ManagerOption {
	return func(r *registry) {
		r.abiConstraint = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(r *registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewManager creates a manager that opens images with l.
// Panics if l is nil.
//
// Instances still registered when the Manager becomes unreachable are
// unloaded by a runtime cleanup. Call Close to unload deterministically.
func NewManager(l loader.Loader, opts ...ManagerOption) *Manager {
	if l == nil {
		panic("plugin: loader cannot be nil")
	}
	r := &registry{loader: l, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	m := &Manager{reg: r}
	m.cleanup = runtime.AddCleanup(m, func(r *registry) {
		r.drain(context.Background())
	}, r)
	return m
}

// Load opens the image at path, constructs its plugin, runs the load hook,
// and registers the instance.
//
// Once the image is open its handle stays tracked even if a later step
// fails; it is closed by UnloadAll.
func (m *Manager) Load(ctx context.Context, path string) (err error) {
	ctx, span := tracer.Start(ctx, "plugin.load",
		trace.WithAttributes(attribute.String("plugin.path", path)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e, err := m.reg.load(ctx, path)
	RecordLoad(resultOf(err))
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("plugin.name", e.info.Name),
		attribute.String("plugin.id", e.info.ID),
	)
	return nil
}

// LoadAll loads each path in order.
//
// Failures are logged and skipped so that one broken image does not keep
// the rest from loading. The returned error joins every failure.
func (m *Manager) LoadAll(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := m.Load(ctx, path); err != nil {
			errutil.Log(ctx, m.reg.logger, slog.LevelError, "failed to load plugin", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the first registered plugin named name. The reference is
// borrowed and valid until the next UnloadAll or Close.
func (m *Manager) Get(name string) (pluginpkg.Plugin, error) {
	if e := m.reg.find(name); e != nil {
		return e.plugin, nil
	}
	return nil, oops.Code(CodeNotFound).With("plugin", name).Wrap(ErrNotFound)
}

// UnloadAll runs every unload hook, releases every instance, and then
// closes every library handle in reverse order of opening. Failures are
// logged and do not stop the drain. Calling it again is a no-op.
func (m *Manager) UnloadAll(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "plugin.unload_all",
		trace.WithAttributes(
			attribute.Int("plugin.instances", len(m.reg.instances)),
			attribute.Int("plugin.handles", len(m.reg.handles)),
		),
	)
	defer span.End()

	if failures := m.reg.drain(ctx); failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d unload failures", failures))
	}
}

// Close unloads everything and rejects further loads. It always returns nil.
func (m *Manager) Close() error {
	m.UnloadAll(context.Background())
	m.reg.closed = true
	m.cleanup.Stop()
	return nil
}

// Names returns the registered plugin names in load order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.reg.instances))
	for _, e := range m.reg.instances {
		names = append(names, e.info.Name)
	}
	return names
}

// Infos describes the registered plugins in load order.
func (m *Manager) Infos() []pluginpkg.Info {
	infos := make([]pluginpkg.Info, 0, len(m.reg.instances))
	for _, e := range m.reg.instances {
		infos = append(infos, e.info)
	}
	return infos
}

// Len returns the number of registered plugins.
func (m *Manager) Len() int {
	return len(m.reg.instances)
}

// Handles returns the number of tracked library handles. It can exceed Len
// when loads failed after their image was opened.
func (m *Manager) Handles() int {
	return len(m.reg.handles)
}

func (r *registry) find(name string) *entry {
	for _, e := range r.instances {
		if e.info.Name == name {
			return e
		}
	}
	return nil
}

func (r *registry) load(ctx context.Context, path string) (*entry, error) {
	if r.closed {
		return nil, oops.Code(CodeManagerClosed).With("path", path).Wrap(ErrManagerClosed)
	}

	lib, err := r.loader.Open(ctx, path)
	if err != nil {
		return nil, oops.Code(CodeOpenFailed).
			With("path", path).
			Wrap(fmt.Errorf("%w: %w", ErrOpenFailed, err))
	}
	r.handles = append(r.handles, lib)
	LibrariesOpen.Inc()

	if err := r.checkABI(lib); err != nil {
		return nil, err
	}

	ctor, err := lib.Constructor()
	if err != nil {
		return nil, oops.Code(CodeSymbolNotFound).
			With("path", path).
			With("backend", lib.Backend()).
			Wrap(fmt.Errorf("%w: %w", ErrSymbolNotFound, err))
	}

	p, err := construct(ctor)
	if err != nil {
		return nil, oops.Code(CodeConstructFailed).
			With("path", path).
			Wrap(fmt.Errorf("%w: %w", ErrConstructFailed, err))
	}
	name, err := nameOf(p)
	if err != nil {
		r.release(ctx, p, "")
		return nil, oops.Code(CodeConstructFailed).
			With("path", path).
			Wrap(fmt.Errorf("%w: %w", ErrConstructFailed, err))
	}

	if r.uniqueNames && r.find(name) != nil {
		r.release(ctx, p, name)
		return nil, oops.Code(CodeDuplicateName).
			With("path", path).
			With("plugin", name).
			Wrap(ErrDuplicateName)
	}

	if err := callHook(p, hookLoad); err != nil {
		RecordHookFailure(hookLoad)
		r.release(ctx, p, name)
		return nil, oops.Code(CodeHookFailed).
			With("path", path).
			With("plugin", name).
			With("hook", hookLoad).
			Wrap(fmt.Errorf("%w: %w", ErrHookFailure, err))
	}

	e := &entry{
		plugin: p,
		info: pluginpkg.Info{
			ID:       ulid.Make().String(),
			Name:     name,
			Path:     path,
			Backend:  lib.Backend(),
			LoadedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	r.instances = append(r.instances, e)
	PluginsLoaded.Inc()

	r.logger.InfoContext(ctx, "loaded plugin",
		"plugin", name,
		"path", path,
		"backend", e.info.Backend,
		"id", e.info.ID)
	return e, nil
}

func (r *registry) checkABI(lib loader.Library) error {
	if r.abiConstraint == nil {
		return nil
	}
	mismatch := func(err error) error {
		return oops.Code(CodeABIMismatch).
			With("path", lib.Path()).
			With("constraint", r.abiConstraint.String()).
			Hint(fmt.Sprintf("build the image against contract %s", pluginpkg.ContractVersion)).
			Wrap(fmt.Errorf("%w: %w", ErrABIMismatch, err))
	}

	raw, err := lib.ABIVersion()
	if err != nil {
		return mismatch(err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return mismatch(err)
	}
	if !r.abiConstraint.Check(v) {
		return mismatch(fmt.Errorf("version %s does not satisfy %s", v, r.abiConstraint))
	}
	return nil
}

// construct calls ctor, turning a panic or a nil instance into an error.
func construct(ctor loader.Constructor) (p pluginpkg.Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("constructor panicked: %v", rec)
		}
	}()
	p, err = ctor()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("constructor returned nil")
	}
	return p, nil
}

// nameOf reads the instance name, turning a panic into an error.
func nameOf(p pluginpkg.Plugin) (name string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			name, err = "", fmt.Errorf("name panicked: %v", rec)
		}
	}()
	return p.Name(), nil
}

// resultOf maps a load error to its metrics label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrManagerClosed):
		return ResultManagerClosed
	case errors.Is(err, ErrOpenFailed):
		return ResultOpenFailed
	case errors.Is(err, ErrABIMismatch):
		return ResultABIMismatch
	case errors.Is(err, ErrSymbolNotFound):
		return ResultSymbolNotFound
	case errors.Is(err, ErrConstructFailed):
		return ResultConstructFailed
	case errors.Is(err, ErrDuplicateName):
		return ResultDuplicateName
	default:
		return ResultHookFailed
	}
}
