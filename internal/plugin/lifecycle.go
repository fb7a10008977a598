// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/plughost/pkg/errutil"
	pluginpkg "github.com/holomush/plughost/pkg/plugin"
)

// Hook names used in logs, errors, and metrics.
const (
	hookLoad   = "on_load"
	hookUnload = "on_unload"
)

// callHook runs the named hook if p implements it. A panic is returned as
// an error.
func callHook(p pluginpkg.Plugin, hook string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", hook, rec)
		}
	}()
	switch hook {
	case hookLoad:
		if h, ok := p.(pluginpkg.LoadHook); ok {
			return h.OnLoad()
		}
	case hookUnload:
		if h, ok := p.(pluginpkg.UnloadHook); ok {
			return h.OnUnload()
		}
	}
	return nil
}

// release drops an instance, freeing any foreign memory it owns. It must
// run while the instance's library is still open.
func (r *registry) release(ctx context.Context, p pluginpkg.Plugin, name string) {
	c, ok := p.(io.Closer)
	if !ok {
		return
	}
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("release panicked: %v", rec)
			}
		}()
		return c.Close()
	}()
	if err != nil {
		errutil.Log(ctx, r.logger, slog.LevelWarn, "failed to release plugin",
			oops.With("plugin", name).Wrap(err))
	}
}

// drain tears everything down in two phases: every instance is unloaded
// and released, then every handle is closed newest first. It returns the
// number of failures, all of which are logged.
func (r *registry) drain(ctx context.Context) int {
	failures := 0

	for _, e := range r.instances {
		if err := callHook(e.plugin, hookUnload); err != nil {
			failures++
			RecordHookFailure(hookUnload)
			errutil.Log(ctx, r.logger, slog.LevelWarn, "plugin unload hook failed",
				oops.Code(CodeHookFailed).
					With("plugin", e.info.Name).
					With("hook", hookUnload).
					Wrap(fmt.Errorf("%w: %w", ErrHookFailure, err)))
		}
	}
	for _, e := range r.instances {
		r.release(ctx, e.plugin, e.info.Name)
		r.logger.DebugContext(ctx, "unloaded plugin", "plugin", e.info.Name, "id", e.info.ID)
	}
	PluginsLoaded.Sub(float64(len(r.instances)))
	r.instances = nil

	for i := len(r.handles) - 1; i >= 0; i-- {
		lib := r.handles[i]
		if err := lib.Close(); err != nil {
			failures++
			errutil.Log(ctx, r.logger, slog.LevelWarn, "failed to close plugin library",
				oops.With("path", lib.Path()).Wrap(err))
		}
	}
	LibrariesOpen.Sub(float64(len(r.handles)))
	r.handles = nil

	return failures
}
