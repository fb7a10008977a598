// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !((linux || darwin || freebsd) && cgo)

package native

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/loader"
)

// Open implements loader.Loader. Go plugins need cgo on linux, darwin or freebsd.
func (l *Loader) Open(_ context.Context, path string) (loader.Library, error) {
	return nil, oops.In("native").With("path", path).Wrap(loader.ErrUnsupported)
}
