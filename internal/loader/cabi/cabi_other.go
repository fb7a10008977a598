// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !(linux || darwin || freebsd)

package cabi

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/loader"
)

// Loader opens C-ABI plugin images.
type Loader struct{}

// New creates a C-ABI loader.
func New() *Loader {
	return &Loader{}
}

// Open implements loader.Loader.
func (l *Loader) Open(_ context.Context, path string) (loader.Library, error) {
	return nil, oops.In("cabi").With("path", path).Wrap(loader.ErrUnsupported)
}
