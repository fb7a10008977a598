// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry wraps a Loader and retries failed opens with exponential backoff.
// Missing files and unrouted paths fail immediately.
type Retry struct {
	next    Loader
	retries uint64
	backoff time.Duration
}

// Compile-time interface check.
var _ Loader = (*Retry)(nil)

// NewRetry returns next itself when retries is zero.
func NewRetry(next Loader, retries uint64, backoff time.Duration) Loader {
	if retries == 0 {
		return next
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Retry{next: next, retries: retries, backoff: backoff}
}

// Open implements Loader.
func (r *Retry) Open(ctx context.Context, path string) (Library, error) {
	var lib Library
	attempt := 0
	b := retry.WithMaxRetries(r.retries, retry.NewExponential(r.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		lib, err = r.next.Open(ctx, path)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrNoBackend) || errors.Is(err, ErrUnsupported) {
			return err
		}
		slog.DebugContext(ctx, "plugin open failed, retrying",
			"path", path,
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		//nolint:wrapcheck // the wrapped loader already annotates its errors
		return nil, err
	}
	return lib, nil
}
