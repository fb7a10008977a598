// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import "errors"

// Error codes attached to manager errors with oops.Code.
const (
	CodeOpenFailed      = "PLUGIN_OPEN_FAILED"
	CodeSymbolNotFound  = "PLUGIN_SYMBOL_NOT_FOUND"
	CodeConstructFailed = "PLUGIN_CONSTRUCT_FAILED"
	CodeABIMismatch     = "PLUGIN_ABI_MISMATCH"
	CodeDuplicateName   = "PLUGIN_DUPLICATE_NAME"
	CodeHookFailed      = "PLUGIN_HOOK_FAILED"
	CodeNotFound        = "PLUGIN_NOT_FOUND"
	CodeManagerClosed   = "PLUGIN_MANAGER_CLOSED"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrOpenFailed is returned when an image is missing or cannot be opened.
	ErrOpenFailed = errors.New("cannot open plugin image")
	// ErrSymbolNotFound is returned when an image lacks a usable constructor.
	ErrSymbolNotFound = errors.New("plugin constructor not found")
	// ErrConstructFailed is returned when the constructor panics or returns nothing.
	ErrConstructFailed = errors.New("plugin constructor failed")
	// ErrABIMismatch is returned when an image's contract version is missing
	// or outside the configured constraint.
	ErrABIMismatch = errors.New("plugin contract version mismatch")
	// ErrDuplicateName is returned when unique names are enforced and a
	// plugin with the same name is already registered.
	ErrDuplicateName = errors.New("plugin name already registered")
	// ErrHookFailure is returned when a plugin's load hook fails.
	ErrHookFailure = errors.New("plugin hook failed")
	// ErrNotFound is returned when no registered plugin has the requested name.
	ErrNotFound = errors.New("plugin not found")
	// ErrManagerClosed is returned when loading into a closed manager.
	ErrManagerClosed = errors.New("plugin manager is closed")
)
