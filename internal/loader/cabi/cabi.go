// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cabi opens shared objects that expose plugins through a plain C
// ABI. No cgo is required; symbols are resolved and called with purego.
//
// An image exports two functions:
//
//	plughost_object *_plugin_create(void);
//	const char      *_plugin_abi_version(void); // optional
//
// The returned object points at a dispatch table that lives inside the
// image:
//
//	typedef struct {
//	    const char *(*name)(void *self);
//	    int         (*on_load)(void *self);   // 0 on success
//	    int         (*on_unload)(void *self); // 0 on success
//	    int64_t     (*work)(void *self, int64_t a, int64_t b);
//	    void        (*destroy)(void *self);
//	} plughost_vtable;
//
//	typedef struct {
//	    const plughost_vtable *vt;
//	    void                  *self;
//	} plughost_object;
//
// destroy releases self and everything _plugin_create allocated for it.
// Because the table and the code behind it are part of the image, every
// instance must be released before its library is closed.
package cabi

// Well-known C symbols.
const (
	CreateSymbol     = "_plugin_create"
	ABIVersionSymbol = "_plugin_abi_version"
)
