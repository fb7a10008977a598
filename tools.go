// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main pins the tools used by the build to go.mod.
// See https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module
package main

import (
	// Ginkgo CLI for running the lifecycle suites
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	// Leak checks around the plugin manager
	_ "go.uber.org/goleak"
)
