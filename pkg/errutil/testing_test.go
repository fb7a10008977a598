// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/plughost/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("PLUGIN_NOT_FOUND").Errorf("no plugin named %q", "Plugin2")
	errutil.AssertErrorCode(t, err, "PLUGIN_NOT_FOUND")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin", "Plugin1").Errorf("hook failed")
	errutil.AssertErrorContext(t, err, "plugin", "Plugin1")
}

func TestAssertSentinel_WrappedSentinel(t *testing.T) {
	errMissing := errors.New("missing")
	err := oops.Code("PLUGIN_NOT_FOUND").With("plugin", "Plugin2").Wrap(fmt.Errorf("lookup: %w", errMissing))
	errutil.AssertSentinel(t, err, errMissing, "PLUGIN_NOT_FOUND")
}
