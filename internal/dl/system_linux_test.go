// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build linux

package dl_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/qmm/internal/dl"
	"github.com/holomush/qmm/pkg/errutil"
)

func TestSystem_LoadsSharedObject(t *testing.T) {
	h := dl.NewHandle(nil)
	if err := h.Load("libc.so.6"); err != nil {
		t.Skipf("libc.so.6 not available: %v", err)
	}
	t.Cleanup(func() { _ = h.Unload() })

	var getpid func() int32
	require.NoError(t, h.Bind(&getpid, "getpid"))
	assert.Equal(t, int32(os.Getpid()), getpid()) //nolint:gosec // pid fits

	_, err := h.Lookup("QMM_Query")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dl.ErrSymbolNotFound))
	errutil.AssertErrorCode(t, err, "DL_SYMBOL_NOT_FOUND")
}
