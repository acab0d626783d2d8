// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/qmm/internal/config"
)

func TestRun_WritesSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "qmm.schema.json")

	require.NoError(t, run([]string{out}))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	want, err := config.GenerateSchema()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_Check(t *testing.T) {
	out := filepath.Join(t.TempDir(), "qmm.schema.json")

	err := run([]string{"--check", out})
	require.Error(t, err, "missing file fails the check")

	require.NoError(t, run([]string{out}))
	require.NoError(t, run([]string{"--check", out}))

	require.NoError(t, os.WriteFile(out, []byte("{}"), 0o600))
	err = run([]string{"--check", out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}

func TestRun_UnknownFlag(t *testing.T) {
	require.Error(t, run([]string{"--nope"}))
}
