// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/qmm/internal/plugin"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

func TestCheckVersion(t *testing.T) {
	const major, minor = qmmapi.InterfaceMajor, qmmapi.InterfaceMinor
	tests := []struct {
		name         string
		major, minor int32
		want         plugin.Verdict
		accepted     bool
		advice       string
	}{
		{"exact match", major, minor, plugin.VersionOK, true, ""},
		{"older minor", major, minor - 1, plugin.VersionMinorOld, true, "upgrade the plugin"},
		{"newer minor", major, minor + 1, plugin.VersionMinorNew, false, "upgrade the host"},
		{"newer major", major + 1, 0, plugin.VersionMajorNew, false, "upgrade the host"},
		{"older major", major - 1, 9, plugin.VersionMajorOld, false, "upgrade the plugin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iface, err := plugin.InterfaceVersion(tt.major, tt.minor)
			require.NoError(t, err)
			v := plugin.CheckVersion(iface)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.accepted, v.Accepted())
			assert.Equal(t, tt.advice, v.Advice())
		})
	}
}

func TestInterfaceVersion(t *testing.T) {
	v, err := plugin.InterfaceVersion(0, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", v.String())
	assert.Equal(t, "2.1.0", plugin.HostInterface.String())
}

func TestInterfaceVersion_RejectsNegative(t *testing.T) {
	for _, pair := range [][2]int32{{-1, 3}, {qmmapi.InterfaceMajor, -1}, {-1, -1}} {
		_, err := plugin.InterfaceVersion(pair[0], pair[1])
		require.Error(t, err, "%d.%d", pair[0], pair[1])
		errutil.AssertErrorCode(t, err, "PLUGIN_VERSION_MISMATCH")
		errutil.AssertErrorContext(t, err, "verdict", "invalid")
	}
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "major-new", plugin.VersionMajorNew.String())
	assert.Equal(t, "verdict(42)", plugin.Verdict(42).String())
}
