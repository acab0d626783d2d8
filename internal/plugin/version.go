// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/holomush/qmm/pkg/qmmapi"
)

// HostInterface is the plugin interface version this host implements.
var HostInterface = semver.New(qmmapi.InterfaceMajor, qmmapi.InterfaceMinor, 0, "", "")

// Verdict is the outcome of comparing a plugin's interface version with
// HostInterface.
type Verdict int

// Version verdicts.
const (
	// VersionOK is an exact major and minor match.
	VersionOK Verdict = iota
	// VersionMinorOld is an older minor version. The plugin attaches with
	// a warning.
	VersionMinorOld
	// VersionMinorNew is a newer minor version than the host knows.
	VersionMinorNew
	// VersionMajorNew is a newer major version than the host knows.
	VersionMajorNew
	// VersionMajorOld is an older major version the host no longer speaks.
	VersionMajorOld
)

func (v Verdict) String() string {
	switch v {
	case VersionOK:
		return "ok"
	case VersionMinorOld:
		return "minor-old"
	case VersionMinorNew:
		return "minor-new"
	case VersionMajorNew:
		return "major-new"
	case VersionMajorOld:
		return "major-old"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Accepted reports whether a plugin with this verdict may attach.
func (v Verdict) Accepted() bool {
	return v == VersionOK || v == VersionMinorOld
}

// Advice tells the operator what to upgrade, or "" when nothing is needed.
func (v Verdict) Advice() string {
	switch v {
	case VersionMinorOld, VersionMajorOld:
		return "upgrade the plugin"
	case VersionMinorNew, VersionMajorNew:
		return "upgrade the host"
	default:
		return ""
	}
}

// CheckVersion compares a plugin interface version with HostInterface.
// Only major and minor take part.
func CheckVersion(v *semver.Version) Verdict {
	switch {
	case v.Major() > HostInterface.Major():
		return VersionMajorNew
	case v.Major() < HostInterface.Major():
		return VersionMajorOld
	case v.Minor() > HostInterface.Minor():
		return VersionMinorNew
	case v.Minor() < HostInterface.Minor():
		return VersionMinorOld
	default:
		return VersionOK
	}
}

// InterfaceVersion builds a version from the pair a plugin reports. A
// negative component is a PLUGIN_VERSION_MISMATCH.
func InterfaceVersion(major, minor int32) (*semver.Version, error) {
	if major < 0 || minor < 0 {
		return nil, oops.Code("PLUGIN_VERSION_MISMATCH").
			With("plugin_interface", fmt.Sprintf("%d.%d", major, minor)).
			With("host_interface", HostInterface.String()).
			With("verdict", "invalid").
			Errorf("plugin interface %d.%d is not a valid version: upgrade the plugin", major, minor)
	}
	return semver.New(uint64(major), uint64(minor), 0, "", ""), nil
}
