// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build windows

package qmmapi

import "golang.org/x/sys/windows"

// GoString copies the NUL-terminated string at p. A nil p yields "".
func GoString(p *byte) string {
	return windows.BytePtrToString(p)
}
