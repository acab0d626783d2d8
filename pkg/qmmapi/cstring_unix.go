// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build unix

package qmmapi

import "golang.org/x/sys/unix"

// GoString copies the NUL-terminated string at p. A nil p yields "".
func GoString(p *byte) string {
	return unix.BytePtrToString(p)
}
