// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package engine

import "unsafe"

func addrOf(p *int32) int {
	return int(uintptr(unsafe.Pointer(p)))
}
