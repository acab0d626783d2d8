// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build darwin || freebsd || linux || windows

package dl

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// register binds the function at addr into fptr. purego panics on func
// shapes it cannot call; that is reported as an error instead.
func register(fptr any, name string, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind %s: %v", name, r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}
