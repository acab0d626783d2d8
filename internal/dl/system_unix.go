// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build darwin || freebsd || linux

package dl

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type systemOpener struct{}

// System returns the platform loader (dlopen with RTLD_NOW|RTLD_LOCAL).
func System() Opener {
	return systemOpener{}
}

func (systemOpener) Open(path string) (Image, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Handle.Load
	}
	return &systemImage{handle: h}, nil
}

type systemImage struct {
	handle uintptr
}

func (i *systemImage) Lookup(name string) (uintptr, error) {
	addr, err := purego.Dlsym(i.handle, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSymbolNotFound, name, err)
	}
	return addr, nil
}

func (i *systemImage) Bind(fptr any, name string) error {
	addr, err := i.Lookup(name)
	if err != nil {
		return err
	}
	return register(fptr, name, addr)
}

func (i *systemImage) Close() error {
	return purego.Dlclose(i.handle) //nolint:wrapcheck // wrapped by Handle.Unload
}
