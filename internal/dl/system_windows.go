// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build windows

package dl

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type systemOpener struct{}

// System returns the platform loader (LoadLibrary).
func System() Opener {
	return systemOpener{}
}

func (systemOpener) Open(path string) (Image, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Handle.Load
	}
	return &systemImage{dll: dll}, nil
}

type systemImage struct {
	dll *windows.DLL
}

func (i *systemImage) Lookup(name string) (uintptr, error) {
	proc, err := i.dll.FindProc(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSymbolNotFound, name, err)
	}
	return proc.Addr(), nil
}

func (i *systemImage) Bind(fptr any, name string) error {
	addr, err := i.Lookup(name)
	if err != nil {
		return err
	}
	return register(fptr, name, addr)
}

func (i *systemImage) Close() error {
	return i.dll.Release() //nolint:wrapcheck // wrapped by Handle.Unload
}
