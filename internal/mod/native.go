// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mod

import (
	"fmt"

	"github.com/holomush/qmm/internal/dl"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Native is a game module built as a shared library.
type Native struct {
	handle  *dl.Handle
	syscall uintptr
	entry   qmmapi.ModEntryFunc
	vmMain  qmmapi.VMMainFunc
}

// NewNative creates an unloaded native module. syscall is the C function
// pointer handed to the module's dllEntry; the module calls the engine
// through it.
func NewNative(opener dl.Opener, syscall uintptr) *Native {
	return &Native{handle: dl.NewHandle(opener), syscall: syscall}
}

// Load opens path, binds dllEntry and vmMain, and calls dllEntry.
func (n *Native) Load(path string) error {
	if err := n.handle.Load(path); err != nil {
		return err
	}
	if err := n.bind(); err != nil {
		_ = n.handle.Unload()
		return err
	}
	n.entry(n.syscall)
	return nil
}

func (n *Native) bind() error {
	if err := n.handle.Bind(&n.entry, qmmapi.ModEntrySymbol); err != nil {
		return err
	}
	return n.handle.Bind(&n.vmMain, qmmapi.ModVMMainSymbol)
}

// Invoke calls vmMain. It returns 0 when nothing is loaded.
func (n *Native) Invoke(cmd int, args qmmapi.VMMainArgs) int {
	if n.vmMain == nil {
		return 0
	}
	return n.vmMain.Call(cmd, args)
}

// IsVM is false.
func (n *Native) IsVM() bool { return false }

// Base is 0: native modules share the host address space.
func (n *Native) Base() int { return 0 }

// Status describes the module.
func (n *Native) Status() string {
	if !n.handle.Loaded() {
		return "native mod (not loaded)"
	}
	return fmt.Sprintf("native mod %s", n.handle.Path())
}

// Close unloads the library.
func (n *Native) Close() error {
	n.entry = nil
	n.vmMain = nil
	return n.handle.Unload()
}
