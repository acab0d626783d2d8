// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build windows

package main

import (
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// selfPath is the path of the DLL containing this code.
func selfPath() string {
	var mod windows.Handle
	addr := reflect.ValueOf(selfPath).Pointer()
	flags := uint32(windows.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT)
	//nolint:govet // the API takes an address in place of a name with FROM_ADDRESS
	if err := windows.GetModuleHandleEx(flags, (*uint16)(unsafe.Pointer(addr)), &mod); err != nil {
		return ""
	}
	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(mod, &buf[0], uint32(len(buf)))
	if err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}
