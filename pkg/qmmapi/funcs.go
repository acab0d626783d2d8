// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package qmmapi

import "unsafe"

// Fixed-arity signatures of the foreign entry points. They are bound to
// symbols with purego, which needs every argument spelled out.
type (
	// QueryFunc is QMM_Query.
	QueryFunc func(info **PluginInfo)
	// AttachFunc is QMM_Attach. A non-zero return accepts the attach.
	AttachFunc func(engine, mod uintptr, result *Result, funcs *UtilityFuncs, base int) int32
	// DetachFunc is QMM_Detach.
	DetachFunc func()
	// ModEntryFunc is the native mod's dllEntry.
	ModEntryFunc func(syscall uintptr)
	// VMMainFunc is vmMain and the QMM_vmMain hooks.
	VMMainFunc func(cmd, a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11 int) int
	// SyscallFunc is the engine syscall and the QMM_syscall hooks.
	SyscallFunc func(cmd, a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11, a12 int) int
)

// Call invokes f with args spread over the fixed parameters.
func (f VMMainFunc) Call(cmd int, args VMMainArgs) int {
	return f(cmd, args[0], args[1], args[2], args[3], args[4], args[5],
		args[6], args[7], args[8], args[9], args[10], args[11])
}

// Call invokes f with args spread over the fixed parameters.
func (f SyscallFunc) Call(cmd int, args SyscallArgs) int {
	return f(cmd, args[0], args[1], args[2], args[3], args[4], args[5],
		args[6], args[7], args[8], args[9], args[10], args[11], args[12])
}

// VMMain adapts fn to the fixed-arity VMMainFunc shape.
func VMMain(fn func(cmd int, args VMMainArgs) int) VMMainFunc {
	return func(cmd, a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11 int) int {
		return fn(cmd, VMMainArgs{a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11})
	}
}

// Syscall adapts fn to the fixed-arity SyscallFunc shape.
func Syscall(fn func(cmd int, args SyscallArgs) int) SyscallFunc {
	return func(cmd, a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11, a12 int) int {
		return fn(cmd, SyscallArgs{a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11, a12})
	}
}

// CString returns a NUL-terminated copy of s. The caller keeps the slice
// alive for as long as foreign code may read it.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// Addr returns the address of the first byte of b as an integer argument,
// or 0 for an empty slice.
func Addr(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(uintptr(unsafe.Pointer(&b[0])))
}
