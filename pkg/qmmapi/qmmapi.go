// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package qmmapi defines the binary contract shared by the qmm host, the
// game module it fronts, and the plugins it attaches.
//
// Everything here mirrors a C declaration the engine or a plugin was built
// against. Field order, integer widths and symbol names must not change
// without bumping InterfaceMajor.
//
// A plugin exports seven C functions:
//
//	void     QMM_Query(plugininfo_t** pinfo);
//	int      QMM_Attach(eng_syscall_t engfunc, mod_vmMain_t modfunc,
//	                    pluginres_t* presult, pluginfuncs_t* pluginfuncs,
//	                    intptr_t vmbase);
//	void     QMM_Detach(void);
//	intptr_t QMM_vmMain(intptr_t cmd, intptr_t arg0, ..., intptr_t arg11);
//	intptr_t QMM_vmMain_Post(intptr_t cmd, intptr_t arg0, ..., intptr_t arg11);
//	intptr_t QMM_syscall(intptr_t cmd, intptr_t arg0, ..., intptr_t arg12);
//	intptr_t QMM_syscall_Post(intptr_t cmd, intptr_t arg0, ..., intptr_t arg12);
//
// Each hook must store one of the Result values through presult before it
// returns.
package qmmapi

// Plugin interface version implemented by this host. A plugin must report
// the same major version to attach; a lower minor version is accepted with
// a warning, a higher one is rejected.
const (
	InterfaceMajor = 2
	InterfaceMinor = 1
)

// Plugin entry point symbol names.
const (
	QuerySymbol       = "QMM_Query"
	AttachSymbol      = "QMM_Attach"
	DetachSymbol      = "QMM_Detach"
	VMMainSymbol      = "QMM_vmMain"
	VMMainPostSymbol  = "QMM_vmMain_Post"
	SyscallSymbol     = "QMM_syscall"
	SyscallPostSymbol = "QMM_syscall_Post"
)

// Native game module entry point symbol names.
const (
	ModEntrySymbol  = "dllEntry"
	ModVMMainSymbol = "vmMain"
)

// Fixed argument counts following the command for each call direction.
const (
	VMMainArgCount  = 12
	SyscallArgCount = 13
)

// VMMainArgs are the arguments of an engine to mod call.
type VMMainArgs [VMMainArgCount]int

// SyscallArgs are the arguments of a mod to engine call.
type SyscallArgs [SyscallArgCount]int

// Result is the per-call outcome a plugin reports through its result flag.
type Result int32

// Result values, lowest precedence first.
const (
	Unused    Result = -2
	Error     Result = -1
	Ignored   Result = 0
	Override  Result = 1
	Supersede Result = 2
)

func (r Result) String() string {
	switch r {
	case Unused:
		return "unused"
	case Error:
		return "error"
	case Ignored:
		return "ignored"
	case Override:
		return "override"
	case Supersede:
		return "supersede"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the defined Result values.
func (r Result) Valid() bool {
	return r >= Unused && r <= Supersede
}

// PluginInfo mirrors plugininfo_t. The strings are NUL-terminated and owned
// by the plugin image; they stay valid until the image is unloaded.
type PluginInfo struct {
	Name           *byte
	Version        *byte
	Desc           *byte
	Author         *byte
	URL            *byte
	InterfaceMajor int32
	InterfaceMinor int32
}

// Log severities accepted by the WriteLog utility function.
const (
	SeverityDebug int32 = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// UtilityFuncs mirrors pluginfuncs_t, the table of host helpers handed to
// every plugin at attach time. Each field is a C function pointer.
//
//	void     (*WriteLog)(const char* text, int severity);
//	intptr_t (*GetConfigInt)(const char* key, intptr_t fallback);
//	int      (*IsVM)(void);
//	intptr_t (*MemoryBase)(void);
type UtilityFuncs struct {
	WriteLog     uintptr
	GetConfigInt uintptr
	IsVM         uintptr
	MemoryBase   uintptr
}
