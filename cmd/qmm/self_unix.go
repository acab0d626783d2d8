// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build unix

package main

/*
#cgo linux LDFLAGS: -ldl
#define _GNU_SOURCE
#include <dlfcn.h>
#include <stddef.h>

static const char* qmm_self_path(void) {
	Dl_info info;
	if (dladdr((void*)qmm_self_path, &info) != 0 && info.dli_fname != NULL) {
		return info.dli_fname;
	}
	return NULL;
}
*/
import "C"

// selfPath is the path the dynamic loader opened this library from.
func selfPath() string {
	p := C.qmm_self_path()
	if p == nil {
		return ""
	}
	return C.GoString(p)
}
