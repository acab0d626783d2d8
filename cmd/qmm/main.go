// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command qmm is the host library the engine loads in place of its game
// module. Build it with -buildmode=c-shared, name it after the game's
// module, and rename the original module to qmm_<name> next to it.
package main

import "C"

import (
	"fmt"
	"os"

	"github.com/holomush/qmm/internal/host"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

// process holds the live host. The engine's C entry points have no
// context argument to carry it.
var process = host.NewProcess()

//export dllEntry
func dllEntry(syscall uintptr) {
	host.Version = fmt.Sprintf("%s (%s)", version, commit)

	if _, err := process.Boot(selfPath(), host.ForeignSyscall(syscall)); err != nil {
		fmt.Fprintf(os.Stderr, "[QMM] startup failed: %v\n", err)
	}
}

//export vmMain
func vmMain(cmd, a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11 int) int {
	return process.VMMain(cmd, qmmapi.VMMainArgs{a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10, a11})
}

func main() {}
