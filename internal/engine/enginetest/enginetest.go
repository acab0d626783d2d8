// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package enginetest provides an in-process stand-in for a game engine's
// syscall dispatcher: files, console output and fatal errors.
package enginetest

import (
	"sync"
	"unsafe"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Call records one syscall received by the engine.
type Call struct {
	Cmd  int
	Args qmmapi.SyscallArgs
}

// Engine answers the file and console syscalls of a Game. Other messages
// go to Handler, or return 0.
type Engine struct {
	Game    *engine.Game
	Files   map[string][]byte
	Handler func(cmd int, args qmmapi.SyscallArgs) int

	mu      sync.Mutex
	calls   []Call
	printed []string
	fatal   []string
	opened  []string
	open    map[int32][]byte
	offsets map[int32]int
	next    int32
}

// New creates an engine for game with no files.
func New(game *engine.Game) *Engine {
	return &Engine{
		Game:    game,
		Files:   make(map[string][]byte),
		open:    make(map[int32][]byte),
		offsets: make(map[int32]int),
	}
}

// Syscall is the engine dispatcher.
func (e *Engine) Syscall(cmd int, args qmmapi.SyscallArgs) int {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Cmd: cmd, Args: args})
	e.mu.Unlock()

	g := e.Game
	switch cmd {
	case g.MustEngineMsg(engine.MsgPrint):
		e.mu.Lock()
		e.printed = append(e.printed, String(args[0]))
		e.mu.Unlock()
		return 0
	case g.MustEngineMsg(engine.MsgError):
		e.mu.Lock()
		e.fatal = append(e.fatal, String(args[0]))
		e.mu.Unlock()
		return 0
	case g.MustEngineMsg(engine.MsgFSOpen):
		return e.fsOpen(String(args[0]), args[1])
	case g.MustEngineMsg(engine.MsgFSRead):
		return e.fsRead(args[0], args[1], int32(args[2]))
	case g.MustEngineMsg(engine.MsgFSClose):
		e.mu.Lock()
		delete(e.open, int32(args[0]))
		delete(e.offsets, int32(args[0]))
		e.mu.Unlock()
		return 0
	}
	if e.Handler != nil {
		return e.Handler(cmd, args)
	}
	return 0
}

func (e *Engine) fsOpen(name string, handleAddr int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opened = append(e.opened, name)
	data, ok := e.Files[name]
	if !ok {
		*(*int32)(ptr(handleAddr)) = 0
		return -1
	}
	e.next++
	e.open[e.next] = data
	e.offsets[e.next] = 0
	*(*int32)(ptr(handleAddr)) = e.next
	return len(data)
}

func (e *Engine) fsRead(bufAddr, n int, handle int32) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.open[handle]
	if !ok || n <= 0 {
		return 0
	}
	off := e.offsets[handle]
	dst := unsafe.Slice((*byte)(ptr(bufAddr)), n)
	copied := copy(dst, data[off:])
	e.offsets[handle] = off + copied
	return copied
}

// Calls returns every syscall received so far.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Printed returns the console output, one entry per G_PRINT.
func (e *Engine) Printed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.printed...)
}

// Fatal returns the G_ERROR messages.
func (e *Engine) Fatal() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fatal...)
}

// Opened returns every file name passed to G_FS_FOPEN_FILE.
func (e *Engine) Opened() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.opened...)
}

// OpenHandles returns how many files are still open.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// String reads the NUL-terminated string at addr.
func String(addr int) string {
	if addr == 0 {
		return ""
	}
	return qmmapi.GoString((*byte)(ptr(addr)))
}

func ptr(addr int) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr)) //nolint:govet // addresses handed over the engine ABI
}
