// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package engine

import (
	"bytes"
	"runtime"

	"github.com/samber/oops"

	"github.com/holomush/qmm/pkg/qmmapi"
)

// Syscall is the engine's dispatcher as seen from Go.
type Syscall func(cmd int, args qmmapi.SyscallArgs) int

// Call invokes sys with up to 13 arguments; missing arguments are zero.
func Call(sys Syscall, cmd int, args ...int) int {
	var a qmmapi.SyscallArgs
	copy(a[:], args)
	return sys(cmd, a)
}

// fsRead is the engine's fsMode_t for reading.
const fsRead = 0

// maxModuleSize bounds how much the engine file layer may hand back for a
// single module image.
const maxModuleSize = 64 << 20

// FS reads files through the engine's own file layer, so pak files and
// search paths resolve exactly as they do for the engine.
type FS struct {
	call             Syscall
	open, read, shut int
}

// NewFS creates a file reader for game over call.
func NewFS(game *Game, call Syscall) *FS {
	return &FS{
		call: call,
		open: game.MustEngineMsg(MsgFSOpen),
		read: game.MustEngineMsg(MsgFSRead),
		shut: game.MustEngineMsg(MsgFSClose),
	}
}

// ReadHeader returns up to n bytes from the start of name.
func (f *FS) ReadHeader(name string, n int) ([]byte, error) {
	return f.readFile(name, n)
}

// ReadFile returns the whole of name.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return f.readFile(name, -1)
}

func (f *FS) readFile(name string, limit int) ([]byte, error) {
	// The engine reads the name and writes the file handle through these
	// pointers, so both stay put for the duration of the call.
	var pinner runtime.Pinner
	defer pinner.Unpin()
	cname := qmmapi.CString(name)
	pinner.Pin(&cname[0])
	handle := new(int32)
	pinner.Pin(handle)

	size := Call(f.call, f.open, qmmapi.Addr(cname), addrOf(handle), fsRead)
	if size < 0 || *handle == 0 {
		return nil, oops.Code("ENGINE_FILE_NOT_FOUND").With("file", name).Errorf("file not found: %s", name)
	}
	defer Call(f.call, f.shut, int(*handle))

	if size > maxModuleSize {
		return nil, oops.Code("ENGINE_FILE_TOO_LARGE").
			With("file", name).
			With("size", size).
			Errorf("file too large: %s", name)
	}
	if limit >= 0 && limit < size {
		size = limit
	}
	buf := make([]byte, size)
	if size > 0 {
		Call(f.call, f.read, qmmapi.Addr(buf), size, int(*handle))
		runtime.KeepAlive(buf)
	}
	return buf, nil
}

// Console writes log output to the engine console through G_PRINT.
type Console struct {
	call  Syscall
	print int
}

// NewConsole creates a console writer for game over call.
func NewConsole(game *Game, call Syscall) *Console {
	return &Console{call: call, print: game.MustEngineMsg(MsgPrint)}
}

// Write prints p. Embedded NUL bytes would truncate the engine's copy, so
// they are dropped.
func (c *Console) Write(p []byte) (int, error) {
	text := bytes.ReplaceAll(p, []byte{0}, nil)
	ctext := append(text, 0) //nolint:gocritic // fresh slice from ReplaceAll
	Call(c.call, c.print, qmmapi.Addr(ctext))
	runtime.KeepAlive(ctext)
	return len(p), nil
}

// Fatal reports msg through G_ERROR. A real engine does not return from it.
func Fatal(game *Game, call Syscall, msg string) {
	var pinner runtime.Pinner
	defer pinner.Unpin()
	cmsg := qmmapi.CString(msg)
	pinner.Pin(&cmsg[0])
	Call(call, game.MustEngineMsg(MsgError), qmmapi.Addr(cmsg))
}
