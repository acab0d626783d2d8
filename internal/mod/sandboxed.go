// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mod

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/qvm"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// FileReader reads whole files through the engine's file layer.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Sandboxed is a game module compiled to QVM bytecode.
type Sandboxed struct {
	game    *engine.Game
	files   FileReader
	syscall engine.Syscall
	opts    options

	vm   *qvm.VM
	path string
}

// NewSandboxed creates an unloaded QVM module. Bytecode system calls are
// passed to syscall with their pointer arguments translated to host
// addresses.
func NewSandboxed(game *engine.Game, files FileReader, syscall engine.Syscall, opts ...Option) *Sandboxed {
	return &Sandboxed{game: game, files: files, syscall: syscall, opts: newOptions(opts)}
}

// Load reads path through the engine and prepares the VM. The engine
// resolves path against its own search paths.
func (s *Sandboxed) Load(path string) error {
	if s.vm != nil {
		return oops.Code("MOD_ALREADY_LOADED").With("path", path).With("loaded", s.path).
			Errorf("qvm mod already loaded")
	}
	image, err := s.files.ReadFile(path)
	if err != nil {
		return err
	}
	vm, err := qvm.New(image, s.handleSyscall, qvm.WithStackSize(s.opts.stackSize))
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	s.vm = vm
	s.path = path
	return nil
}

func (s *Sandboxed) handleSyscall(num int, args qmmapi.SyscallArgs) int {
	for _, i := range s.game.PointerArgs(num) {
		args[i] = int(s.vm.Translate(args[i])) //nolint:gosec // host address as an argument word
	}
	return s.syscall(num, args)
}

// Invoke runs vmMain in the interpreter. A bytecode fault is reported to
// the fault handler and yields 0.
func (s *Sandboxed) Invoke(cmd int, args qmmapi.VMMainArgs) int {
	if s.vm == nil {
		return 0
	}
	ret, err := s.vm.Call(cmd, args)
	if err != nil {
		err = oops.With("path", s.path).With("message", s.game.MessageName(engine.ToMod, cmd)).Wrap(err)
		if s.opts.onFault != nil {
			s.opts.onFault(err)
		} else {
			errutil.LogError(s.opts.logger, "qvm mod fault", err)
		}
		return 0
	}
	return ret
}

// IsVM is true.
func (s *Sandboxed) IsVM() bool { return true }

// Base is the host address of the VM's memory.
func (s *Sandboxed) Base() int {
	if s.vm == nil {
		return 0
	}
	return int(s.vm.Base()) //nolint:gosec // address as an argument word
}

// Status describes the module.
func (s *Sandboxed) Status() string {
	if s.vm == nil {
		return "QVM mod (not loaded)"
	}
	seg := s.vm.Segments()
	return fmt.Sprintf("QVM mod %s (%d instructions, %d bytes data, %d bytes stack)",
		s.path, seg.Instructions, seg.Data, seg.Stack)
}

// Close releases the VM.
func (s *Sandboxed) Close() error {
	if s.vm != nil {
		s.vm.Close()
		s.vm = nil
		s.path = ""
	}
	return nil
}
