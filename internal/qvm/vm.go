// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package qvm loads and runs Quake III virtual machine bytecode.
//
// A VM owns one memory arena holding the data, lit and bss segments with
// the program stack above them. Addresses inside bytecode are offsets into
// that arena; Translate turns them into host addresses by adding Base.
package qvm

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/samber/oops"

	"github.com/holomush/qmm/pkg/qmmapi"
)

// DefaultStackSize is the program stack reserved above the bss segment.
const DefaultStackSize = 1 << 20

// SyscallHandler services a call to a negative target. num is the decoded
// system call number and args are the words the bytecode passed, sign
// extended. Pointer arguments are still VM addresses.
type SyscallHandler func(num int, args qmmapi.SyscallArgs) int

// Segments reports the sizes of a loaded VM.
type Segments struct {
	Instructions int
	Data         int
	Stack        int
	Arena        int
}

type instr struct {
	op  Op
	arg int32
}

// VM is a loaded bytecode module. It is not safe for concurrent use, but
// Call may be re-entered from inside a SyscallHandler.
type VM struct {
	header    Header
	code      []instr
	arena     []byte
	dataMask  uint32
	stackSize int

	stackBottom  int32
	programStack int32
	swapped      bool

	syscall SyscallHandler
	pinner  runtime.Pinner
}

// Option configures a VM.
type Option func(*VM)

// WithStackSize sets the program stack size in bytes. Non-positive sizes
// are ignored; others are rounded up to a word.
func WithStackSize(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.stackSize = (n + 3) &^ 3
		}
	}
}

var hostBigEndian = binary.NativeEndian.Uint16([]byte{0, 1}) == 1

// New decodes image and prepares its memory. syscall receives every
// system call the bytecode makes.
func New(image []byte, syscall SyscallHandler, opts ...Option) (*VM, error) {
	if syscall == nil {
		return nil, oops.Code("QVM_INVALID").Errorf("syscall handler is required")
	}
	h, err := ParseHeader(image)
	if err != nil {
		return nil, err
	}

	vm := &VM{header: h, stackSize: DefaultStackSize, syscall: syscall, swapped: hostBigEndian}
	for _, opt := range opts {
		opt(vm)
	}

	if vm.code, err = decode(h, image); err != nil {
		return nil, err
	}

	size := nextPow2(h.DataSize() + vm.stackSize)
	if size > 1<<30 {
		return nil, oops.Code("QVM_BAD_HEADER").With("size", size).Errorf("memory image too large")
	}
	vm.arena = make([]byte, size)
	vm.dataMask = uint32(size - 1) //nolint:gosec // size bounded above
	vm.programStack = int32(size)  //nolint:gosec // size bounded above
	vm.stackBottom = vm.programStack - int32(vm.stackSize) //nolint:gosec // stackSize < size

	data := image[h.DataOffset : h.DataOffset+h.DataLength]
	for i := 0; i < len(data); i += 4 {
		binary.NativeEndian.PutUint32(vm.arena[i:], binary.LittleEndian.Uint32(data[i:]))
	}
	lit := image[h.DataOffset+h.DataLength : h.DataOffset+h.DataLength+h.LitLength]
	copy(vm.arena[h.DataLength:], lit)

	vm.pinner.Pin(&vm.arena[0])
	return vm, nil
}

func decode(h Header, image []byte) ([]instr, error) {
	code := image[h.CodeOffset : h.CodeOffset+h.CodeLength]
	count := int(h.InstructionCount)
	out := make([]instr, count)

	pos := 0
	for i := range out {
		if pos >= len(code) {
			return nil, oops.Code("QVM_BAD_HEADER").With("instruction", i).Errorf("code segment truncated")
		}
		op := Op(code[pos])
		if op >= opCount {
			return nil, oops.Code("QVM_BAD_CODE").With("instruction", i).With("opcode", uint8(op)).
				Errorf("invalid opcode %d", uint8(op))
		}
		pos++
		n := op.OperandSize()
		if pos+n > len(code) {
			return nil, oops.Code("QVM_BAD_HEADER").With("instruction", i).Errorf("code segment truncated")
		}
		var arg int32
		switch n {
		case 4:
			arg = int32(binary.LittleEndian.Uint32(code[pos:])) //nolint:gosec // operand is int32 on disk
		case 1:
			arg = int32(code[pos])
		}
		pos += n
		if op.isBranch() && (arg < 0 || int(arg) >= count) {
			return nil, oops.Code("QVM_BAD_CODE").With("instruction", i).With("target", arg).
				Errorf("%s target out of range", op)
		}
		out[i] = instr{op: op, arg: arg}
	}
	return out, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Header returns the image header.
func (vm *VM) Header() Header {
	return vm.header
}

// Swapped reports whether data words were byte swapped at load because the
// host is big-endian.
func (vm *VM) Swapped() bool {
	return vm.swapped
}

// Segments returns the sizes of the loaded image.
func (vm *VM) Segments() Segments {
	return Segments{
		Instructions: len(vm.code),
		Data:         vm.header.DataSize(),
		Stack:        vm.stackSize,
		Arena:        len(vm.arena),
	}
}

// StackBottom is the lowest VM address the program stack may reach.
func (vm *VM) StackBottom() int32 {
	return vm.stackBottom
}

// Base is the host address of VM address 0, or 0 once closed.
func (vm *VM) Base() uintptr {
	if len(vm.arena) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&vm.arena[0]))
}

// Translate converts a VM address to a host address. The null address
// stays null.
func (vm *VM) Translate(addr int) uintptr {
	if addr == 0 || len(vm.arena) == 0 {
		return 0
	}
	return vm.Base() + uintptr(uint32(addr)&vm.dataMask) //nolint:gosec // VM addresses are 32-bit
}

// Memory returns the arena. Callers must not retain it past Close.
func (vm *VM) Memory() []byte {
	return vm.arena
}

// Close releases the arena. The VM cannot be called afterwards.
func (vm *VM) Close() {
	if vm.arena == nil {
		return
	}
	vm.pinner.Unpin()
	vm.arena = nil
	vm.code = nil
}

// Call runs the module entry point, instruction 0, with cmd and args.
func (vm *VM) Call(cmd int, args qmmapi.VMMainArgs) (ret int, err error) {
	if vm.arena == nil {
		return 0, oops.Code("QVM_CLOSED").Errorf("vm is closed")
	}

	saved := vm.programStack
	defer func() { vm.programStack = saved }()

	ps := saved - (8 + 4*(qmmapi.VMMainArgCount+1))
	if ps < vm.stackBottom {
		return 0, oops.Code("QVM_RUNTIME").With("cmd", cmd).Errorf("stack overflow")
	}
	vm.store4(ps+8, int32(cmd)) //nolint:gosec // VM words are 32-bit
	for i, a := range args {
		vm.store4(ps+12+int32(i)*4, int32(a)) //nolint:gosec // same
	}
	vm.store4(ps+4, 0)
	vm.store4(ps, -1)

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(fault)
			if !ok {
				panic(r)
			}
			ret, err = 0, oops.Code("QVM_RUNTIME").With("cmd", cmd).With("pc", f.pc).Wrap(f.err)
		}
	}()
	return int(vm.run(ps)), nil
}

// fault carries a bytecode error out of the interpreter loop.
type fault struct {
	pc  int32
	err error
}

func (vm *VM) fail(pc int32, format string, args ...any) {
	panic(fault{pc: pc, err: fmt.Errorf(format, args...)})
}

func (vm *VM) load4(addr int32) int32 {
	return int32(binary.NativeEndian.Uint32(vm.arena[uint32(addr)&vm.dataMask&^3:])) //nolint:gosec // VM words
}

func (vm *VM) load2(addr int32) int32 {
	return int32(binary.NativeEndian.Uint16(vm.arena[uint32(addr)&vm.dataMask&^1:])) //nolint:gosec // VM words
}

func (vm *VM) load1(addr int32) int32 {
	return int32(vm.arena[uint32(addr)&vm.dataMask]) //nolint:gosec // VM words
}

func (vm *VM) store4(addr, v int32) {
	binary.NativeEndian.PutUint32(vm.arena[uint32(addr)&vm.dataMask&^3:], uint32(v)) //nolint:gosec // VM words
}

func (vm *VM) store2(addr, v int32) {
	binary.NativeEndian.PutUint16(vm.arena[uint32(addr)&vm.dataMask&^1:], uint16(v)) //nolint:gosec // VM words
}

func (vm *VM) store1(addr, v int32) {
	vm.arena[uint32(addr)&vm.dataMask] = byte(v) //nolint:gosec // VM words
}
