// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package qvmtest assembles small QVM images for tests.
package qvmtest

import (
	"encoding/binary"

	"github.com/holomush/qmm/internal/qvm"
)

// Program accumulates instructions and segments. Add data words before
// literals; literal addresses follow the data segment.
type Program struct {
	code  []byte
	count int
	data  []byte
	lit   []byte
	bss   int
}

// New returns an empty program.
func New() *Program {
	return &Program{}
}

// Op appends an instruction and returns its index. Instructions with an
// operand take it from arg.
func (p *Program) Op(op qvm.Op, arg ...int32) int {
	idx := p.count
	p.code = append(p.code, byte(op))
	var v int32
	if len(arg) > 0 {
		v = arg[0]
	}
	switch op.OperandSize() {
	case 4:
		p.code = binary.LittleEndian.AppendUint32(p.code, uint32(v)) //nolint:gosec // operand bits
	case 1:
		p.code = append(p.code, byte(v))
	}
	p.count++
	return idx
}

// Raw appends bytes to the code segment and counts them as one
// instruction. It is used to build malformed images.
func (p *Program) Raw(b ...byte) {
	p.code = append(p.code, b...)
	p.count++
}

// Data appends words to the data segment and returns the address of the
// first.
func (p *Program) Data(words ...int32) int32 {
	addr := int32(len(p.data)) //nolint:gosec // test images are small
	for _, w := range words {
		p.data = binary.LittleEndian.AppendUint32(p.data, uint32(w)) //nolint:gosec // word bits
	}
	return addr
}

// String appends a NUL-terminated literal and returns its address.
func (p *Program) String(s string) int32 {
	addr := int32(len(p.data) + len(p.lit)) //nolint:gosec // test images are small
	p.lit = append(p.lit, s...)
	p.lit = append(p.lit, 0)
	return addr
}

// BSS reserves n zeroed bytes after the literals and returns their
// word-aligned address.
func (p *Program) BSS(n int) int32 {
	start := len(p.data) + len(p.lit) + p.bss
	addr := (start + 3) &^ 3
	p.bss += addr - start + n
	return int32(addr) //nolint:gosec // test images are small
}

// Image encodes the program as a QVM file.
func (p *Program) Image() []byte {
	h := qvm.Header{
		Magic:            qvm.Magic,
		InstructionCount: int32(p.count), //nolint:gosec // test images are small
		CodeOffset:       qvm.HeaderSize,
		CodeLength:       int32(len(p.code)), //nolint:gosec // test images are small
		DataLength:       int32(len(p.data)), //nolint:gosec // test images are small
		LitLength:        int32(len(p.lit)),  //nolint:gosec // test images are small
		BSSLength:        int32(p.bss),       //nolint:gosec // test images are small
	}
	h.DataOffset = h.CodeOffset + h.CodeLength

	out := make([]byte, 0, qvm.HeaderSize+len(p.code)+len(p.data)+len(p.lit))
	for _, v := range []int32{
		h.Magic, h.InstructionCount, h.CodeOffset, h.CodeLength,
		h.DataOffset, h.DataLength, h.LitLength, h.BSSLength,
	} {
		out = binary.LittleEndian.AppendUint32(out, uint32(v)) //nolint:gosec // header bits
	}
	out = append(out, p.code...)
	out = append(out, p.data...)
	out = append(out, p.lit...)
	return out
}

// Echo returns an image whose entry point returns cmd + arg0.
func Echo() []byte {
	p := New()
	p.Op(qvm.OpEnter, 16)
	p.Op(qvm.OpLocal, 24)
	p.Op(qvm.OpLoad4)
	p.Op(qvm.OpLocal, 28)
	p.Op(qvm.OpLoad4)
	p.Op(qvm.OpAdd)
	p.Op(qvm.OpLeave, 16)
	return p.Image()
}

// Forwarder returns an image whose entry point makes system call num with
// (cmd, arg0, arg1) and returns its result.
func Forwarder(num int32) []byte {
	p := New()
	p.Op(qvm.OpEnter, 64)
	for i := int32(0); i < 3; i++ {
		p.Op(qvm.OpLocal, 64+8+4*i)
		p.Op(qvm.OpLoad4)
		p.Op(qvm.OpArg, 8+4*i)
	}
	p.Op(qvm.OpConst, -1-num)
	p.Op(qvm.OpCall)
	p.Op(qvm.OpLeave, 64)
	return p.Image()
}
