// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package qvm

import (
	"math"

	"github.com/holomush/qmm/pkg/qmmapi"
)

// opStackSize is the depth of the operand stack of one Call.
const opStackSize = 1024

type opStack struct {
	vm   *VM
	pc   *int32
	data [opStackSize]int32
	sp   int
}

func (s *opStack) push(v int32) {
	if s.sp == len(s.data) {
		s.vm.fail(*s.pc, "operand stack overflow")
	}
	s.data[s.sp] = v
	s.sp++
}

func (s *opStack) pop() int32 {
	if s.sp == 0 {
		s.vm.fail(*s.pc, "operand stack underflow")
	}
	s.sp--
	return s.data[s.sp]
}

func (s *opStack) top() *int32 {
	if s.sp == 0 {
		s.vm.fail(*s.pc, "operand stack underflow")
	}
	return &s.data[s.sp-1]
}

func f32(v int32) float32 {
	return math.Float32frombits(uint32(v)) //nolint:gosec // reinterpreting bits
}

func bits(f float32) int32 {
	return int32(math.Float32bits(f)) //nolint:gosec // reinterpreting bits
}

// run interprets from instruction 0 with the program stack at ps until the
// outermost frame returns to the -1 sentinel.
func (vm *VM) run(ps int32) int32 {
	var pc int32
	st := &opStack{vm: vm, pc: &pc}
	code := vm.code
	count := int32(len(code)) //nolint:gosec // bounded by header

	for {
		if pc < 0 || pc >= count {
			vm.fail(pc, "program counter out of range")
		}
		in := code[pc]
		pc++

		switch in.op {
		case OpUndef:
			vm.fail(pc-1, "undefined instruction")
		case OpBreak:
			vm.fail(pc-1, "break")
		case OpIgnore:

		case OpEnter:
			ps -= in.arg
			if ps < vm.stackBottom {
				vm.fail(pc-1, "stack overflow")
			}
		case OpLeave:
			ps += in.arg
			if ps > int32(len(vm.arena))-4 { //nolint:gosec // arena bounded
				vm.fail(pc-1, "stack underflow")
			}
			pc = vm.load4(ps)
			if pc == -1 {
				if st.sp == 0 {
					return 0
				}
				return st.data[st.sp-1]
			}

		case OpCall:
			target := st.pop()
			vm.store4(ps, pc)
			if target < 0 {
				num := -1 - target
				vm.store4(ps+4, num)
				var args qmmapi.SyscallArgs
				for i := range args {
					args[i] = int(vm.load4(ps + 8 + int32(i)*4)) //nolint:gosec // i < 13
				}
				vm.programStack = ps
				st.push(int32(vm.syscall(int(num), args))) //nolint:gosec // VM words are 32-bit
				pc = vm.load4(ps)
				continue
			}
			if target >= count {
				vm.fail(pc-1, "call target %d out of range", target)
			}
			pc = target

		case OpPush:
			st.push(0)
		case OpPop:
			st.pop()
		case OpConst:
			st.push(in.arg)
		case OpLocal:
			st.push(ps + in.arg)
		case OpJump:
			target := st.pop()
			if target < 0 || target >= count {
				vm.fail(pc-1, "jump target %d out of range", target)
			}
			pc = target

		case OpEQ, OpNE, OpLTI, OpLEI, OpGTI, OpGEI, OpLTU, OpLEU, OpGTU, OpGEU,
			OpEQF, OpNEF, OpLTF, OpLEF, OpGTF, OpGEF:
			r0 := st.pop()
			r1 := st.pop()
			if compare(in.op, r1, r0) {
				pc = in.arg
			}

		case OpLoad1:
			t := st.top()
			*t = vm.load1(*t)
		case OpLoad2:
			t := st.top()
			*t = vm.load2(*t)
		case OpLoad4:
			t := st.top()
			*t = vm.load4(*t)
		case OpStore1:
			v := st.pop()
			vm.store1(st.pop(), v)
		case OpStore2:
			v := st.pop()
			vm.store2(st.pop(), v)
		case OpStore4:
			v := st.pop()
			vm.store4(st.pop(), v)
		case OpArg:
			vm.store4(ps+in.arg, st.pop())
		case OpBlockCopy:
			src := st.pop()
			dest := st.pop()
			vm.blockCopy(pc-1, dest, src, in.arg)

		case OpSex8:
			t := st.top()
			*t = int32(int8(*t)) //nolint:gosec // sign extension
		case OpSex16:
			t := st.top()
			*t = int32(int16(*t)) //nolint:gosec // sign extension
		case OpNegI:
			t := st.top()
			*t = -*t
		case OpBCom:
			t := st.top()
			*t = ^*t
		case OpNegF:
			t := st.top()
			*t = bits(-f32(*t))
		case OpCvIF:
			t := st.top()
			*t = bits(float32(*t))
		case OpCvFI:
			t := st.top()
			*t = int32(f32(*t))

		default:
			r0 := st.pop()
			t := st.top()
			*t = vm.binary(pc-1, in.op, *t, r0)
		}
	}
}

func compare(op Op, a, b int32) bool {
	ua, ub := uint32(a), uint32(b) //nolint:gosec // unsigned compares
	fa, fb := f32(a), f32(b)
	switch op {
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	case OpLTI:
		return a < b
	case OpLEI:
		return a <= b
	case OpGTI:
		return a > b
	case OpGEI:
		return a >= b
	case OpLTU:
		return ua < ub
	case OpLEU:
		return ua <= ub
	case OpGTU:
		return ua > ub
	case OpGEU:
		return ua >= ub
	case OpEQF:
		return fa == fb
	case OpNEF:
		return fa != fb
	case OpLTF:
		return fa < fb
	case OpLEF:
		return fa <= fb
	case OpGTF:
		return fa > fb
	default:
		return fa >= fb
	}
}

// binary applies a two-operand instruction to a (second from top) and b
// (top).
func (vm *VM) binary(pc int32, op Op, a, b int32) int32 {
	ua, ub := uint32(a), uint32(b) //nolint:gosec // unsigned arithmetic
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMulI:
		return a * b
	case OpMulU:
		return int32(ua * ub) //nolint:gosec // wraps like the hardware
	case OpDivI, OpModI, OpDivU, OpModU:
		if b == 0 {
			vm.fail(pc, "%s division by zero", op)
		}
		switch op {
		case OpDivI:
			return a / b
		case OpModI:
			return a % b
		case OpDivU:
			return int32(ua / ub) //nolint:gosec // wraps like the hardware
		default:
			return int32(ua % ub) //nolint:gosec // wraps like the hardware
		}
	case OpBAnd:
		return a & b
	case OpBOr:
		return a | b
	case OpBXor:
		return a ^ b
	case OpLsh:
		return a << (ub & 31)
	case OpRshI:
		return a >> (ub & 31)
	case OpRshU:
		return int32(ua >> (ub & 31)) //nolint:gosec // logical shift
	case OpAddF:
		return bits(f32(a) + f32(b))
	case OpSubF:
		return bits(f32(a) - f32(b))
	case OpMulF:
		return bits(f32(a) * f32(b))
	case OpDivF:
		return bits(f32(a) / f32(b))
	}
	vm.fail(pc, "unhandled opcode %s", op)
	return 0
}

func (vm *VM) blockCopy(pc, dest, src, n int32) {
	mask := vm.dataMask
	ud, us, un := uint32(dest), uint32(src), uint32(n) //nolint:gosec // VM addresses
	if ud&mask != ud || us&mask != us || (ud+un)&mask != ud+un || (us+un)&mask != us+un ||
		int(ud)+int(un) > len(vm.arena) || int(us)+int(un) > len(vm.arena) {
		vm.fail(pc, "block copy out of range")
	}
	copy(vm.arena[ud:ud+un], vm.arena[us:us+un])
}
