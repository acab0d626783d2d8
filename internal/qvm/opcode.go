// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package qvm

import "fmt"

// Op is a QVM opcode.
type Op uint8

// Opcodes, in encoding order.
const (
	OpUndef Op = iota
	OpIgnore
	OpBreak
	OpEnter
	OpLeave
	OpCall
	OpPush
	OpPop
	OpConst
	OpLocal
	OpJump
	OpEQ
	OpNE
	OpLTI
	OpLEI
	OpGTI
	OpGEI
	OpLTU
	OpLEU
	OpGTU
	OpGEU
	OpEQF
	OpNEF
	OpLTF
	OpLEF
	OpGTF
	OpGEF
	OpLoad1
	OpLoad2
	OpLoad4
	OpStore1
	OpStore2
	OpStore4
	OpArg
	OpBlockCopy
	OpSex8
	OpSex16
	OpNegI
	OpAdd
	OpSub
	OpDivI
	OpDivU
	OpModI
	OpModU
	OpMulI
	OpMulU
	OpBAnd
	OpBOr
	OpBXor
	OpBCom
	OpLsh
	OpRshI
	OpRshU
	OpNegF
	OpAddF
	OpSubF
	OpDivF
	OpMulF
	OpCvIF
	OpCvFI

	opCount
)

var opNames = [opCount]string{
	"UNDEF", "IGNORE", "BREAK", "ENTER", "LEAVE", "CALL", "PUSH", "POP",
	"CONST", "LOCAL", "JUMP", "EQ", "NE", "LTI", "LEI", "GTI", "GEI", "LTU",
	"LEU", "GTU", "GEU", "EQF", "NEF", "LTF", "LEF", "GTF", "GEF", "LOAD1",
	"LOAD2", "LOAD4", "STORE1", "STORE2", "STORE4", "ARG", "BLOCK_COPY",
	"SEX8", "SEX16", "NEGI", "ADD", "SUB", "DIVI", "DIVU", "MODI", "MODU",
	"MULI", "MULU", "BAND", "BOR", "BXOR", "BCOM", "LSH", "RSHI", "RSHU",
	"NEGF", "ADDF", "SUBF", "DIVF", "MULF", "CVIF", "CVFI",
}

func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("OP(%d)", uint8(o))
}

// OperandSize is the number of operand bytes following o in the code
// segment.
func (o Op) OperandSize() int {
	switch {
	case o == OpEnter, o == OpLeave, o == OpConst, o == OpLocal, o == OpBlockCopy:
		return 4
	case o >= OpEQ && o <= OpGEF:
		return 4
	case o == OpArg:
		return 1
	default:
		return 0
	}
}

// isBranch reports whether o's operand is an instruction index.
func (o Op) isBranch() bool {
	return o >= OpEQ && o <= OpGEF
}
