package compiler

import "github.com/emberlang/ember/internal/chunk"

// Local aliases for the opcodes this package emits, under shorter names.
const (
	opConstant     = chunk.OpConstant
	opNil          = chunk.OpNil
	opTrue         = chunk.OpTrue
	opFalse        = chunk.OpFalse
	opPop          = chunk.OpPop
	opGetLocal     = chunk.OpGetLocal
	opSetLocal     = chunk.OpSetLocal
	opGetGlobal    = chunk.OpGetGlobal
	opDefineGlobal = chunk.OpDefineGlobal
	opSetGlobal    = chunk.OpSetGlobal
	opEqual        = chunk.OpEqual
	opGreater      = chunk.OpGreater
	opLess         = chunk.OpLess
	opAdd          = chunk.OpAdd
	opSubtract     = chunk.OpSubtract
	opMultiply     = chunk.OpMultiply
	opDivide       = chunk.OpDivide
	opNot          = chunk.OpNot
	opNegate       = chunk.OpNegate
	opPrint        = chunk.OpPrint
	opJump         = chunk.OpJump
	opJumpIfFalse  = chunk.OpJumpIfFalse
	opLoop         = chunk.OpLoop
	opReturn       = chunk.OpReturn
)
