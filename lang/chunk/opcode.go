// Package chunk implements the bytecode instruction set: the Opcode enum,
// its metadata (name, operand width, stack effect), byte-level encode/
// decode helpers for value.Chunk, and a disassembler/assembler textual
// round-trip used by tests to construct programs without going through the
// scanner/compiler. See spec.md §4.3 "Instruction set".
package chunk

import "fmt"

// Opcode is a single bytecode instruction's one-byte tag.
type Opcode uint8

//nolint:revive
const (
	NOP Opcode = iota

	PUSH_CONST
	PUSH_NIL
	PUSH_TRUE
	PUSH_FALSE
	PUSH_DUP // the spec's OP_PUSH micro-opcode: duplicate the stack top

	POP
	POPN

	DEF_GLOBAL
	PUSH_GLOBAL
	POP_GLOBAL

	PUSH_LOCAL
	POP_LOCAL

	PUSH_UPVALUE
	POP_UPVALUE

	PUSH_CLOSURE

	NEG
	NOT

	ADD
	SUB
	MUL
	DIV
	MOD

	TEQ
	TLT
	TGT

	JMP
	JMP_TRUE
	JMP_FALSE

	CALL
	RET

	// supplemental: array support (SPEC_FULL.md §9)
	MAKE_ARRAY
	MAKE_ARRAY_SIZED
	GET_ITEM
	SET_ITEM
	ARRAY_LEN

	maxOpcode
)

// operandSize is the number of immediate bytes following the opcode byte.
var operandSize = [...]int{
	NOP:              0,
	PUSH_CONST:       1,
	PUSH_NIL:         0,
	PUSH_TRUE:        0,
	PUSH_FALSE:       0,
	PUSH_DUP:         0,
	POP:              0,
	POPN:             1,
	DEF_GLOBAL:       1,
	PUSH_GLOBAL:      1,
	POP_GLOBAL:       1,
	PUSH_LOCAL:       1,
	POP_LOCAL:        1,
	PUSH_UPVALUE:     1,
	POP_UPVALUE:      1,
	PUSH_CLOSURE:     1,
	NEG:              0,
	NOT:              0,
	ADD:              0,
	SUB:              0,
	MUL:              0,
	DIV:              0,
	MOD:              0,
	TEQ:              0,
	TLT:              0,
	TGT:              0,
	JMP:              2,
	JMP_TRUE:         2,
	JMP_FALSE:        2,
	CALL:             1,
	RET:              0,
	MAKE_ARRAY:       1,
	MAKE_ARRAY_SIZED: 0,
	GET_ITEM:         0,
	SET_ITEM:         0,
	ARRAY_LEN:        0,
}

const variableStackEffect = 0x7f

// stackEffect records the effect of each opcode on the operand stack depth,
// for disassembly/documentation purposes; it is informational only, this
// implementation has no bytecode verifier.
var stackEffect = [...]int8{
	NOP:              0,
	PUSH_CONST:       1,
	PUSH_NIL:         1,
	PUSH_TRUE:        1,
	PUSH_FALSE:       1,
	PUSH_DUP:         1,
	POP:              -1,
	POPN:             variableStackEffect,
	DEF_GLOBAL:       -1,
	PUSH_GLOBAL:      1,
	POP_GLOBAL:       -1,
	PUSH_LOCAL:       1,
	POP_LOCAL:        -1,
	PUSH_UPVALUE:     1,
	POP_UPVALUE:      -1,
	PUSH_CLOSURE:     1,
	NEG:              0,
	NOT:              0,
	ADD:              -1,
	SUB:              -1,
	MUL:              -1,
	DIV:              -1,
	MOD:              -1,
	TEQ:              -1,
	TLT:              -1,
	TGT:              -1,
	JMP:              0,
	JMP_TRUE:         -1,
	JMP_FALSE:        -1,
	CALL:             variableStackEffect,
	RET:              variableStackEffect,
	MAKE_ARRAY:       variableStackEffect,
	MAKE_ARRAY_SIZED: 0,
	GET_ITEM:         -1,
	SET_ITEM:         -2,
	ARRAY_LEN:        0,
}

var opcodeNames = [...]string{
	NOP:              "nop",
	PUSH_CONST:       "push_const",
	PUSH_NIL:         "push_nil",
	PUSH_TRUE:        "push_true",
	PUSH_FALSE:       "push_false",
	PUSH_DUP:         "push_dup",
	POP:              "pop",
	POPN:             "popn",
	DEF_GLOBAL:       "def_global",
	PUSH_GLOBAL:      "push_global",
	POP_GLOBAL:       "pop_global",
	PUSH_LOCAL:       "push_local",
	POP_LOCAL:        "pop_local",
	PUSH_UPVALUE:     "push_upvalue",
	POP_UPVALUE:      "pop_upvalue",
	PUSH_CLOSURE:     "push_closure",
	NEG:              "neg",
	NOT:              "not",
	ADD:              "add",
	SUB:              "sub",
	MUL:              "mul",
	DIV:              "div",
	MOD:              "mod",
	TEQ:              "teq",
	TLT:              "tlt",
	TGT:              "tgt",
	JMP:              "jmp",
	JMP_TRUE:         "jmp_true",
	JMP_FALSE:        "jmp_false",
	CALL:             "call",
	RET:              "ret",
	MAKE_ARRAY:       "make_array",
	MAKE_ARRAY_SIZED: "make_array_sized",
	GET_ITEM:         "get_item",
	SET_ITEM:         "set_item",
	ARRAY_LEN:        "array_len",
}

var reverseOpcodeNames = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = Opcode(op)
	}
	return m
}()

func (op Opcode) String() string {
	if op < maxOpcode {
		if name := opcodeNames[op]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// OperandSize returns the number of immediate bytes op takes (0, 1 or 2).
func OperandSize(op Opcode) int {
	if op >= maxOpcode {
		return 0
	}
	return operandSize[op]
}

// IsJump reports whether op takes a signed 16-bit relative jump offset.
func IsJump(op Opcode) bool {
	return op == JMP || op == JMP_TRUE || op == JMP_FALSE
}

// EncodedSize returns the total number of bytes op and its operand occupy.
func EncodedSize(op Opcode) int {
	return 1 + OperandSize(op)
}
