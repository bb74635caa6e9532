package chunk_test

import (
	"testing"

	"github.com/mna/loxvm/lang/chunk"
	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAndDisassembleSimpleArithmetic(t *testing.T) {
	h := value.NewHeap()
	name := h.InternString("f")
	fn := h.NewFunction(name, 0)

	one := fn.Chunk.AddConstant(value.Number(1))
	two := fn.Chunk.AddConstant(value.Number(2))
	chunk.WriteOp8(&fn.Chunk, chunk.PUSH_CONST, uint8(one), 1)
	chunk.WriteOp8(&fn.Chunk, chunk.PUSH_CONST, uint8(two), 1)
	chunk.WriteOp(&fn.Chunk, chunk.ADD, 1)
	chunk.WriteOp(&fn.Chunk, chunk.RET, 2)

	out := chunk.Disassemble(&fn.Chunk, "f")
	assert.Contains(t, out, "push_const")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "ret")
	assert.Contains(t, out, "'1'")
	assert.Contains(t, out, "'2'")
}

func TestPatchJumpLandsOnCurrentEnd(t *testing.T) {
	var c value.Chunk
	chunk.WriteOp(&c, chunk.PUSH_TRUE, 1)
	jmp := chunk.WriteJump(&c, chunk.JMP_FALSE, 1)
	chunk.WriteOp(&c, chunk.PUSH_NIL, 2)
	chunk.PatchJump(&c, jmp)
	chunk.WriteOp(&c, chunk.POP, 3)

	off := chunk.ReadJumpOffset(c.Code, jmp)
	target := jmp + 2 + int(off)
	assert.Equal(t, c.Len()-1, target)
}

func TestEmitLoopJumpsBackward(t *testing.T) {
	var c value.Chunk
	start := c.Len()
	chunk.WriteOp(&c, chunk.PUSH_TRUE, 1)
	chunk.WriteOp(&c, chunk.POP, 1)
	chunk.EmitLoop(&c, start, 2)

	loopOperand := c.Len() - 2
	off := chunk.ReadJumpOffset(c.Code, loopOperand)
	target := loopOperand + 2 + int(off)
	assert.Equal(t, start, target)
}

func TestLineAtTracksRunLengthEncoding(t *testing.T) {
	var c value.Chunk
	chunk.WriteOp(&c, chunk.PUSH_NIL, 1)
	chunk.WriteOp(&c, chunk.PUSH_NIL, 1)
	chunk.WriteOp(&c, chunk.PUSH_NIL, 5)

	assert.Equal(t, 1, c.LineAt(0))
	assert.Equal(t, 1, c.LineAt(1))
	assert.Equal(t, 5, c.LineAt(2))
}

func TestAsmDasmRoundTrip(t *testing.T) {
	h := value.NewHeap()
	src := []byte(`
function: adder arity 2
constants:
	number 1
code:
	push_local 0
	push_local 1
	add
	push_const 0
	add
	ret
`)
	fn, err := chunk.Asm(h, src)
	require.NoError(t, err)
	assert.Equal(t, "adder", fn.Name.Bytes)
	assert.Equal(t, 2, fn.Arity)
	assert.Equal(t, 1.0, fn.Chunk.Constants[0].AsNumber())

	out := chunk.Dasm(fn)
	reparsed, err := chunk.Asm(h, out)
	require.NoError(t, err)
	assert.Equal(t, fn.Chunk.Code, reparsed.Chunk.Code)
}

func TestAsmJumpTargetsResolveToInstructionIndex(t *testing.T) {
	h := value.NewHeap()
	src := []byte(`
function: loop arity 0
code:
	push_true
	jmp_false 6
	push_nil
	pop
	jmp 0
	push_nil
	ret
`)
	fn, err := chunk.Asm(h, src)
	require.NoError(t, err)

	// instruction index 1 is jmp_false, targeting instruction index 6 (ret)
	jmpFalseOff := 1 // push_true is 1 byte
	off := chunk.ReadJumpOffset(fn.Chunk.Code, jmpFalseOff+1)
	target := jmpFalseOff + 3 + int(off)
	assert.Equal(t, chunk.RET, chunk.Opcode(fn.Chunk.Code[target]))
}

func TestOpcodeStringAndSizes(t *testing.T) {
	assert.Equal(t, "add", chunk.ADD.String())
	assert.Equal(t, 0, chunk.OperandSize(chunk.ADD))
	assert.Equal(t, 1, chunk.OperandSize(chunk.PUSH_CONST))
	assert.Equal(t, 2, chunk.OperandSize(chunk.JMP))
	assert.True(t, chunk.IsJump(chunk.JMP))
	assert.False(t, chunk.IsJump(chunk.ADD))
	assert.Equal(t, 3, chunk.EncodedSize(chunk.JMP))
}
