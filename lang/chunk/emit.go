package chunk

import (
	"github.com/mna/loxvm/lang/value"
)

// WriteOp appends a bare (no-operand) opcode.
func WriteOp(c *value.Chunk, op Opcode, line int) {
	c.WriteByte(byte(op), line)
}

// WriteOp8 appends op followed by a one-byte operand.
func WriteOp8(c *value.Chunk, op Opcode, operand uint8, line int) {
	c.WriteByte(byte(op), line)
	c.WriteByte(operand, line)
}

// WriteJump appends a jump opcode with a placeholder 2-byte offset and
// returns the offset of the first placeholder byte, to be patched once the
// jump target is known (spec.md §4.2 "Jump patching").
func WriteJump(c *value.Chunk, op Opcode, line int) int {
	c.WriteByte(byte(op), line)
	c.WriteByte(0xff, line)
	c.WriteByte(0xff, line)
	return c.Len() - 2
}

// PatchJump backfills the 2-byte signed offset at operandOffset so the jump
// lands on the chunk's current end. The offset is relative to the
// instruction immediately following the 2-byte operand, per spec.md §4.2.
func PatchJump(c *value.Chunk, operandOffset int) {
	offset := c.Len() - (operandOffset + 2)
	c.Code[operandOffset] = byte(uint16(offset))
	c.Code[operandOffset+1] = byte(uint16(offset) >> 8)
}

// EmitLoop appends an unconditional backward jump to loopStart, whose offset
// is known immediately (unlike forward jumps).
func EmitLoop(c *value.Chunk, loopStart int, line int) {
	EmitBackwardJump(c, JMP, loopStart, line)
}

// EmitBackwardJump appends op (JMP, JMP_TRUE or JMP_FALSE) with a backward
// offset to target, computed immediately since target already exists. Used
// by do/while, whose loop test is the backward jump itself.
func EmitBackwardJump(c *value.Chunk, op Opcode, target int, line int) {
	c.WriteByte(byte(op), line)
	offset := target - (c.Len() + 2)
	c.WriteByte(byte(uint16(offset)), line)
	c.WriteByte(byte(uint16(offset)>>8), line)
}

// ReadJumpOffset decodes the signed 16-bit offset stored at code[off:off+2].
func ReadJumpOffset(code []byte, off int) int16 {
	return int16(uint16(code[off]) | uint16(code[off+1])<<8)
}
