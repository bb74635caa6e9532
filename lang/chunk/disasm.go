package chunk

import (
	"fmt"
	"strings"

	"github.com/mna/loxvm/lang/value"
)

// Disassemble returns a human-readable listing of c's bytecode, named name.
// It is a debugging aid (spec.md §1: "the disassembler is a debugging aid,
// not part of the core"), not used by the compiler or VM themselves.
func Disassemble(c *value.Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for off := 0; off < len(c.Code); {
		off = disassembleInstruction(&b, c, off)
	}
	return b.String()
}

// DisassembleInstruction writes a single instruction at offset off and
// returns the offset of the next instruction.
func DisassembleInstruction(c *value.Chunk, off int) (string, int) {
	var b strings.Builder
	next := disassembleInstruction(&b, c, off)
	return b.String(), next
}

func disassembleInstruction(b *strings.Builder, c *value.Chunk, off int) int {
	fmt.Fprintf(b, "%04d %4d ", off, c.LineAt(off))

	op := Opcode(c.Code[off])
	switch {
	case op == JMP || op == JMP_TRUE || op == JMP_FALSE:
		rel := ReadJumpOffset(c.Code, off+1)
		target := off + 3 + int(rel)
		fmt.Fprintf(b, "%-16s %4d -> %d\n", op, off, target)
		return off + 3
	case op == PUSH_CLOSURE:
		idx := c.Code[off+1]
		fn, _ := c.Constants[idx].AsObj().(*value.Function)
		fmt.Fprintf(b, "%-16s %4d '%s'\n", op, idx, value.Format(c.Constants[idx], true))
		next := off + 2
		if fn != nil {
			for range fn.Upvalues {
				isLocal := c.Code[next]
				uvIdx := c.Code[next+1]
				fmt.Fprintf(b, "%04d      |                     %s %d\n", next, upvalueKind(isLocal), uvIdx)
				next += 2
			}
		}
		return next
	case op == PUSH_CONST:
		idx := c.Code[off+1]
		fmt.Fprintf(b, "%-16s %4d '%s'\n", op, idx, value.Format(c.Constants[idx], true))
		return off + 2
	case OperandSize(op) == 1:
		fmt.Fprintf(b, "%-16s %4d\n", op, c.Code[off+1])
		return off + 2
	case OperandSize(op) == 0:
		fmt.Fprintf(b, "%s\n", op)
		return off + 1
	default:
		fmt.Fprintf(b, "%s (unknown operand width)\n", op)
		return off + 1
	}
}

func upvalueKind(isLocal byte) string {
	if isLocal != 0 {
		return "local"
	}
	return "upvalue"
}
