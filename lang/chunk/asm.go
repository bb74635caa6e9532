package chunk

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/loxvm/lang/value"
)

// This file implements a small human-readable/writable textual form of a
// single compiled function, grounded in the line-oriented, section-based
// assembler format of _examples/mna-nenuphar/lang/compiler/asm.go, cut down
// to what lang/vm and lang/gc tests need: no defer/catch/load sections, and
// nested functions are not expressible in text (tests that need one embed a
// pre-built *value.Function constant directly in Go code instead).
//
// Format:
//
//	function: NAME arity ARITY
//	constants:
//		number 1.5
//		string "abc"
//	code:
//		push_const 0
//		add
//		ret
var sections = map[string]bool{
	"function:":  true,
	"constants:": true,
	"code:":      true,
}

// Asm parses the textual form into a *value.Function. Constant strings are
// interned through h.
func Asm(h *value.Heap, src []byte) (*value.Function, error) {
	a := &asmState{s: bufio.NewScanner(bytes.NewReader(src)), h: h}

	fields := a.next()
	if len(fields) < 4 || !strings.EqualFold(fields[0], "function:") || !strings.EqualFold(fields[2], "arity") {
		return nil, fmt.Errorf("expected 'function: NAME arity N', got %q", strings.Join(fields, " "))
	}
	arity, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("invalid arity: %w", err)
	}
	name := h.InternString(fields[1])
	fn := h.NewFunction(name, arity)

	fields = a.next()
	fields = a.constants(fn, fields)
	fields = a.code(fn, fields)
	if a.err != nil {
		return nil, a.err
	}
	if len(fields) != 0 {
		return nil, fmt.Errorf("unexpected trailing section: %s", fields[0])
	}
	return fn, nil
}

type asmState struct {
	s   *bufio.Scanner
	h   *value.Heap
	raw string
	err error
}

func (a *asmState) next() []string {
	a.raw = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		a.raw = line
		return fields
	}
	a.err = a.s.Err()
	return nil
}

func (a *asmState) constants(fn *value.Function, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		if len(fields) < 2 {
			a.err = fmt.Errorf("invalid constant line: %q", a.raw)
			return fields
		}
		switch strings.ToLower(fields[0]) {
		case "number":
			f, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				a.err = fmt.Errorf("invalid number constant: %w", err)
				return fields
			}
			fn.Chunk.AddConstant(value.Number(f))
		case "string":
			qs, err := strconv.Unquote(fields[1])
			if err != nil {
				a.err = fmt.Errorf("invalid string constant: %w", err)
				return fields
			}
			fn.Chunk.AddConstant(value.FromObj(a.h.InternString(qs)))
		default:
			a.err = fmt.Errorf("unknown constant type: %s", fields[0])
			return fields
		}
	}
	return fields
}

func (a *asmState) code(fn *value.Function, fields []string) []string {
	if a.err != nil {
		return fields
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		a.err = errors.New("expected code: section")
		return fields
	}

	type pending struct {
		op     Opcode
		arg    int
		idx    int // index of this instruction, for jump target resolution
		offset int // byte offset once known
	}
	var insns []pending
	for fields = a.next(); len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		op, ok := reverseOpcodeNames[strings.ToLower(fields[0])]
		if !ok {
			a.err = fmt.Errorf("unknown opcode: %s", fields[0])
			return fields
		}
		var arg int
		if OperandSize(op) > 0 {
			if len(fields) != 2 {
				a.err = fmt.Errorf("opcode %s requires an operand", fields[0])
				return fields
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				a.err = fmt.Errorf("invalid operand for %s: %w", fields[0], err)
				return fields
			}
			arg = v
		}
		insns = append(insns, pending{op: op, arg: arg, idx: len(insns)})
	}

	offsets := make([]int, len(insns))
	off := 0
	for i, in := range insns {
		offsets[i] = off
		off += EncodedSize(in.op)
	}

	for _, in := range insns {
		switch {
		case IsJump(in.op):
			if in.arg < 0 || in.arg >= len(offsets) {
				a.err = fmt.Errorf("jump target %d out of range", in.arg)
				return fields
			}
			start := WriteJump(&fn.Chunk, in.op, 0)
			// patch relative to the target instruction index, translated to offset
			targetOff := offsets[in.arg]
			rel := targetOff - (start + 2)
			fn.Chunk.Code[start] = byte(uint16(rel))
			fn.Chunk.Code[start+1] = byte(uint16(rel) >> 8)
		case OperandSize(in.op) == 1:
			WriteOp8(&fn.Chunk, in.op, uint8(in.arg), 0)
		default:
			WriteOp(&fn.Chunk, in.op, 0)
		}
	}
	return fields
}

// Dasm renders fn back to the textual form Asm parses, ignoring any nested
// function constants (they print as opaque placeholders).
func Dasm(fn *value.Function) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "function: %s arity %d\n", fn.DisplayName(), fn.Arity)
	if len(fn.Chunk.Constants) > 0 {
		b.WriteString("constants:\n")
		for _, c := range fn.Chunk.Constants {
			switch {
			case c.IsNumber():
				fmt.Fprintf(&b, "\tnumber %g\n", c.AsNumber())
			case c.AsString() != nil:
				fmt.Fprintf(&b, "\tstring %q\n", c.AsString().Bytes)
			default:
				fmt.Fprintf(&b, "\t# unsupported constant %s\n", value.Format(c, true))
			}
		}
	}
	b.WriteString("code:\n")
	for off := 0; off < len(fn.Chunk.Code); {
		line, next := DisassembleInstruction(&fn.Chunk, off)
		b.WriteString("\t")
		b.WriteString(line)
		off = next
	}
	return b.Bytes()
}
