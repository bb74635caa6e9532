package vm

import "github.com/mna/loxvm/lang/value"

// CallFrame is one entry of the VM's call stack (spec.md §3 "Call frame"):
// the function being executed, the closure supplying its upvalues (nil for
// a bare Function with no upvalues), the base stack slot its locals are
// counted from, and the current instruction pointer into its chunk's code.
type CallFrame struct {
	Function *value.Function
	Closure  *value.Closure
	fp       int
	ip       int
}

func (f *CallFrame) chunk() *value.Chunk { return &f.Function.Chunk }

func (f *CallFrame) name() string { return f.Function.DisplayName() }

// line reports the source line of the instruction just executed, keyed off
// ip-1 since every byte of a multi-byte instruction shares one line entry
// (spec.md §4.3 "Runtime errors": "L from chunk.lines for ip - 1").
func (f *CallFrame) line() int { return f.chunk().LineAt(f.ip - 1) }

// upvalue returns the idx'th upvalue slot reachable from this frame,
// whether captured through a Closure or not. It is only ever called for
// frames whose function is known (by the compiler, transitively) to have
// at least one upvalue, which is only possible through a Closure.
func (f *CallFrame) upvalue(idx uint8) *value.Upvalue {
	return f.Closure.Upvalues[idx]
}
