// Package vm implements the stack-based bytecode virtual machine: the
// fetch-dispatch loop, call frames, the call/return protocol, closure
// materialization, upvalue opening/closing, and runtime-error reporting.
// See spec.md §4.3 and §5.
package vm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/dolthub/swiss"

	"github.com/mna/loxvm/lang/chunk"
	"github.com/mna/loxvm/lang/gc"
	"github.com/mna/loxvm/lang/value"
)

// MaxLocals bounds the number of local slots a single function may
// declare, matching the compiler's own cap in lang/compiler (spec.md §8:
// "Maximum 256 locals per function").
const MaxLocals = 256

// defaultMaxCallDepth is the call-stack depth limit spec.md §4.3 gives as
// its example ("MAX_CALLS (e.g., 64)").
const defaultMaxCallDepth = 64

// cancelCheckMask bounds how often the fetch-dispatch loop checks for
// cancellation: every cancelCheckMask+1 instructions. Checking every
// instruction would cost a branch per opcode for no benefit, since a
// script that runs long enough to need cancelling runs far more than a
// few hundred instructions.
const cancelCheckMask = 0xff

// Thread carries everything about a single run that belongs to the host
// embedding the VM rather than to the language semantics: the I/O streams
// builtins read and write, how deep calls may nest, and the context
// checked between instructions so a long-running or REPL-resident script
// can be interrupted. Grounded on the teacher's lang/machine/thread.go
// Thread type (spec.md §4.9).
type Thread struct {
	// Name is an optional name for the thread, for debugging.
	Name string

	// Stdout, Stderr and Stdin are the standard I/O abstractions builtins
	// use. If nil, os.Stdout, os.Stderr and os.Stdin are used respectively.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxCallDepth limits the number of nested function calls. A value <= 0
	// uses the spec's default of 64.
	MaxCallDepth int

	cancelled atomic.Bool
}

func (th *Thread) watch(ctx context.Context) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		th.cancelled.Store(true)
	}()
}

// RuntimeError is returned by Interpret when execution fails at runtime
// (as opposed to a scanner.ErrorList returned by the compiler for lex/
// parse failures). Its Error method renders the full diagnostic spec.md
// §4.3 "Runtime errors" describes: the offending line and message,
// followed by a call trace.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, t := range e.Trace {
		b.WriteByte('\n')
		b.WriteString(t)
	}
	return b.String()
}

// VM executes compiled functions against a shared value.Heap. A VM is not
// safe for concurrent use; spec.md §5 is explicit that execution is
// single-threaded cooperative.
type VM struct {
	heap    *value.Heap
	globals *swiss.Map[string, value.Value]

	stack []value.Value
	sp    int

	frames []CallFrame

	openUpvalues *value.Upvalue

	io           value.IO
	thread       *Thread
	maxCallDepth int
}

// NewVM returns a VM bound to h, ready to Interpret compiled functions. th
// may be nil, in which case the defaults described on Thread apply. NewVM
// installs itself as h's garbage collector, so h must not already have an
// OnAlloc hook from elsewhere.
func NewVM(th *Thread, h *value.Heap) *VM {
	if th == nil {
		th = &Thread{}
	}
	stdout := th.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := th.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stdin := th.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	maxCallDepth := th.MaxCallDepth
	if maxCallDepth <= 0 {
		maxCallDepth = defaultMaxCallDepth
	}

	start := time.Now()
	vm := &VM{
		heap:         h,
		globals:      swiss.NewMap[string, value.Value](64),
		stack:        make([]value.Value, maxCallDepth*MaxLocals),
		frames:       make([]CallFrame, 0, maxCallDepth),
		thread:       th,
		maxCallDepth: maxCallDepth,
	}
	vm.io = value.IO{
		Stdout: stdout,
		Stderr: stderr,
		Stdin:  bufio.NewReader(stdin),
		Clock:  func() float64 { return time.Since(start).Seconds() },
	}
	h.OnAlloc = vm.collect
	return vm
}

// DefineGlobal binds name to v in the VM's global table, for host builtins
// registered before Interpret runs.
func (vm *VM) DefineGlobal(name string, v value.Value) {
	vm.globals.Put(name, v)
}

// Global looks up name in the VM's global table, for host code (and tests)
// that need to read back a script's result.
func (vm *VM) Global(name string) (value.Value, bool) {
	return vm.globals.Get(name)
}

// Heap returns the value.Heap this VM executes against, for builtins or
// host code that needs to allocate (e.g. interning a result string).
func (vm *VM) Heap() *value.Heap { return vm.heap }

// Interpret pushes fn as the initial call frame and runs the
// fetch-dispatch loop until OP_RET unwinds the last frame (success) or a
// runtime error is raised. fn is typically the top-level function
// returned by lang/compiler.Compile, but a VM may Interpret more than one
// top-level function in sequence over the same globals, the way a REPL
// compiles and runs one line at a time.
func (vm *VM) Interpret(ctx context.Context, fn *value.Function) error {
	vm.thread.watch(ctx)

	calleeSlot := vm.sp
	vm.stack[calleeSlot] = value.FromObj(fn)
	vm.sp++
	vm.frames = append(vm.frames, CallFrame{Function: fn, fp: calleeSlot, ip: 0})

	err := vm.run(ctx)
	if err != nil {
		vm.reportRuntimeError(err)
	}
	return err
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distanceFromTop int) value.Value {
	return vm.stack[vm.sp-1-distanceFromTop]
}

// run is the fetch-dispatch loop: decode one instruction, execute it,
// repeat. frame/code are refreshed after CALL and RET since those are the
// only instructions that change which chunk is executing (the classic
// clox structure; spec.md §4.3 and original_source/clox/src/vm.h).
func (vm *VM) run(ctx context.Context) error {
	frame := &vm.frames[len(vm.frames)-1]
	code := frame.chunk().Code

	var steps uint64
	for {
		steps++
		if steps&cancelCheckMask == 0 && vm.thread.cancelled.Load() {
			return vm.runtimeErrorf(frame, "execution cancelled")
		}

		op := chunk.Opcode(code[frame.ip])
		frame.ip++

		switch op {
		case chunk.NOP:

		case chunk.PUSH_CONST:
			idx := code[frame.ip]
			frame.ip++
			vm.push(frame.chunk().Constants[idx])

		case chunk.PUSH_NIL:
			vm.push(value.Nil)
		case chunk.PUSH_TRUE:
			vm.push(value.Bool(true))
		case chunk.PUSH_FALSE:
			vm.push(value.Bool(false))
		case chunk.PUSH_DUP:
			vm.push(vm.peek(0))

		case chunk.POP:
			vm.pop()
			vm.closeUpvalues(vm.sp)
		case chunk.POPN:
			n := int(code[frame.ip])
			frame.ip++
			vm.sp -= n
			vm.closeUpvalues(vm.sp)

		case chunk.DEF_GLOBAL:
			name := frame.chunk().Constants[code[frame.ip]].AsString().Bytes
			frame.ip++
			vm.globals.Put(name, vm.pop())
		case chunk.PUSH_GLOBAL:
			name := frame.chunk().Constants[code[frame.ip]].AsString().Bytes
			frame.ip++
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeErrorf(frame, "undefined variable '%s'", name)
			}
			vm.push(v)
		case chunk.POP_GLOBAL:
			name := frame.chunk().Constants[code[frame.ip]].AsString().Bytes
			frame.ip++
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeErrorf(frame, "undefined variable '%s'", name)
			}
			vm.globals.Put(name, vm.pop())

		case chunk.PUSH_LOCAL:
			slot := int(code[frame.ip])
			frame.ip++
			vm.push(vm.stack[frame.fp+slot])
		case chunk.POP_LOCAL:
			slot := int(code[frame.ip])
			frame.ip++
			vm.stack[frame.fp+slot] = vm.pop()

		case chunk.PUSH_UPVALUE:
			idx := code[frame.ip]
			frame.ip++
			vm.push(frame.upvalue(idx).Get())
		case chunk.POP_UPVALUE:
			idx := code[frame.ip]
			frame.ip++
			frame.upvalue(idx).Set(vm.pop())

		case chunk.PUSH_CLOSURE:
			idx := code[frame.ip]
			frame.ip++
			fn, _ := frame.chunk().Constants[idx].AsObj().(*value.Function)
			cl := vm.heap.NewClosure(fn)
			// Pushed before its upvalues are captured, not after: capturing an
			// upvalue can itself allocate (vm.heap.NewUpvalue) and trigger a
			// collection, and cl must be a stack root for that collection to
			// see it, the same reason real clox pushes the closure first.
			vm.push(value.FromObj(cl))
			for i := range fn.Upvalues {
				isLocal := code[frame.ip]
				uvIdx := code[frame.ip+1]
				frame.ip += 2
				if isLocal != 0 {
					cl.Upvalues[i] = vm.captureUpvalue(frame.fp + int(uvIdx))
				} else {
					cl.Upvalues[i] = frame.upvalue(uvIdx)
				}
			}

		case chunk.NEG:
			v := vm.pop()
			if !v.IsNumber() {
				return vm.runtimeErrorf(frame, "operand must be a number")
			}
			vm.push(value.Number(-v.AsNumber()))
		case chunk.NOT:
			vm.push(value.Bool(!vm.pop().Truthy()))

		case chunk.ADD:
			if err := vm.add(frame); err != nil {
				return err
			}
		case chunk.SUB:
			if err := vm.numericBinop(frame, func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.MUL:
			if err := vm.numericBinop(frame, func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.DIV:
			if err := vm.numericBinop(frame, func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}
		case chunk.MOD:
			if err := vm.numericBinop(frame, math.Mod); err != nil {
				return err
			}

		case chunk.TEQ:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(a.Equal(b)))
		case chunk.TLT:
			if err := vm.comparisonBinop(frame, func(a, b float64) bool { return a < b }); err != nil {
				return err
			}
		case chunk.TGT:
			if err := vm.comparisonBinop(frame, func(a, b float64) bool { return a > b }); err != nil {
				return err
			}

		case chunk.JMP:
			rel := chunk.ReadJumpOffset(code, frame.ip)
			frame.ip += 2
			frame.ip += int(rel)
		case chunk.JMP_TRUE:
			rel := chunk.ReadJumpOffset(code, frame.ip)
			frame.ip += 2
			if vm.pop().Truthy() {
				frame.ip += int(rel)
			}
		case chunk.JMP_FALSE:
			rel := chunk.ReadJumpOffset(code, frame.ip)
			frame.ip += 2
			if !vm.pop().Truthy() {
				frame.ip += int(rel)
			}

		case chunk.CALL:
			nargs := int(code[frame.ip])
			frame.ip++
			if err := vm.call(frame, nargs); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]
			code = frame.chunk().Code

		case chunk.RET:
			result := vm.pop()
			vm.closeUpvalues(frame.fp)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				// Reset sp to the slot the top-level callee itself occupied, so
				// a VM that Interprets another top-level function afterward (a
				// REPL sharing one VM/globals across lines) starts clean rather
				// than leaking this chunk's stack usage forward.
				vm.sp = frame.fp
				return nil
			}
			vm.sp = frame.fp
			vm.push(result)
			frame = &vm.frames[len(vm.frames)-1]
			code = frame.chunk().Code

		case chunk.MAKE_ARRAY:
			count := int(code[frame.ip])
			frame.ip++
			elems := make([]value.Value, count)
			copy(elems, vm.stack[vm.sp-count:vm.sp])
			// NewArray's allocation can trigger a collection; sp is only
			// retreated past the source elements afterward, so they are still
			// part of the rooted stack window while it runs.
			arr := vm.heap.NewArray(elems)
			vm.sp -= count
			vm.push(value.FromObj(arr))
		case chunk.MAKE_ARRAY_SIZED:
			sizeVal := vm.pop()
			if !sizeVal.IsNumber() {
				return vm.runtimeErrorf(frame, "array size must be a number")
			}
			n := int(sizeVal.AsNumber())
			if n < 0 {
				return vm.runtimeErrorf(frame, "array size must not be negative")
			}
			vm.push(value.FromObj(vm.heap.NewArray(make([]value.Value, n))))
		case chunk.GET_ITEM:
			idxVal := vm.pop()
			arrVal := vm.pop()
			arr, idx, err := vm.arrayIndex(frame, arrVal, idxVal)
			if err != nil {
				return err
			}
			vm.push(arr.Elems[idx])
		case chunk.SET_ITEM:
			v := vm.pop()
			idxVal := vm.pop()
			arrVal := vm.pop()
			arr, idx, err := vm.arrayIndex(frame, arrVal, idxVal)
			if err != nil {
				return err
			}
			arr.Elems[idx] = v
			vm.push(v)
		case chunk.ARRAY_LEN:
			v := vm.pop()
			arr, ok := v.AsObj().(*value.Array)
			if !ok {
				return vm.runtimeErrorf(frame, "'.len' on a non-array value")
			}
			vm.push(value.Number(float64(arr.Len())))

		default:
			return vm.runtimeErrorf(frame, "illegal opcode %s", op)
		}
	}
}

func (vm *VM) arrayIndex(frame *CallFrame, arrVal, idxVal value.Value) (*value.Array, int, error) {
	arr, ok := arrVal.AsObj().(*value.Array)
	if !ok {
		return nil, 0, vm.runtimeErrorf(frame, "indexing target is not an array")
	}
	if !idxVal.IsNumber() {
		return nil, 0, vm.runtimeErrorf(frame, "array index must be a number")
	}
	idx := int(idxVal.AsNumber())
	if idx < 0 || idx >= arr.Len() {
		return nil, 0, vm.runtimeErrorf(frame, "array index out of bounds")
	}
	return arr, idx, nil
}

func (vm *VM) add(frame *CallFrame) error {
	// Operands are left on the stack (peeked, not popped) until after the
	// possible InternString allocation below: that allocation can trigger a
	// collection, and a or b may be a string reachable only through this
	// stack slot (e.g. the result of a prior, already-discarded concat).
	b, a := vm.peek(0), vm.peek(1)
	if a.IsNumber() && b.IsNumber() {
		vm.sp -= 2
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
		return nil
	}
	if a.AsString() != nil || b.AsString() != nil {
		concat := value.Format(a, false) + value.Format(b, false)
		result := vm.heap.InternString(concat)
		vm.sp -= 2
		vm.push(value.FromObj(result))
		return nil
	}
	vm.sp -= 2
	return vm.runtimeErrorf(frame, "operands must be two numbers or two strings")
}

func (vm *VM) numericBinop(frame *CallFrame, op func(a, b float64) float64) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeErrorf(frame, "operands must be numbers")
	}
	vm.push(value.Number(op(a.AsNumber(), b.AsNumber())))
	return nil
}

func (vm *VM) comparisonBinop(frame *CallFrame, op func(a, b float64) bool) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeErrorf(frame, "operands must be numbers")
	}
	vm.push(value.Bool(op(a.AsNumber(), b.AsNumber())))
	return nil
}

// call dispatches CALL by the callee's value kind (spec.md §4.3 "Call
// protocol"). The callee sits at sp-nargs-1 throughout.
func (vm *VM) call(frame *CallFrame, nargs int) error {
	calleeSlot := vm.sp - nargs - 1
	callee := vm.stack[calleeSlot]

	switch {
	case callee.IsBuiltin():
		b := callee.AsBuiltin()
		if b.Arity != nargs {
			return vm.runtimeErrorf(frame, "expected %d arguments but got %d", b.Arity, nargs)
		}
		argv := vm.stack[calleeSlot+1 : vm.sp]
		result, err := b.Fn(vm.heap, vm.io, argv)
		if err != nil {
			return vm.runtimeErrorf(frame, "%s", err.Error())
		}
		vm.stack[calleeSlot] = result
		vm.sp = calleeSlot + 1
		return nil

	case callee.IsObj():
		switch obj := callee.AsObj().(type) {
		case *value.Function:
			return vm.pushFrame(frame, obj, nil, calleeSlot, nargs)
		case *value.Closure:
			return vm.pushFrame(frame, obj.Function, obj, calleeSlot, nargs)
		}
	}
	return vm.runtimeErrorf(frame, "value not callable")
}

func (vm *VM) pushFrame(caller *CallFrame, fn *value.Function, cl *value.Closure, calleeSlot, nargs int) error {
	if fn.Arity != nargs {
		return vm.runtimeErrorf(caller, "expected %d arguments but got %d", fn.Arity, nargs)
	}
	if len(vm.frames) >= vm.maxCallDepth {
		return vm.runtimeErrorf(caller, "call stack overflow")
	}
	vm.frames = append(vm.frames, CallFrame{Function: fn, Closure: cl, fp: calleeSlot, ip: 0})
	return nil
}

// captureUpvalue returns the open upvalue for stack slot, sharing any
// already-open upvalue at that slot, or allocating and linking a new one
// in descending-stack-address order otherwise (spec.md §4.3 "Closure
// materialization", §9 "Intrusive open-upvalue list"). Address comparison
// via unsafe.Pointer is sound here only because vm.stack is a slice
// allocated once, at full length, in NewVM and never grown or reallocated.
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	loc := &vm.stack[slot]
	target := addr(loc)

	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && addr(cur.Loc) > target {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Loc == loc {
		return cur
	}

	uv := vm.heap.NewUpvalue(loc)
	uv.Next = cur
	if prev == nil {
		vm.openUpvalues = uv
	} else {
		prev.Next = uv
	}
	return uv
}

// closeUpvalues closes every open upvalue at or above stack slot
// thresholdSlot, which is always where POP/POPN/RET just retreated sp to.
// Because the list is sorted by descending address, the upvalues to close
// are exactly a prefix of it.
func (vm *VM) closeUpvalues(thresholdSlot int) {
	if vm.openUpvalues == nil || thresholdSlot >= len(vm.stack) {
		return
	}
	threshold := addr(&vm.stack[thresholdSlot])
	for vm.openUpvalues != nil && addr(vm.openUpvalues.Loc) >= threshold {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
		uv.Next = nil
	}
}

func addr(v *value.Value) uintptr { return uintptr(unsafe.Pointer(v)) }

func (vm *VM) runtimeErrorf(frame *CallFrame, format string, args ...any) error {
	return &RuntimeError{
		Message: fmt.Sprintf("Runtime error at line %d: %s", frame.line(), fmt.Sprintf(format, args...)),
		Trace:   vm.callTrace(),
	}
}

// callTrace renders one "from call of NAME at line L" entry per frame
// beneath the current one, innermost first, naming the callee at each
// step and the line in its caller where the call happened (spec.md §4.3
// "Runtime errors").
func (vm *VM) callTrace() []string {
	if len(vm.frames) < 2 {
		return nil
	}
	trace := make([]string, 0, len(vm.frames)-1)
	for i := len(vm.frames) - 1; i > 0; i-- {
		callee := vm.frames[i].name()
		caller := &vm.frames[i-1]
		trace = append(trace, fmt.Sprintf("from call of %s at line %d", callee, caller.line()))
	}
	return trace
}

func (vm *VM) reportRuntimeError(err error) {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		fmt.Fprintln(vm.io.Stderr, err.Error())
		return
	}
	fmt.Fprintln(vm.io.Stderr, rerr.Error())
}

func (vm *VM) collect(h *value.Heap) {
	gc.Collect(h, gc.Roots{
		Stack:        vm.stack[:vm.sp],
		Frames:       vm.frameRoots(),
		OpenUpvalues: vm.openUpvalues,
		EachGlobal: func(mark func(value.Value)) {
			vm.globals.Iter(func(_ string, v value.Value) bool {
				mark(v)
				return true
			})
		},
	})
}

func (vm *VM) frameRoots() []gc.FrameRoot {
	roots := make([]gc.FrameRoot, len(vm.frames))
	for i, f := range vm.frames {
		roots[i] = gc.FrameRoot{Function: f.Function, Closure: f.Closure}
	}
	return roots
}
