package vm_test

import (
	"context"
	"testing"

	"github.com/mna/loxvm/lang/chunk"
	"github.com/mna/loxvm/lang/value"
	"github.com/mna/loxvm/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asm(t *testing.T, h *value.Heap, src string) *value.Function {
	t.Helper()
	fn, err := chunk.Asm(h, []byte(src))
	require.NoError(t, err)
	return fn
}

func TestArithmetic(t *testing.T) {
	h := value.NewHeap()
	fn := asm(t, h, `
function: script arity 0
constants:
	number 1
	number 2
code:
	push_const 0
	push_const 1
	add
	def_global 2
	push_nil
	ret
`)
	fn.Chunk.Constants = append(fn.Chunk.Constants, value.FromObj(h.InternString("result")))

	theVM := vm.NewVM(nil, h)
	err := theVM.Interpret(context.Background(), fn)
	require.NoError(t, err)

	got, ok := theVM.Global("result")
	require.True(t, ok)
	assert.Equal(t, float64(3), got.AsNumber())
}

func TestStringConcatenation(t *testing.T) {
	h := value.NewHeap()
	fn := asm(t, h, `
function: script arity 0
constants:
	string "hi "
	number 1
code:
	push_const 0
	push_const 1
	add
	def_global 2
	push_nil
	ret
`)
	fn.Chunk.Constants = append(fn.Chunk.Constants, value.FromObj(h.InternString("out")))

	theVM := vm.NewVM(nil, h)
	require.NoError(t, theVM.Interpret(context.Background(), fn))

	got, ok := theVM.Global("out")
	require.True(t, ok)
	assert.Equal(t, "hi 1", got.AsString().Bytes)
}

func TestJumpControlFlow(t *testing.T) {
	h := value.NewHeap()
	// if (false) { result = 1 } else { result = 2 }
	fn := asm(t, h, `
function: script arity 0
constants:
	string "result"
	number 1
	number 2
code:
	push_false
	jmp_false 4
	push_const 1
	jmp 5
	push_const 2
	def_global 0
	push_nil
	ret
`)

	theVM := vm.NewVM(nil, h)
	require.NoError(t, theVM.Interpret(context.Background(), fn))

	got, ok := theVM.Global("result")
	require.True(t, ok)
	assert.Equal(t, float64(2), got.AsNumber())
}

func TestCallAndReturn(t *testing.T) {
	h := value.NewHeap()
	addName := h.InternString("add")
	addFn := h.NewFunction(addName, 2)
	addFn.Chunk.AddConstant(value.Nil)
	chunk.WriteOp8(&addFn.Chunk, chunk.PUSH_LOCAL, 1, 1)
	chunk.WriteOp8(&addFn.Chunk, chunk.PUSH_LOCAL, 2, 1)
	chunk.WriteOp(&addFn.Chunk, chunk.ADD, 1)
	chunk.WriteOp(&addFn.Chunk, chunk.RET, 1)

	script := h.NewFunction(nil, 0)
	fnConst := script.Chunk.AddConstant(value.FromObj(addFn))
	aConst := script.Chunk.AddConstant(value.Number(3))
	bConst := script.Chunk.AddConstant(value.Number(4))
	nameConst := script.Chunk.AddConstant(value.FromObj(h.InternString("sum")))

	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(fnConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(aConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(bConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 2, 1)
	chunk.WriteOp8(&script.Chunk, chunk.DEF_GLOBAL, uint8(nameConst), 1)
	chunk.WriteOp(&script.Chunk, chunk.PUSH_NIL, 1)
	chunk.WriteOp(&script.Chunk, chunk.RET, 1)

	theVM := vm.NewVM(nil, h)
	require.NoError(t, theVM.Interpret(context.Background(), script))

	got, ok := theVM.Global("sum")
	require.True(t, ok)
	assert.Equal(t, float64(7), got.AsNumber())
}

// TestClosureCapturesOuterLocal builds, by hand, the equivalent of:
//
//	fn outer() {
//	    x = 10
//	    fn inner() { return x }
//	    return inner
//	}
//	f = outer()
//	result = f()
//
// exercising closure materialization (PUSH_CLOSURE with a local capture)
// and upvalue read.
func TestClosureCapturesOuterLocal(t *testing.T) {
	h := value.NewHeap()

	innerName := h.InternString("inner")
	inner := h.NewFunction(innerName, 0)
	inner.Upvalues = []value.UpvalueDesc{{Index: 1, IsLocal: true}}
	chunk.WriteOp8(&inner.Chunk, chunk.PUSH_UPVALUE, 0, 1)
	chunk.WriteOp(&inner.Chunk, chunk.RET, 1)

	outerName := h.InternString("outer")
	outer := h.NewFunction(outerName, 0)
	innerConst := outer.Chunk.AddConstant(value.FromObj(inner))
	tenConst := outer.Chunk.AddConstant(value.Number(10))
	// slot 0: callee (outer itself); slot 1: local x
	chunk.WriteOp(&outer.Chunk, chunk.PUSH_NIL, 1)
	chunk.WriteOp8(&outer.Chunk, chunk.PUSH_CONST, uint8(tenConst), 1)
	chunk.WriteOp8(&outer.Chunk, chunk.POP_LOCAL, 1, 1)
	chunk.WriteOp8(&outer.Chunk, chunk.PUSH_CLOSURE, uint8(innerConst), 1)
	outer.Chunk.Code = append(outer.Chunk.Code, 1, 1) // isLocal=1, index=1 (slot of x)
	chunk.WriteOp(&outer.Chunk, chunk.RET, 1)

	script := h.NewFunction(nil, 0)
	outerConst := script.Chunk.AddConstant(value.FromObj(outer))
	fName := script.Chunk.AddConstant(value.FromObj(h.InternString("f")))
	resultName := script.Chunk.AddConstant(value.FromObj(h.InternString("result")))

	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(outerConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 1)
	chunk.WriteOp8(&script.Chunk, chunk.DEF_GLOBAL, uint8(fName), 1)
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_GLOBAL, uint8(fName), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 1)
	chunk.WriteOp8(&script.Chunk, chunk.DEF_GLOBAL, uint8(resultName), 1)
	chunk.WriteOp(&script.Chunk, chunk.PUSH_NIL, 1)
	chunk.WriteOp(&script.Chunk, chunk.RET, 1)

	theVM := vm.NewVM(nil, h)
	require.NoError(t, theVM.Interpret(context.Background(), script))

	got, ok := theVM.Global("result")
	require.True(t, ok)
	assert.Equal(t, float64(10), got.AsNumber())
}

func TestArrayOperations(t *testing.T) {
	h := value.NewHeap()
	fn := asm(t, h, `
function: script arity 0
constants:
	number 1
	number 2
	number 3
	string "len"
	number 99
	number 0
	string "item0"
code:
	push_const 0
	push_const 1
	push_const 2
	make_array 3
	array_len
	def_global 3
	push_nil
	ret
`)
	theVM := vm.NewVM(nil, h)
	require.NoError(t, theVM.Interpret(context.Background(), fn))
	got, ok := theVM.Global("len")
	require.True(t, ok)
	assert.Equal(t, float64(3), got.AsNumber())
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	h := value.NewHeap()
	fn := asm(t, h, `
function: script arity 0
constants:
	string "missing"
code:
	push_global 0
`)
	theVM := vm.NewVM(nil, h)
	err := theVM.Interpret(context.Background(), fn)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "undefined variable 'missing'")
}

func TestTypeMismatchArithmeticIsRuntimeError(t *testing.T) {
	h := value.NewHeap()
	fn := asm(t, h, `
function: script arity 0
constants:
	number 1
code:
	push_const 0
	push_nil
	sub
`)
	theVM := vm.NewVM(nil, h)
	err := theVM.Interpret(context.Background(), fn)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "operands must be numbers")
}

func TestCallTraceNamesEachFrame(t *testing.T) {
	h := value.NewHeap()
	innerName := h.InternString("boom")
	inner := h.NewFunction(innerName, 0)
	chunk.WriteOp(&inner.Chunk, chunk.PUSH_NIL, 5)
	chunk.WriteOp(&inner.Chunk, chunk.NEG, 5) // nil has no negation: runtime error

	script := h.NewFunction(nil, 0)
	innerConst := script.Chunk.AddConstant(value.FromObj(inner))
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(innerConst), 10)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 10)

	theVM := vm.NewVM(nil, h)
	err := theVM.Interpret(context.Background(), script)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Len(t, rerr.Trace, 1)
	assert.Contains(t, rerr.Trace[0], "fn boom")
	assert.Contains(t, rerr.Trace[0], "line 10")
}

func TestCallDepthOverflow(t *testing.T) {
	h := value.NewHeap()
	recName := h.InternString("rec")
	rec := h.NewFunction(recName, 0)
	recConst := rec.Chunk.AddConstant(value.FromObj(rec))
	chunk.WriteOp8(&rec.Chunk, chunk.PUSH_CONST, uint8(recConst), 1)
	chunk.WriteOp8(&rec.Chunk, chunk.CALL, 0, 1)
	chunk.WriteOp(&rec.Chunk, chunk.RET, 1)

	script := h.NewFunction(nil, 0)
	recScriptConst := script.Chunk.AddConstant(value.FromObj(rec))
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(recScriptConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 1)

	th := &vm.Thread{MaxCallDepth: 4}
	theVM := vm.NewVM(th, h)
	err := theVM.Interpret(context.Background(), script)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "call stack overflow")
}

// TestGCSurvivesAggressiveCollection forces a collection on every single
// allocation (by setting a GCThreshold of 1 only after the VM exists, so
// compile-time interning is unaffected) while running the same closure
// capture as TestClosureCapturesOuterLocal, proving the in-flight closure,
// its captured upvalue, and the executing frames all survive as roots
// through repeated mid-execution collections.
func TestGCSurvivesAggressiveCollection(t *testing.T) {
	h := value.NewHeap()

	innerName := h.InternString("inner")
	inner := h.NewFunction(innerName, 0)
	inner.Upvalues = []value.UpvalueDesc{{Index: 1, IsLocal: true}}
	chunk.WriteOp8(&inner.Chunk, chunk.PUSH_UPVALUE, 0, 1)
	chunk.WriteOp(&inner.Chunk, chunk.RET, 1)

	outerName := h.InternString("outer")
	outer := h.NewFunction(outerName, 0)
	innerConst := outer.Chunk.AddConstant(value.FromObj(inner))
	tenConst := outer.Chunk.AddConstant(value.Number(10))
	chunk.WriteOp(&outer.Chunk, chunk.PUSH_NIL, 1)
	chunk.WriteOp8(&outer.Chunk, chunk.PUSH_CONST, uint8(tenConst), 1)
	chunk.WriteOp8(&outer.Chunk, chunk.POP_LOCAL, 1, 1)
	chunk.WriteOp8(&outer.Chunk, chunk.PUSH_CLOSURE, uint8(innerConst), 1)
	outer.Chunk.Code = append(outer.Chunk.Code, 1, 1)
	chunk.WriteOp(&outer.Chunk, chunk.RET, 1)

	script := h.NewFunction(nil, 0)
	outerConst := script.Chunk.AddConstant(value.FromObj(outer))
	fName := script.Chunk.AddConstant(value.FromObj(h.InternString("f")))
	resultName := script.Chunk.AddConstant(value.FromObj(h.InternString("result")))

	chunk.WriteOp8(&script.Chunk, chunk.PUSH_CONST, uint8(outerConst), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 1)
	chunk.WriteOp8(&script.Chunk, chunk.DEF_GLOBAL, uint8(fName), 1)
	chunk.WriteOp8(&script.Chunk, chunk.PUSH_GLOBAL, uint8(fName), 1)
	chunk.WriteOp8(&script.Chunk, chunk.CALL, 0, 1)
	chunk.WriteOp8(&script.Chunk, chunk.DEF_GLOBAL, uint8(resultName), 1)
	chunk.WriteOp(&script.Chunk, chunk.PUSH_NIL, 1)
	chunk.WriteOp(&script.Chunk, chunk.RET, 1)

	theVM := vm.NewVM(nil, h)
	h.GCThreshold = 1
	require.NoError(t, theVM.Interpret(context.Background(), script))

	got, ok := theVM.Global("result")
	require.True(t, ok)
	assert.Equal(t, float64(10), got.AsNumber())
}

// TestRepeatedInterpretSharesGlobalsAndResetsStack exercises the REPL's
// usage pattern: one VM, one Heap, several independent top-level chunks
// interpreted in sequence, each seeing the prior ones' globals.
func TestRepeatedInterpretSharesGlobalsAndResetsStack(t *testing.T) {
	h := value.NewHeap()
	theVM := vm.NewVM(nil, h)

	first := asm(t, h, `
function: line1 arity 0
constants:
	number 1
	string "x"
code:
	push_const 0
	def_global 1
	push_nil
	ret
`)
	require.NoError(t, theVM.Interpret(context.Background(), first))

	second := asm(t, h, `
function: line2 arity 0
constants:
	string "x"
	number 2
	string "y"
code:
	push_global 0
	push_const 1
	add
	def_global 2
	push_nil
	ret
`)
	require.NoError(t, theVM.Interpret(context.Background(), second))

	got, ok := theVM.Global("y")
	require.True(t, ok)
	assert.Equal(t, float64(3), got.AsNumber())
}

func TestCanceledContextStopsExecution(t *testing.T) {
	h := value.NewHeap()
	fn := h.NewFunction(nil, 0)
	for i := 0; i < 1000; i++ {
		chunk.WriteOp(&fn.Chunk, chunk.NOP, 1)
	}
	chunk.WriteOp(&fn.Chunk, chunk.RET, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	theVM := vm.NewVM(nil, h)
	err := theVM.Interpret(ctx, fn)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "cancelled")
}
