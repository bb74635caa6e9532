// Package gc implements the precise mark-sweep collector described in
// spec.md §4.4: tracing reachability from the VM's roots, then sweeping
// the heap's intrusive all-objects list. It depends only on lang/value,
// not on lang/vm, so the VM (which owns the roots) is the one that wires
// Collect into value.Heap.OnAlloc.
package gc

import "github.com/mna/loxvm/lang/value"

// FrameRoot is the part of a call frame the collector needs to mark: the
// function being executed and, if the call went through a closure, the
// closure supplying its captured upvalues.
type FrameRoot struct {
	Function *value.Function
	Closure  *value.Closure
}

// Roots is the full set of GC roots a running VM must supply for a
// collection cycle to be sound (spec.md §4.4 "Roots"): the live
// value-stack window, every active call frame, the globals table, and the
// head of the open-upvalues list.
type Roots struct {
	// Stack is the live value-stack window [stack_base, sp).
	Stack []value.Value
	// Frames is the active call stack, bottom to top.
	Frames []FrameRoot
	// OpenUpvalues is the head of the sorted open-upvalues list.
	OpenUpvalues *value.Upvalue
	// EachGlobal, if set, is called once with a marking callback so the
	// collector can trace the globals table without this package depending
	// on whatever map implementation backs it.
	EachGlobal func(mark func(value.Value))
}

// Collect runs one mark-sweep cycle over h, tracing reachability from
// roots, sweeping unreached objects, and doubling h.GCThreshold so the
// next collection triggers further out (spec.md §4.4: "gc_threshold...
// doubled after each collection").
func Collect(h *value.Heap, roots Roots) {
	for _, v := range roots.Stack {
		markValue(v)
	}
	for _, f := range roots.Frames {
		if f.Function != nil {
			markObj(f.Function)
		}
		if f.Closure != nil {
			markObj(f.Closure)
		}
	}
	if roots.EachGlobal != nil {
		roots.EachGlobal(markValue)
	}
	// Closed upvalues store their value inline (value.Children returns it);
	// open ones point into the stack, already covered by roots.Stack.
	for uv := roots.OpenUpvalues; uv != nil; uv = uv.Next {
		markObj(uv)
	}

	h.Sweep()
	h.GCThreshold *= 2
}

func markValue(v value.Value) {
	if o := v.AsObj(); o != nil {
		markObj(o)
	}
}

// markObj marks o and, the first time it is marked, recurses into its
// children. value.Mark reports false for an already-marked object, which
// is what stops cycles (e.g. a closure capturing an upvalue that itself
// closes over the same closure) from recursing forever.
func markObj(o value.Obj) {
	if !value.Mark(o) {
		return
	}
	for _, child := range value.Children(o) {
		markValue(child)
	}
}
