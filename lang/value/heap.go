package value

// Heap owns the intrusive all-objects list, allocation accounting, and the
// string intern table. The VM embeds one; the GC (lang/gc) sweeps it
// through Sweep and triggers collection through OnAlloc. See spec.md §3
// ("the intrusive all-objects list") and §4.4 ("alloc_bytes... gc_threshold").
type Heap struct {
	head Obj

	AllocBytes  int
	AllocObjs   int
	GCThreshold int
	GCEnabled   bool

	Strings *Table

	// OnAlloc, if set, is called on an allocation when GCEnabled is true and
	// AllocBytes already exceeds GCThreshold, before the triggering object
	// is linked into the heap.
	OnAlloc func(h *Heap)
}

// NewHeap returns a Heap with the initial 1 KiB GC threshold spec.md §4.4
// specifies, and GC enabled.
func NewHeap() *Heap {
	return &Heap{
		GCThreshold: 1024,
		GCEnabled:   true,
		Strings:     NewTable(),
	}
}

func (h *Heap) maybeCollect() {
	if h.OnAlloc != nil && h.GCEnabled && h.AllocBytes > h.GCThreshold {
		h.OnAlloc(h)
	}
}

func (h *Heap) link(o Obj, size int) {
	hdr := o.header()
	hdr.next = h.head
	h.head = o
	h.AllocObjs++
	h.AllocBytes += size
}

// Head returns the head of the intrusive all-objects list, for callers
// (tests, gc) that need to walk every live object.
func (h *Heap) Head() Obj { return h.head }

// InternString returns the canonical *String for the given bytes, creating
// and linking a new one only if none is already interned. This is the only
// way a String is created, which is what makes string equality collapse to
// pointer identity (spec.md §3).
func (h *Heap) InternString(s string) *String {
	hash := hashString(s)
	if existing := h.Strings.FindString(s, hash); existing != nil {
		return existing
	}

	h.maybeCollect()
	str := &String{Bytes: s, Hash: hash}
	str.kind = ObjStringKind
	h.link(str, len(s)+24)
	h.Strings.Set(str, Bool(true))
	return str
}

// NewFunction allocates an uninitialized Function; the caller (the
// compiler) fills in its Chunk and Upvalues as it compiles the body.
func (h *Heap) NewFunction(name *String, arity int) *Function {
	h.maybeCollect()
	fn := &Function{Name: name, Arity: arity}
	fn.kind = ObjFunctionKind
	h.link(fn, 64)
	return fn
}

// NewClosure allocates a Closure over fn with nil upvalue slots, to be
// filled in by the VM's closure-materialization logic.
func (h *Heap) NewClosure(fn *Function) *Closure {
	h.maybeCollect()
	cl := &Closure{Function: fn, Upvalues: make([]*Upvalue, len(fn.Upvalues))}
	cl.kind = ObjClosureKind
	h.link(cl, 32+8*len(fn.Upvalues))
	return cl
}

// NewUpvalue allocates an open upvalue pointing at loc.
func (h *Heap) NewUpvalue(loc *Value) *Upvalue {
	h.maybeCollect()
	uv := NewOpenUpvalue(loc)
	h.link(uv, 48)
	return uv
}

// NewArray allocates an array wrapping elems (which the caller owns: no
// copy is made).
func (h *Heap) NewArray(elems []Value) *Array {
	h.maybeCollect()
	a := &Array{Elems: elems}
	a.kind = ObjArrayKind
	h.link(a, 24+16*len(elems))
	return a
}

// objSize approximates o's heap footprint for accounting purposes.
func objSize(o Obj) int {
	switch o := o.(type) {
	case *String:
		return len(o.Bytes) + 24
	case *Function:
		return 64
	case *Closure:
		return 32 + 8*len(o.Upvalues)
	case *Upvalue:
		return 48
	case *Array:
		return 24 + 16*len(o.Elems)
	default:
		return 0
	}
}

// Sweep walks the intrusive all-objects list, freeing every object whose
// mark bit is clear and clearing the mark bit of every object that
// survives. Freed strings are removed from the intern table so that no
// dangling key remains (spec.md §4.4 "Sweep").
func (h *Heap) Sweep() {
	var prev Obj
	cur := h.head
	for cur != nil {
		hdr := cur.header()
		next := hdr.next
		if hdr.marked {
			hdr.marked = false
			prev = cur
		} else {
			if prev == nil {
				h.head = next
			} else {
				prev.header().next = next
			}
			h.free(cur)
		}
		cur = next
	}
}

func (h *Heap) free(o Obj) {
	h.AllocObjs--
	h.AllocBytes -= objSize(o)
	if s, ok := o.(*String); ok {
		h.Strings.Delete(s)
	}
}
