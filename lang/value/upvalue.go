package value

// Upvalue is a runtime handle for a variable captured from an enclosing
// function's stack frame. While open, Loc points into the live value stack;
// Close copies the current value into the embedded closed field and
// redirects Loc there, so the upvalue can outlive the frame that created it.
//
// All currently open upvalues form a singly-linked list (Next), sorted by
// descending stack address, rooted at the VM; see spec.md §3 "Upvalue" and
// §4.3 "Closing upvalues".
type Upvalue struct {
	Header
	Loc      *Value
	closed   Value
	isClosed bool
	Next     *Upvalue
}

// NewOpenUpvalue returns an upvalue pointing at the given stack slot. It
// does not link the upvalue into the heap or the open-upvalues list; callers
// (lang/vm) own that bookkeeping since only the VM knows the current stack
// address ordering.
func NewOpenUpvalue(loc *Value) *Upvalue {
	u := &Upvalue{Loc: loc}
	u.kind = ObjUpvalueKind
	return u
}

// Get returns the upvalue's current value, whether open or closed.
func (u *Upvalue) Get() Value { return *u.Loc }

// Set stores v into the upvalue's current location, whether open or closed.
func (u *Upvalue) Set(v Value) { *u.Loc = v }

// IsClosed reports whether the upvalue has been closed.
func (u *Upvalue) IsClosed() bool { return u.isClosed }

// Close copies the value at Loc into the embedded storage and redirects Loc
// there. It is idempotent.
func (u *Upvalue) Close() {
	if u.isClosed {
		return
	}
	u.closed = *u.Loc
	u.Loc = &u.closed
	u.isClosed = true
}
