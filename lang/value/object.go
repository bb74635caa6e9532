package value

// ObjKind identifies which heap object variant an Obj is.
type ObjKind uint8

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjClosureKind
	ObjUpvalueKind
	ObjArrayKind
)

// Header is the common header every heap object embeds: the object kind,
// the intrusive next-pointer threading all live objects through the Heap's
// all-objects list, and the GC mark bit. See spec.md §3 "Heap objects".
type Header struct {
	kind   ObjKind
	next   Obj
	marked bool
}

func (h *Header) header() *Header { return h }

// Kind returns the object's variant tag.
func (h *Header) Kind() ObjKind { return h.kind }

// Obj is implemented by every heap-allocated value variant: *String,
// *Function, *Closure, *Upvalue, *Array.
type Obj interface {
	header() *Header
	Kind() ObjKind
}

// Mark sets o's mark bit and reports whether it was previously unmarked
// (i.e. whether the caller should now traverse its children). Used by the
// garbage collector (lang/gc); exported so gc need not reach into Header's
// unexported fields.
func Mark(o Obj) bool {
	h := o.header()
	if h.marked {
		return false
	}
	h.marked = true
	return true
}

// IsMarked reports whether o is currently marked.
func IsMarked(o Obj) bool { return o.header().marked }

// Unmark clears o's mark bit.
func Unmark(o Obj) { o.header().marked = false }

// Children returns the Values directly referenced by o, for GC marking: a
// Function's name and constants, a Closure's function and upvalues, a
// closed Upvalue's stored value, and an Array's elements. Strings have no
// children.
func Children(o Obj) []Value {
	switch o := o.(type) {
	case *String:
		return nil
	case *Function:
		out := make([]Value, 0, len(o.Chunk.Constants)+1)
		if o.Name != nil {
			out = append(out, FromObj(o.Name))
		}
		out = append(out, o.Chunk.Constants...)
		return out
	case *Closure:
		out := make([]Value, 0, len(o.Upvalues)+1)
		out = append(out, FromObj(o.Function))
		for _, uv := range o.Upvalues {
			if uv != nil {
				out = append(out, FromObj(uv))
			}
		}
		return out
	case *Upvalue:
		if o.isClosed {
			return []Value{o.closed}
		}
		return nil
	case *Array:
		return o.Elems
	default:
		return nil
	}
}
