package value

// UpvalueDesc records, for one upvalue captured by a Function, whether it
// is captured directly from a local slot in the enclosing function's frame
// (IsLocal) or forwarded from the enclosing function's own upvalue array at
// Index. See spec.md §3 "Function".
type UpvalueDesc struct {
	Index   uint8
	IsLocal bool
}

// Function is a compiled function: its name (nil for anonymous functions),
// arity, compiled Chunk, and the upvalue descriptors the VM consults when
// materializing a Closure over it.
type Function struct {
	Header
	Name     *String
	Arity    int
	Chunk    Chunk
	Upvalues []UpvalueDesc
}

// DisplayName returns the name used by the printing rules: "<fn NAME>" or
// "<anonymous fn>".
func (f *Function) DisplayName() string {
	if f.Name == nil {
		return "anonymous fn"
	}
	return "fn " + f.Name.Bytes
}
