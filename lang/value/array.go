package value

// Array is a supplemental heap object (spec.md §9 open question, resolved in
// SPEC_FULL.md §9 to implement arrays) backing array literals ([e, ...]) and
// the sized constructor (array[n]).
type Array struct {
	Header
	Elems []Value
}

// Len returns the number of elements in the array.
func (a *Array) Len() int { return len(a.Elems) }
