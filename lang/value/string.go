package value

// String is an immutable, interned byte string. Two Strings with equal
// Bytes are always the same *String: allocation always goes through
// Heap.InternString, which returns the existing object if one with the
// same bytes is already interned. This is what lets Value.Equal compare
// strings by pointer identity.
type String struct {
	Header
	Bytes string
	Hash  uint32
}

// hashString computes the FNV-1a hash used throughout, matching the clox
// reference implementation's constants (original_source/clox/src/object.c).
func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (s *String) Len() int { return len(s.Bytes) }
