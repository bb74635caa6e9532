package value

// Table is an open-addressed, linear-probing hash table keyed by interned
// *String, used for string interning (spec.md §4.5). Empty slots are
// represented by key == nil with value Bool(false); tombstones (deleted
// slots that must not break a probe chain) by key == nil with value
// Bool(true) — the exact encoding spec.md §4.5 specifies, so that Delete
// during a sweep leaves no dangling key without needing a separate bitmap.
type Table struct {
	entries []tableEntry
	count   int // live entries + tombstones, compared against load factor
}

type tableEntry struct {
	key *String
	val Value
}

const tableMaxLoad = 0.75

// NewTable returns an empty Table.
func NewTable() *Table { return &Table{} }

func newEntries(n int) []tableEntry {
	es := make([]tableEntry, n)
	for i := range es {
		es[i].val = Bool(false) // empty, not a tombstone
	}
	return es
}

func isEmptySlot(e *tableEntry) bool {
	return e.key == nil && e.val.kind == KindBool && !e.val.boolean
}

func isTombstone(e *tableEntry) bool {
	return e.key == nil && e.val.kind == KindBool && e.val.boolean
}

// findEntry returns the slot key should occupy: either the existing entry
// for key, the first tombstone seen along the probe chain, or the first
// truly empty slot if key is absent and no tombstone was seen.
func findEntry(entries []tableEntry, key *String) *tableEntry {
	idx := int(key.Hash) % len(entries)
	var tombstone *tableEntry
	for {
		e := &entries[idx]
		switch {
		case isEmptySlot(e):
			if tombstone != nil {
				return tombstone
			}
			return e
		case isTombstone(e):
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key || e.key.Bytes == key.Bytes:
			return e
		}
		idx = (idx + 1) % len(entries)
	}
}

// Set stores val under key, growing the table first if needed. It reports
// whether key was not already present.
func (t *Table) Set(key *String, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && isEmptySlot(e) {
		t.count++
	}
	e.key = key
	e.val = val
	return isNewKey
}

// Get returns the value stored under key, if present.
func (t *Table) Get(key *String) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Value{}, false
	}
	return e.val, true
}

// Delete removes key, leaving a tombstone so later probe chains that passed
// through this slot stay valid. It reports whether key was present.
func (t *Table) Delete(key *String) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = Bool(true) // tombstone
	return true
}

// FindString probes the table by hash and compares raw bytes, letting
// interning look up a candidate string before any *String for it exists.
func (t *Table) FindString(bytes string, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}
	idx := int(hash) % len(t.entries)
	for {
		e := &t.entries[idx]
		switch {
		case isEmptySlot(e):
			return nil
		case isTombstone(e):
			// keep probing
		case e.key.Hash == hash && e.key.Bytes == bytes:
			return e.key
		}
		idx = (idx + 1) % len(t.entries)
	}
}

func (t *Table) grow() {
	newCap := 8
	if n := len(t.entries); n > 0 {
		newCap = n * 2
	}
	newEs := newEntries(newCap)
	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dst := findEntry(newEs, e.key)
		dst.key = e.key
		dst.val = e.val
		t.count++
	}
	t.entries = newEs
}

// Len returns the number of live (non-tombstone, non-empty) entries.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.key != nil {
			n++
		}
	}
	return n
}
