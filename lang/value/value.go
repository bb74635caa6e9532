// Package value implements the runtime value model: the tagged Value union,
// the heap object variants (strings, functions, closures, upvalues, arrays),
// the intrusive all-objects heap, and the open-addressed string intern
// table. See spec.md §3 for the data model this package implements.
package value

import (
	"fmt"
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindChar
	KindObj
	KindBuiltin
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindChar:
		return "char"
	case KindObj:
		return "object"
	case KindBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("invalid kind (%d)", k)
	}
}

// Value is a tagged variant over Nil, Bool, Number, Char, Obj (heap
// reference) and Builtin (host function). It is deliberately a plain
// comparable-by-field struct rather than an interface: the VM pushes and
// pops millions of these on the value stack and an interface's extra
// indirection and allocation would defeat the point of a bytecode VM.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	char    byte
	obj     Obj
	builtin *Builtin
}

// Nil is the nil value.
var Nil = Value{kind: KindNil}

// Bool returns the boolean value b.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number returns the numeric value n.
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }

// Char returns the character value c.
func Char(c byte) Value { return Value{kind: KindChar, char: c} }

// FromObj returns a Value wrapping the heap object o.
func FromObj(o Obj) Value {
	if o == nil {
		return Nil
	}
	return Value{kind: KindObj, obj: o}
}

// FromBuiltin returns a Value wrapping the host builtin b.
func FromBuiltin(b *Builtin) Value { return Value{kind: KindBuiltin, builtin: b} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is Nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsBool reports whether v holds a Bool.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsNumber reports whether v holds a Number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsChar reports whether v holds a Char.
func (v Value) IsChar() bool { return v.kind == KindChar }

// IsObj reports whether v holds a heap object.
func (v Value) IsObj() bool { return v.kind == KindObj }

// IsBuiltin reports whether v holds a host builtin.
func (v Value) IsBuiltin() bool { return v.kind == KindBuiltin }

// AsBool returns the boolean held by v. It panics if v is not a Bool.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		panic("value: AsBool on non-bool value")
	}
	return v.boolean
}

// AsNumber returns the number held by v. It panics if v is not a Number.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		panic("value: AsNumber on non-number value")
	}
	return v.number
}

// AsChar returns the byte held by v. It panics if v is not a Char.
func (v Value) AsChar() byte {
	if v.kind != KindChar {
		panic("value: AsChar on non-char value")
	}
	return v.char
}

// AsObj returns the heap object held by v, or nil if v is not an Obj.
func (v Value) AsObj() Obj {
	if v.kind != KindObj {
		return nil
	}
	return v.obj
}

// AsBuiltin returns the builtin held by v, or nil if v is not a Builtin.
func (v Value) AsBuiltin() *Builtin {
	if v.kind != KindBuiltin {
		return nil
	}
	return v.builtin
}

// AsString returns the *String held by v, or nil if v does not hold a
// string object.
func (v Value) AsString() *String {
	if v.kind != KindObj {
		return nil
	}
	s, _ := v.obj.(*String)
	return s
}

// Truthy reports whether v is truthy: everything except Nil and Bool(false)
// is truthy, including 0 and the empty string.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.boolean
	default:
		return true
	}
}

// Equal implements value equality per spec.md §3: Nil equals Nil, bools and
// numbers compare by value, heap objects compare by reference identity
// except strings (which compare equal through interning), and values of
// different kinds are never equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindChar:
		return v.char == other.char
	case KindObj:
		if vs, ok := v.obj.(*String); ok {
			os, ok := other.obj.(*String)
			return ok && vs == os
		}
		return v.obj == other.obj
	case KindBuiltin:
		return v.builtin == other.builtin
	default:
		return false
	}
}

// IsIntegral reports whether v is a finite Number with no fractional part.
func (v Value) IsIntegral() bool {
	return v.kind == KindNumber && !math.IsInf(v.number, 0) && v.number == math.Trunc(v.number)
}
