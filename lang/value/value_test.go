package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/assert"
)

func TestTruthiness(t *testing.T) {
	assert.False(t, value.Nil.Truthy())
	assert.False(t, value.Bool(false).Truthy())
	assert.True(t, value.Bool(true).Truthy())
	assert.True(t, value.Number(0).Truthy())
	assert.True(t, value.Char(0).Truthy())

	h := value.NewHeap()
	assert.True(t, value.FromObj(h.InternString("")).Truthy())
}

func TestEquality(t *testing.T) {
	assert.True(t, value.Nil.Equal(value.Nil))
	assert.True(t, value.Bool(true).Equal(value.Bool(true)))
	assert.False(t, value.Bool(true).Equal(value.Bool(false)))
	assert.True(t, value.Number(1).Equal(value.Number(1)))
	assert.False(t, value.Number(1).Equal(value.Char(1)))
	assert.False(t, value.Nil.Equal(value.Bool(false)))
}

func TestStringEqualityCollapsesThroughInterning(t *testing.T) {
	h := value.NewHeap()
	a := h.InternString("abc")
	b := h.InternString("abc")
	assert.Same(t, a, b)
	assert.True(t, value.FromObj(a).Equal(value.FromObj(b)))

	c := h.InternString("abd")
	assert.False(t, value.FromObj(a).Equal(value.FromObj(c)))
}

func TestIsIntegral(t *testing.T) {
	assert.True(t, value.Number(4).IsIntegral())
	assert.False(t, value.Number(4.5).IsIntegral())
}

func TestFormat(t *testing.T) {
	h := value.NewHeap()
	assert.Equal(t, "nil", value.Format(value.Nil, false))
	assert.Equal(t, "true", value.Format(value.Bool(true), false))
	assert.Equal(t, "7", value.Format(value.Number(7), false))
	assert.Equal(t, "1.5", value.Format(value.Number(1.5), false))
	assert.Equal(t, "x", value.Format(value.Char('x'), false))
	assert.Equal(t, "'x'", value.Format(value.Char('x'), true))

	s := h.InternString("hi")
	assert.Equal(t, "hi", value.Format(value.FromObj(s), false))
	assert.Equal(t, `"hi"`, value.Format(value.FromObj(s), true))
}
