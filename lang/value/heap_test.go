package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapSweepFreesUnmarkedObjects(t *testing.T) {
	h := value.NewHeap()
	kept := h.InternString("kept")
	gone := h.InternString("gone")

	value.Mark(kept)
	h.Sweep()

	assert.False(t, value.IsMarked(kept), "mark bit is cleared for survivors")

	_, ok := h.Strings.Get(gone)
	assert.False(t, ok, "unmarked string removed from intern table")

	// a fresh intern with the same bytes allocates a new object, proving the
	// old one is really gone from the table, not just unreachable via head.
	reinterned := h.InternString("gone")
	assert.NotSame(t, gone, reinterned)

	kept2 := h.Strings.FindString("kept", kept.Hash)
	require.NotNil(t, kept2)
	assert.Same(t, kept, kept2)
}

func TestHeapAllocBytesTracksFreed(t *testing.T) {
	h := value.NewHeap()
	h.InternString("abc")
	before := h.AllocBytes
	require.Greater(t, before, 0)

	h.Sweep() // nothing marked: everything is freed
	assert.Equal(t, 0, h.AllocBytes)
	assert.Equal(t, 0, h.AllocObjs)
}

func TestHeapOnAllocTriggersOnThreshold(t *testing.T) {
	h := value.NewHeap()
	h.GCThreshold = 1
	var triggered int
	h.OnAlloc = func(h *value.Heap) { triggered++ }

	h.InternString("a")
	assert.Equal(t, 0, triggered, "first allocation starts below the threshold")
	h.InternString("b")
	assert.Equal(t, 1, triggered)
}

func TestNewFunctionClosureUpvalueArray(t *testing.T) {
	h := value.NewHeap()
	name := h.InternString("f")
	fn := h.NewFunction(name, 2)
	fn.Upvalues = []value.UpvalueDesc{{Index: 0, IsLocal: true}}

	cl := h.NewClosure(fn)
	require.Len(t, cl.Upvalues, 1)

	var slot value.Value
	uv := h.NewUpvalue(&slot)
	assert.False(t, uv.IsClosed())
	uv.Set(value.Number(42))
	assert.Equal(t, float64(42), slot.AsNumber())
	uv.Close()
	assert.True(t, uv.IsClosed())
	assert.Equal(t, float64(42), uv.Get().AsNumber())

	arr := h.NewArray([]value.Value{value.Number(1), value.Number(2)})
	assert.Equal(t, 2, arr.Len())
}

func TestChildrenForGC(t *testing.T) {
	h := value.NewHeap()
	name := h.InternString("f")
	fn := h.NewFunction(name, 0)
	fn.Chunk.AddConstant(value.Number(1))

	children := value.Children(fn)
	require.Len(t, children, 2) // name + one constant
	assert.Same(t, name, children[0].AsObj())
}
