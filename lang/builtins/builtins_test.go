package builtins_test

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/mna/loxvm/lang/builtins"
	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegisterer struct {
	globals map[string]value.Value
}

func newFakeRegisterer() *fakeRegisterer {
	return &fakeRegisterer{globals: make(map[string]value.Value)}
}

func (f *fakeRegisterer) DefineGlobal(name string, v value.Value) {
	f.globals[name] = v
}

func TestRegisterBindsEveryBuiltin(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)

	for _, name := range []string{"clock", "print", "println", "scanln", "getc", "random", "exit"} {
		v, ok := r.globals[name]
		require.True(t, ok, "missing global %q", name)
		assert.True(t, v.IsBuiltin())
	}
}

func callBuiltin(t *testing.T, r *fakeRegisterer, name string, h *value.Heap, env value.IO, argv []value.Value) (value.Value, error) {
	t.Helper()
	v, ok := r.globals[name]
	require.True(t, ok)
	b := v.AsBuiltin()
	require.Equal(t, len(argv), b.Arity)
	return b.Fn(h, env, argv)
}

func TestClockReturnsElapsedSeconds(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	env := value.IO{Clock: func() float64 { return 1.5 }}

	got, err := callBuiltin(t, r, "clock", h, env, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.AsNumber())
}

func TestPrintWritesWithoutNewline(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	var buf bytes.Buffer
	env := value.IO{Stdout: &buf}

	got, err := callBuiltin(t, r, "print", h, env, []value.Value{value.Number(3)})
	require.NoError(t, err)
	assert.Equal(t, value.Nil, got)
	assert.Equal(t, "3", buf.String())
}

func TestPrintlnAppendsNewline(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	var buf bytes.Buffer
	env := value.IO{Stdout: &buf}

	_, err := callBuiltin(t, r, "println", h, env, []value.Value{value.Number(3)})
	require.NoError(t, err)
	assert.Equal(t, "3\n", buf.String())
}

func TestScanlnStripsLineTerminator(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	env := value.IO{Stdin: bufio.NewReader(strings.NewReader("hello\nworld\n"))}

	got, err := callBuiltin(t, r, "scanln", h, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.AsString().Bytes)
}

func TestScanlnReturnsPartialLineAtEOF(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	env := value.IO{Stdin: bufio.NewReader(strings.NewReader("no newline"))}

	got, err := callBuiltin(t, r, "scanln", h, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "no newline", got.AsString().Bytes)
}

func TestGetcReadsOneByte(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()
	env := value.IO{Stdin: bufio.NewReader(strings.NewReader("ab"))}

	got, err := callBuiltin(t, r, "getc", h, env, nil)
	require.NoError(t, err)
	assert.Equal(t, byte('a'), got.AsChar())
}

func TestRandomIsWithinUnitRange(t *testing.T) {
	r := newFakeRegisterer()
	builtins.Register(r)
	h := value.NewHeap()

	for i := 0; i < 20; i++ {
		got, err := callBuiltin(t, r, "random", h, value.IO{}, nil)
		require.NoError(t, err)
		n := got.AsNumber()
		assert.GreaterOrEqual(t, n, 0.0)
		assert.Less(t, n, 1.0)
	}
}
