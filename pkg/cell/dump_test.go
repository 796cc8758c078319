package cell

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRestoreRoundTrip(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	env := h.Reg()
	*env = h.NewEnv()

	bind := func(name string, v *Cell) {
		s, err := h.Symbol(name)
		require.NoError(t, err)
		GlobalSet(*env, s, v)
	}

	bind("I", h.Int(42))
	bind("F", h.Float(3.5))
	bind("S", h.Str("hello"))
	bind("C", h.Char('q'))
	bind("L", list(h, 1, 2, 3))
	bind("V", h.VectorFromList(list(h, 7, 8)))
	bind("B", h.T)
	bind("N", h.Nil)

	var buf bytes.Buffer
	require.NoError(t, h.DumpEnv(&buf, *env))

	// restore into a second heap with its own symbol table
	h2 := NewHeap(0)
	save2 := h2.Mark()
	defer h2.Release(save2)
	env2 := h2.Reg()
	*env2 = h2.NewEnv()
	require.NoError(t, h2.RestoreEnv(bytes.NewReader(buf.Bytes()), *env2))

	get := func(name string) *Cell {
		s, err := h2.Symbol(name)
		require.NoError(t, err)
		return GlobalGet(*env2, s)
	}

	assert.EqualValues(t, 42, get("I").Int())
	assert.EqualValues(t, 3.5, get("F").Float())
	assert.Equal(t, "hello", get("S").Str())
	assert.Equal(t, byte('q'), get("C").Char())
	assert.Equal(t, "(1 2 3)", h2.Sprint(get("L")))
	assert.Equal(t, "#(7 8)", h2.Sprint(get("V")))
	assert.Equal(t, True, get("B").Kind())
	assert.Equal(t, Nil, get("N").Kind())
}

func TestDumpSkipsPrimitives(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	env := h.Reg()
	*env = h.NewEnv()

	s, err := h.Symbol("P")
	require.NoError(t, err)
	prim := h.NewCell(Primitive, 0, 0)
	prim.SetPrim(&PrimData{Name: "P", Required: 0, Allowed: 0})
	GlobalSet(*env, s, prim)

	var buf bytes.Buffer
	require.NoError(t, h.DumpEnv(&buf, *env))
	assert.Zero(t, buf.Len())
}

func TestDumpClosure(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	env, cl := h.Reg(), h.Reg()
	*env = h.NewEnv()

	// (lambda (x) x) with an empty captured environment
	x, err := h.Symbol("X")
	require.NoError(t, err)
	*cl = h.NewCell(Closure, 0, 0)
	(*cl).SetClosureParams(h.Cons(x, h.Nil))
	(*cl).SetClosureBody(h.Cons(x, h.Nil))
	(*cl).SetClosureEnv(h.Nil)

	fs, err := h.Symbol("ID")
	require.NoError(t, err)
	GlobalSet(*env, fs, *cl)

	var buf bytes.Buffer
	require.NoError(t, h.DumpEnv(&buf, *env))

	h2 := NewHeap(0)
	save2 := h2.Mark()
	defer h2.Release(save2)
	env2 := h2.Reg()
	*env2 = h2.NewEnv()
	require.NoError(t, h2.RestoreEnv(bytes.NewReader(buf.Bytes()), *env2))

	fs2, err := h2.Symbol("ID")
	require.NoError(t, err)
	got := GlobalGet(*env2, fs2)
	require.NotNil(t, got)
	assert.Equal(t, Closure, got.Kind())
	assert.Equal(t, "(X)", h2.Sprint(got.ClosureParams()))
	assert.Equal(t, "(X)", h2.Sprint(got.ClosureBody()))
}
