package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingletons(t *testing.T) {
	h := NewHeap(0)

	assert.Equal(t, Nil, h.Nil.Kind())
	assert.Equal(t, True, h.T.Kind())
	assert.Equal(t, False, h.F.Kind())
	assert.Equal(t, Eof, h.Eof.Kind())

	assert.True(t, h.Nil.IsNull())
	assert.True(t, h.Nil.IsFalse())
	assert.True(t, h.F.IsFalse())
	assert.False(t, h.T.IsFalse())
}

func TestRegisterProtection(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	kept := h.Reg()
	*kept = h.Int(42)

	// unprotected cell disappears at the next collection
	doomed := h.Int(99)

	h.Collect()
	assert.Equal(t, Int, (*kept).Kind())
	assert.EqualValues(t, 42, (*kept).Int())
	assert.Equal(t, Free, doomed.Kind())

	h.Release(save)
}

func TestReleaseDropsProtection(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	c := h.Reg()
	*c = h.Int(7)
	gone := *c
	h.Release(save)

	h.Collect()
	assert.Equal(t, Free, gone.Kind())
}

func TestCollectionRecyclesAndGrows(t *testing.T) {
	h := NewHeap(0)

	// churn through several segments' worth of garbage; the heap
	// should recycle rather than grow without bound
	for i := 0; i < 10*segmentCells; i++ {
		h.Int(int64(i))
	}
	assert.LessOrEqual(t, len(h.segs), 2)

	// protected cells force a segment to be added once nothing can
	// be recovered
	save := h.Mark()
	lst := h.Reg()
	*lst = h.Nil
	for i := 0; i < 2*segmentCells; i++ {
		*lst = h.Cons(h.Nil, *lst)
	}
	assert.GreaterOrEqual(t, len(h.segs), 2)
	assert.Equal(t, 2*segmentCells, h.Length(*lst))
	h.Release(save)
}

func TestTortureMode(t *testing.T) {
	h := NewHeap(0)
	h.Torture = true

	save := h.Mark()
	lst := h.Reg()
	*lst = h.Nil
	for i := 0; i < 100; i++ {
		*lst = h.Cons(h.Int(int64(i)), *lst)
	}
	require.Equal(t, 100, h.Length(*lst))

	// verify contents survived every collection
	i := int64(99)
	for c := *lst; c.IsPair(); c = c.Cdr() {
		require.EqualValues(t, i, c.Car().Int())
		i--
	}
	h.Release(save)
}

func TestMarkingHandlesCycles(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	p := h.Reg()
	*p = h.Cons(h.Nil, h.Nil)
	(*p).SetCdr(*p) // self-referencing pair
	(*p).SetCar(*p)

	h.Collect()
	assert.Equal(t, Pair, (*p).Kind())
	h.Release(save)
}

func TestVectorAndBytecodePayloads(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	v, bc := h.Reg(), h.Reg()

	*v = h.NewCell(Vector, 3, 0)
	assert.Equal(t, 3, (*v).VectorLen())
	for _, e := range (*v).Elems() {
		assert.True(t, e.IsNull())
	}

	*bc = h.NewCell(Bytecode, 4, 2)
	assert.Len(t, (*bc).Code(), 4)
	assert.Len(t, (*bc).Constants(), 2)

	// payloads survive a collection
	(*v).Elems()[0] = h.Int(5)
	h.Collect()
	assert.EqualValues(t, 5, (*v).Elems()[0].Int())
}

func TestSymbolInterning(t *testing.T) {
	h := NewHeap(0)

	a, err := h.Symbol("FOO")
	require.NoError(t, err)
	b, err := h.Symbol("FOO")
	require.NoError(t, err)
	c, err := h.Symbol("BAR")
	require.NoError(t, err)

	assert.True(t, SameSymbol(a, b))
	assert.False(t, SameSymbol(a, c))
	assert.Equal(t, "FOO", h.SymbolName(a))
}

func TestSymbolTableFull(t *testing.T) {
	st := NewSymbolTable(4)
	for _, s := range []string{"A", "B", "C", "D"} {
		_, err := st.Intern(s)
		require.NoError(t, err)
	}
	_, err := st.Intern("E")
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	// existing symbols still resolve
	i1, err := st.Intern("A")
	require.NoError(t, err)
	i2, _ := st.Intern("A")
	assert.Equal(t, i1, i2)
}

func TestGensymIsFresh(t *testing.T) {
	h := NewHeap(0)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		g, err := h.Gensym()
		require.NoError(t, err)
		name := h.SymbolName(g)
		assert.False(t, seen[name])
		seen[name] = true
	}
}
