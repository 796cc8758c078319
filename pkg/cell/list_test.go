package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// list builds a proper list from ints.
func list(h *Heap, xs ...int64) *Cell {
	save := h.Mark()
	defer h.Release(save)
	lst := h.Reg()
	*lst = h.Nil
	for i := len(xs) - 1; i >= 0; i-- {
		*lst = h.Cons(h.Int(xs[i]), *lst)
	}
	return *lst
}

func TestConsAndAccessors(t *testing.T) {
	h := NewHeap(0)
	l := list(h, 1, 2, 3)

	assert.Equal(t, 3, h.Length(l))
	assert.EqualValues(t, 1, h.Car(l).Int())
	assert.EqualValues(t, 2, h.Cadr(l).Int())
	assert.EqualValues(t, 3, h.Caddr(l).Int())

	// car/cdr of an atom is ()
	assert.True(t, h.Car(h.Int(5)).IsNull())
	assert.True(t, h.Cdr(h.Nil).IsNull())
}

func TestRev(t *testing.T) {
	h := NewHeap(0)
	l := h.Rev(list(h, 1, 2, 3))
	assert.Equal(t, "(3 2 1)", h.Sprint(l))
	assert.True(t, h.Rev(h.Nil).IsNull())
}

func TestEquality(t *testing.T) {
	h := NewHeap(0)

	a, _ := h.Symbol("X")
	b, _ := h.Symbol("X")
	assert.True(t, Eq(a, b))
	assert.True(t, Eq(h.Nil, h.Nil))
	assert.False(t, Eq(h.Int(1), h.Int(1))) // eq? undefined on numbers

	assert.True(t, Eqv(h.Int(4), h.Int(4)))
	assert.False(t, Eqv(h.Int(4), h.Float(4)))
	assert.True(t, Eqv(h.Char('a'), h.Char('a')))

	assert.True(t, Equal(list(h, 1, 2), list(h, 1, 2)))
	assert.False(t, Equal(list(h, 1, 2), list(h, 1, 3)))
	assert.True(t, Equal(h.Str("hi"), h.Str("hi")))

	v1 := h.VectorFromList(list(h, 1, 2))
	v2 := h.VectorFromList(list(h, 1, 2))
	assert.True(t, Equal(v1, v2))
}

func TestAssocAndMember(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	alist, key := h.Reg(), h.Reg()

	k1, _ := h.Symbol("A")
	*key = k1
	*alist = h.Cons(h.Cons(k1, h.Int(1)), h.Nil)

	found := h.Assq(*key, *alist)
	require.True(t, found.IsPair())
	assert.EqualValues(t, 1, found.Cdr().Int())

	missing, _ := h.Symbol("B")
	assert.Equal(t, h.F, h.Assq(missing, *alist))

	qa := h.QAssoc(*key, *alist)
	assert.True(t, qa.IsPair())
	assert.True(t, h.QAssoc(missing, *alist).IsNull())

	l := list(h, 1, 2, 3)
	assert.Equal(t, "(2 3)", h.Sprint(h.Memv(h.Int(2), l)))
	assert.Equal(t, h.F, h.Memv(h.Int(9), l))
}

func TestTreeCopy(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	orig, dup := h.Reg(), h.Reg()

	*orig = list(h, 1, 2, 3)
	*dup = h.TreeCopy(*orig)

	assert.True(t, Equal(*orig, *dup))
	assert.NotSame(t, *orig, *dup)

	// mutating the copy leaves the original alone
	(*dup).SetCar(h.Int(9))
	assert.EqualValues(t, 1, h.Car(*orig).Int())
}

func TestVectors(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	v := h.Reg()

	*v = h.MakeVector(3, h.Int(7))
	assert.Equal(t, "#(7 7 7)", h.Sprint(*v))

	h.VectorFill(*v, h.Nil)
	assert.Equal(t, "#(() () ())", h.Sprint(*v))

	*v = h.VectorFromList(list(h, 1, 2, 3))
	assert.Equal(t, "(1 2 3)", h.Sprint(h.ListFromVector(*v)))

	dup := h.VectorCopy(*v)
	assert.True(t, Equal(*v, dup))
}

func TestStackOps(t *testing.T) {
	h := NewHeap(0)
	s := NewStack("test", 3)

	require.NoError(t, s.Push(h.Int(1)))
	require.NoError(t, s.Push(h.Int(2)))
	assert.EqualValues(t, 2, s.Top().Int())
	assert.Equal(t, 2, s.Depth())

	c, err := s.Pop()
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.Int())

	// overflow
	require.NoError(t, s.Push(h.Int(2)))
	require.NoError(t, s.Push(h.Int(3)))
	assert.Error(t, s.Push(h.Int(4)))

	// underflow
	s.Reset()
	_, err = s.Pop()
	assert.Error(t, err)
	assert.Nil(t, s.Top())
}

func TestStackSnapshotRestore(t *testing.T) {
	h := NewHeap(0)
	s := NewStack("test", 10)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Push(h.Int(i)))
	}

	save := h.Mark()
	defer h.Release(save)
	snap := h.Reg()
	*snap = s.Snapshot(h)

	// bottom-to-top order
	assert.Equal(t, "(1 2 3)", h.Sprint(*snap))

	s.Reset()
	require.NoError(t, s.Push(h.Int(99)))
	s.RestoreFrom(*snap)
	assert.Equal(t, 3, s.Depth())
	assert.EqualValues(t, 3, s.Top().Int())
}

func TestPrinter(t *testing.T) {
	h := NewHeap(0)

	tests := []struct {
		build func() *Cell
		want  string
	}{
		{func() *Cell { return h.Nil }, "()"},
		{func() *Cell { return h.T }, "#T"},
		{func() *Cell { return h.F }, "#F"},
		{func() *Cell { return h.Eof }, "#EOF"},
		{func() *Cell { return h.Int(-42) }, "-42"},
		{func() *Cell { return h.Float(3.14) }, "3.14"},
		{func() *Cell { return h.Float(2) }, "2.0"},
		{func() *Cell { return h.Str("hi") }, `"hi"`},
		{func() *Cell { return h.Char(' ') }, `#\space`},
		{func() *Cell { return h.Char('\n') }, `#\newline`},
		{func() *Cell { return h.Char('x') }, `#\x`},
		{func() *Cell { return h.Cons(h.Int(1), h.Int(2)) }, "(1 . 2)"},
		{func() *Cell { return list(h, 1, 2, 3) }, "(1 2 3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.Sprint(tt.build()))
	}
}

func TestDisplayVsWrite(t *testing.T) {
	h := NewHeap(0)

	save := h.Mark()
	defer h.Release(save)
	c := h.Reg()

	*c = h.Str("hi")
	var wbuf, dbuf []byte
	wbuf = []byte(h.Sprint(*c))
	assert.Equal(t, `"hi"`, string(wbuf))

	var b testWriter
	h.Display(&b, *c)
	dbuf = b.data
	assert.Equal(t, "hi", string(dbuf))
}

type testWriter struct{ data []byte }

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
