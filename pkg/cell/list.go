package cell

import "fmt"

// Constructors and the list/vector/equality microcode. Everything here
// that allocates more than one cell roots its intermediates on the
// register stack; callers only need to protect what they pass in.

// Int returns a fresh integer cell.
func (h *Heap) Int(v int64) *Cell {
	c := h.NewCell(Int, 0, 0)
	c.num = v
	return c
}

// Float returns a fresh float cell.
func (h *Heap) Float(v float64) *Cell {
	c := h.NewCell(Float, 0, 0)
	c.fnum = v
	return c
}

// Char returns a fresh character cell.
func (h *Heap) Char(v byte) *Cell {
	c := h.NewCell(Char, 0, 0)
	c.ch = v
	return c
}

// Str returns a fresh string cell.
func (h *Heap) Str(s string) *Cell {
	c := h.NewCell(String, 0, 0)
	c.str = s
	return c
}

// Symbol interns name and returns a symbol cell for it.
func (h *Heap) Symbol(name string) (*Cell, error) {
	i, err := h.Symbols.Intern(name)
	if err != nil {
		return nil, err
	}
	c := h.NewCell(Symbol, 0, 0)
	c.num = int64(i)
	return c, nil
}

// SymbolName returns the interned name of a symbol cell.
func (h *Heap) SymbolName(c *Cell) string {
	return h.Symbols.Name(c.SymbolIndex())
}

// Gensym returns a symbol not previously interned.
func (h *Heap) Gensym() (*Cell, error) {
	for {
		name := fmt.Sprintf("G%d", h.gensym)
		h.gensym++
		if !h.Symbols.IsInterned(name) {
			return h.Symbol(name)
		}
	}
}

// NewResume returns a Resume cell carrying the given operation code.
func (h *Heap) NewResume(op byte) *Cell {
	c := h.NewCell(Resume, 0, 0)
	c.num = int64(op)
	return c
}

// NewPort wraps host port data in a cell.
func (h *Heap) NewPort(p *PortData) *Cell {
	c := h.NewCell(Port, 0, 0)
	c.port = p
	return c
}

// Cons allocates a pair. The arguments are rooted for the allocation.
func (h *Heap) Cons(car, cdr *Cell) *Cell {
	save := h.Mark()
	defer h.Release(save)
	a, d := h.Reg(), h.Reg()
	*a, *d = car, cdr

	p := h.NewCell(Pair, 0, 0)
	p.a = *a
	p.b = *d
	return p
}

// Car and Cdr are the tolerant accessors: the car or cdr of an atom is ().
func (h *Heap) Car(c *Cell) *Cell {
	if c.IsPair() {
		return c.a
	}
	return h.Nil
}

func (h *Heap) Cdr(c *Cell) *Cell {
	if c.IsPair() {
		return c.b
	}
	return h.Nil
}

func (h *Heap) Cadr(c *Cell) *Cell  { return h.Car(h.Cdr(c)) }
func (h *Heap) Cddr(c *Cell) *Cell  { return h.Cdr(h.Cdr(c)) }
func (h *Heap) Caddr(c *Cell) *Cell { return h.Car(h.Cddr(c)) }

// Length returns the number of top-level pairs in l.
func (h *Heap) Length(l *Cell) int {
	n := 0
	for l.IsPair() {
		n++
		l = l.b
	}
	return n
}

// Rev reverses l destructively and returns the new head.
func (h *Heap) Rev(l *Cell) *Cell {
	prev := h.Nil
	for l.IsPair() {
		next := l.b
		l.b = prev
		prev = l
		l = next
	}
	return prev
}

// ----------------------------------------------------------------------
// Equality
// ----------------------------------------------------------------------

// Eq is identity: the same cell, or the same interned symbol.
func Eq(a, b *Cell) bool {
	if a == b {
		return true
	}
	return SameSymbol(a, b)
}

// Eqv extends Eq over numbers of the same type, characters, and the
// empty string.
func Eqv(a, b *Cell) bool {
	if Eq(a, b) {
		return true
	}
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case Int:
		return a.num == b.num
	case Float:
		return a.fnum == b.fnum
	case Char:
		return a.ch == b.ch
	case String:
		return a.str == "" && b.str == ""
	}
	return false
}

// Equal is structural equality over pairs, vectors and strings, Eqv
// elsewhere.
func Equal(a, b *Cell) bool {
	if a.tag == String && b.tag == String {
		return a.str == b.str
	}
	if a.tag == Vector && b.tag == Vector {
		if len(a.cells) != len(b.cells) {
			return false
		}
		for i := range a.cells {
			if !Equal(a.cells[i], b.cells[i]) {
				return false
			}
		}
		return true
	}
	if a.IsAtom() || b.IsAtom() {
		return Eqv(a, b)
	}
	return Equal(a.a, b.a) && Equal(a.b, b.b)
}

// ----------------------------------------------------------------------
// Association and membership
// ----------------------------------------------------------------------

func (h *Heap) assocBy(key, alist *Cell, same func(a, b *Cell) bool) *Cell {
	for alist.IsPair() {
		head := h.Car(alist)
		if same(h.Car(head), key) {
			return head
		}
		alist = alist.b
	}
	return h.F
}

// Assoc, Assq and Assv return the first binding pair whose key matches, or #f.
func (h *Heap) Assoc(key, alist *Cell) *Cell { return h.assocBy(key, alist, Equal) }
func (h *Heap) Assq(key, alist *Cell) *Cell  { return h.assocBy(key, alist, Eq) }
func (h *Heap) Assv(key, alist *Cell) *Cell  { return h.assocBy(key, alist, Eqv) }

// QAssoc is the fast symbol-keyed lookup used for environments and the
// expansion table. It returns the binding pair or ().
func (h *Heap) QAssoc(sym, alist *Cell) *Cell {
	for alist.IsPair() {
		head := alist.a
		if head.IsPair() && head.a.num == sym.num && head.a.tag == Symbol {
			return head
		}
		alist = alist.b
	}
	return h.Nil
}

func (h *Heap) memberBy(o, l *Cell, same func(a, b *Cell) bool) *Cell {
	for l.IsPair() {
		if same(h.Car(l), o) {
			return l
		}
		l = l.b
	}
	return h.F
}

// Member, Memq and Memv return the first sublist whose car matches, or #f.
func (h *Heap) Member(o, l *Cell) *Cell { return h.memberBy(o, l, Equal) }
func (h *Heap) Memq(o, l *Cell) *Cell   { return h.memberBy(o, l, Eq) }
func (h *Heap) Memv(o, l *Cell) *Cell   { return h.memberBy(o, l, Eqv) }

// ----------------------------------------------------------------------
// Copying
// ----------------------------------------------------------------------

// CopyCell returns a shallow copy of c. The singletons are never copied.
func (h *Heap) CopyCell(c *Cell) *Cell {
	switch c.tag {
	case Nil, True, False, Eof:
		return c
	case Vector:
		return h.VectorCopy(c)
	}

	save := h.Mark()
	defer h.Release(save)
	src := h.Reg()
	*src = c

	var dup *Cell
	if c.tag == Bytecode {
		dup = h.NewCell(Bytecode, len(c.code), len(c.cells))
		copy(dup.code, (*src).code)
		copy(dup.cells, (*src).cells)
		return dup
	}

	dup = h.rawCell(c.tag)
	mark := dup.mark
	*dup = *(*src)
	dup.mark = mark
	return dup
}

// TreeCopy duplicates a tree of pairs; atoms are shallow-copied.
func (h *Heap) TreeCopy(t *Cell) *Cell {
	if t.IsNull() {
		return h.Nil
	}

	save := h.Mark()
	defer h.Release(save)
	src, dup := h.Reg(), h.Reg()
	*src = t

	*dup = h.CopyCell(t)
	if (*dup).IsPair() {
		(*dup).a = h.TreeCopy((*src).a)
		(*dup).b = h.TreeCopy((*src).b)
	}
	return *dup
}

// ----------------------------------------------------------------------
// Vectors
// ----------------------------------------------------------------------

// MakeVector returns a vector of n slots filled with fill.
func (h *Heap) MakeVector(n int, fill *Cell) *Cell {
	save := h.Mark()
	defer h.Release(save)
	f := h.Reg()
	*f = fill

	v := h.NewCell(Vector, n, 0)
	for i := range v.cells {
		v.cells[i] = *f
	}
	return v
}

// VectorFromList converts a proper list into a vector.
func (h *Heap) VectorFromList(l *Cell) *Cell {
	save := h.Mark()
	defer h.Release(save)
	lst := h.Reg()
	*lst = l

	v := h.NewCell(Vector, h.Length(l), 0)
	for i, c := 0, *lst; c.IsPair(); i, c = i+1, c.b {
		v.cells[i] = c.a
	}
	return v
}

// ListFromVector converts a vector into a proper list.
func (h *Heap) ListFromVector(v *Cell) *Cell {
	save := h.Mark()
	defer h.Release(save)
	vec, lst := h.Reg(), h.Reg()
	*vec = v
	*lst = h.Nil

	for i := v.VectorLen() - 1; i >= 0; i-- {
		*lst = h.Cons((*vec).cells[i], *lst)
	}
	return *lst
}

// VectorCopy deep-copies a vector, tree-copying each element.
func (h *Heap) VectorCopy(v *Cell) *Cell {
	save := h.Mark()
	defer h.Release(save)
	old, dup := h.Reg(), h.Reg()
	*old = v

	*dup = h.MakeVector(v.VectorLen(), h.Nil)
	for i := 0; i < (*old).VectorLen(); i++ {
		(*dup).cells[i] = h.TreeCopy((*old).cells[i])
	}
	return *dup
}

// VectorFill overwrites every element of v with o.
func (h *Heap) VectorFill(v, o *Cell) {
	for i := range v.cells {
		v.cells[i] = o
	}
}

// ----------------------------------------------------------------------
// Environments
// ----------------------------------------------------------------------

// NewEnv returns a fresh environment: an empty nested a-list and a global
// vector with one unbound (nil) slot per symbol table index.
func (h *Heap) NewEnv() *Cell {
	save := h.Mark()
	defer h.Release(save)
	env := h.Reg()

	*env = h.NewCell(Environ, 0, 0)
	g := h.NewCell(Vector, h.Symbols.Cap(), 0)
	for i := range g.cells {
		g.cells[i] = nil // unbound, distinct from ()
	}
	(*env).b = g
	return *env
}

// GlobalGet returns the global binding of sym in env, or nil if unbound.
func GlobalGet(env, sym *Cell) *Cell {
	return env.b.cells[sym.SymbolIndex()]
}

// GlobalSet binds sym to val in env's global vector.
func GlobalSet(env, sym, val *Cell) {
	env.b.cells[sym.SymbolIndex()] = val
}
