package cell

import (
	"fmt"
	"io"
	"os"
)

// Heap memory is a linked list of fixed-size segments of cells threaded
// onto a free list through the cdr slot. NewCell pops the free list; when
// the list is empty a collection runs, and only if the collection recovers
// nothing is a new segment added. In torture mode a collection runs before
// every allocation, which is the strongest test of register discipline:
// any temporary not rooted on the register stack disappears immediately.
//
// The collector is a plain mark-and-sweep. Roots are the register stack,
// the registered root sets (the three machine stacks and the current
// environment), and the permanent registers holding the system singletons.
// Marking recurses on cars and iterates on cdrs, and the mark bit makes it
// cycle-safe. Sweeping returns unmarked cells to the free list, clears the
// mark on survivors, and drops the code, constant and element slices of
// reclaimed cells.

const (
	segmentCells    = 500
	initialSegments = 1

	// MaxRegister bounds the register stack.
	MaxRegister = 1500
)

// RootSet is anything holding cells the collector must treat as live.
type RootSet interface {
	Roots(visit func(*Cell))
}

// Heap owns all cells, the register stack, and the symbol table.
type Heap struct {
	free  *Cell
	segs  [][]Cell
	reg   []*Cell
	top   int // register stack top
	saved int // post-init register mark, restored on top-level reset

	roots []RootSet

	// Torture forces a collection before every allocation.
	Torture bool
	// Debug enables collection statistics on Trace.
	Debug bool
	// Trace receives GC debug output; defaults to stderr.
	Trace io.Writer

	// The unique sentinel cells.
	Nil *Cell
	T   *Cell
	F   *Cell
	Eof *Cell

	// Symbols is the interning table backing Symbol cells.
	Symbols *SymbolTable

	gensym int
}

// NewHeap creates a heap with its initial segment, the sentinel
// singletons, and a symbol table of the given capacity (0 for default).
func NewHeap(symbols int) *Heap {
	h := &Heap{
		reg:     make([]*Cell, MaxRegister),
		Trace:   os.Stderr,
		Symbols: NewSymbolTable(symbols),
	}
	for i := 0; i < initialSegments; i++ {
		h.addSegment()
	}

	h.Nil = h.rawCell(Nil)
	h.T = h.rawCell(True)
	h.F = h.rawCell(False)
	h.Eof = h.rawCell(Eof)
	h.Permanent(h.Nil)
	h.Permanent(h.T)
	h.Permanent(h.F)
	h.Permanent(h.Eof)
	return h
}

// AddRoots registers an extra root set with the collector.
func (h *Heap) AddRoots(r RootSet) { h.roots = append(h.roots, r) }

// Bool maps a Go bool onto the boolean singletons.
func (h *Heap) Bool(b bool) *Cell {
	if b {
		return h.T
	}
	return h.F
}

// ----------------------------------------------------------------------
// Register stack
// ----------------------------------------------------------------------

// Mark captures the register stack top on entry to an operation.
func (h *Heap) Mark() int { return h.top }

// Release truncates the register stack back to a mark.
func (h *Heap) Release(mark int) {
	for i := mark; i < h.top; i++ {
		h.reg[i] = nil
	}
	h.top = mark
}

// Reg pushes a fresh register slot and returns a stable pointer to it.
// Anything stored through the pointer is a GC root until the enclosing
// Release. The idiom mirrors the usual shadow-stack discipline:
//
//	save := h.Mark()
//	defer h.Release(save)
//	lst := h.Reg()
//	*lst = h.Cons(x, y) // protected from here on
func (h *Heap) Reg() **Cell {
	if h.top >= len(h.reg) {
		panic(Fatalf("register stack overflow"))
	}
	h.reg[h.top] = nil
	slot := &h.reg[h.top]
	h.top++
	return slot
}

// Permanent pushes c onto the register stack below the saved mark so it
// survives top-level resets. Used for the system singletons and sentinels.
func (h *Heap) Permanent(c *Cell) *Cell {
	slot := h.Reg()
	*slot = c
	h.saved = h.top
	return c
}

// SealRegisters records the post-init register top. ResetRegisters
// restores it, dropping everything pushed since without losing the
// system cells.
func (h *Heap) SealRegisters()  { h.saved = h.top }
func (h *Heap) ResetRegisters() { h.Release(h.saved) }

// ----------------------------------------------------------------------
// Allocation
// ----------------------------------------------------------------------

// rawCell takes a cell off the free list without initializing a payload.
func (h *Heap) rawCell(tag Tag) *Cell {
	if h.Torture {
		h.collect()
	}
	if h.free == nil {
		if !h.collect() {
			h.addSegment()
		}
	}
	if h.free == nil {
		h.addSegment()
	}

	c := h.free
	h.free = c.b
	c.b = nil
	c.mark = false
	c.tag = tag
	return c
}

// NewCell returns a fresh cell of the given tag. Vectors get size elements
// initialized to (); bytecode gets size zeroed code bytes and nconst
// constants initialized to (). Pointer payloads start as () so a
// collection between allocation and initialization never chases junk.
func (h *Heap) NewCell(tag Tag, size, nconst int) *Cell {
	c := h.rawCell(tag)

	switch tag {
	case Vector:
		c.cells = make([]*Cell, size)
		for i := range c.cells {
			c.cells[i] = h.Nil
		}
	case Bytecode:
		c.code = make([]byte, size)
		c.cells = make([]*Cell, nconst)
		for i := range c.cells {
			c.cells[i] = h.Nil
		}
	case Pair, Closure, UserForm, Cont, Environ, ExePoint:
		c.a, c.b, c.c, c.d = h.Nil, h.Nil, h.Nil, h.Nil
	}
	return c
}

func (h *Heap) addSegment() {
	seg := make([]Cell, segmentCells)
	h.segs = append(h.segs, seg)
	for i := range seg {
		seg[i].tag = Free
		h.reclaim(&seg[i])
	}
}

// reclaim clears a cell and links it onto the free list.
func (h *Heap) reclaim(c *Cell) {
	*c = Cell{tag: Free}
	c.b = h.free
	h.free = c
}

// ----------------------------------------------------------------------
// Collection
// ----------------------------------------------------------------------

func (h *Heap) markCell(c *Cell) {
	if c == nil || c.mark {
		return
	}
	c.mark = true

	switch c.tag {
	case Pair:
		// recur on cars, iterate on cdrs so long lists don't
		// exhaust the Go stack
		for {
			h.markCell(c.a)
			c = c.b
			if c == nil || c.mark {
				return
			}
			if c.tag != Pair {
				h.markCell(c)
				return
			}
			c.mark = true
		}

	case Closure:
		h.markCell(c.a)
		h.markCell(c.b)
		h.markCell(c.c)

	case UserForm:
		h.markCell(c.b)
		h.markCell(c.c)

	case Cont:
		h.markCell(c.a)
		h.markCell(c.b)
		h.markCell(c.c)
		h.markCell(c.d)

	case Bytecode:
		for _, k := range c.cells {
			h.markCell(k)
		}

	case Vector:
		// global-environment vectors hold nil in unbound slots
		for _, e := range c.cells {
			if e != nil {
				h.markCell(e)
			}
		}

	case Environ:
		h.markCell(c.a)
		h.markCell(c.b)

	case ExePoint:
		h.markCell(c.a)
		h.markCell(c.b)

	case Nil, True, False, Eof, Int, Float, Symbol, Char, String,
		Port, Primitive, PrimForm, Resume:
		// no references to chase

	case Free:
		panic(Fatalf("marking a free cell"))
	}
}

func (h *Heap) markAll() {
	for i := 0; i < h.top; i++ {
		if h.reg[i] != nil {
			h.markCell(h.reg[i])
		}
	}
	for _, r := range h.roots {
		r.Roots(h.markCell)
	}
}

// collect runs a full mark-and-sweep. It reports whether any cell was
// recovered onto the free list.
func (h *Heap) collect() bool {
	if len(h.segs) == 0 {
		return false
	}
	if h.Debug {
		fmt.Fprintf(h.Trace, "gc: marking\n")
	}

	h.markAll()

	used, recovered := 0, 0
	for _, seg := range h.segs {
		for i := range seg {
			c := &seg[i]
			if c.tag == Free {
				continue
			}
			if c.mark {
				used++
				c.mark = false
			} else {
				recovered++
				h.reclaim(c)
			}
		}
	}

	if h.Debug {
		fmt.Fprintf(h.Trace, "gc: used %d recovered %d\n", used, recovered)
	}
	return h.free != nil
}

// Collect is the exported entry point used by tests and directives.
func (h *Heap) Collect() bool { return h.collect() }

// CellsInUse counts live (non-free) cells; diagnostics only.
func (h *Heap) CellsInUse() int {
	n := 0
	for _, seg := range h.segs {
		for i := range seg {
			if seg[i].tag != Free {
				n++
			}
		}
	}
	return n
}
