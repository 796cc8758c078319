package cell

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The printer emits S-expression syntax. Write produces readable syntax
// where one exists (strings quoted, characters as #\c); Display produces
// human output (strings and characters raw). Values without a readable
// syntax print as #<...> forms.

// Write prints c to w in readable form.
func (h *Heap) Write(w io.Writer, c *Cell) {
	h.emit(w, c, false)
}

// Display prints c to w in human form.
func (h *Heap) Display(w io.Writer, c *Cell) {
	h.emit(w, c, true)
}

// Sprint renders c in readable form as a string; diagnostics and tests.
func (h *Heap) Sprint(c *Cell) string {
	var b strings.Builder
	h.Write(&b, c)
	return b.String()
}

func (h *Heap) emit(w io.Writer, c *Cell, display bool) {
	if c == nil {
		fmt.Fprint(w, "#<unbound>")
		return
	}
	if c.IsAtom() {
		h.emitAtom(w, c, display)
		return
	}

	fmt.Fprint(w, "(")
	for !c.IsNull() {
		h.emit(w, c.a, display)
		c = c.b

		if !c.IsNull() && !c.IsPair() {
			fmt.Fprint(w, " . ")
			h.emitAtom(w, c, display)
			break
		}
		if !c.IsNull() {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprint(w, ")")
}

func (h *Heap) emitAtom(w io.Writer, c *Cell, display bool) {
	switch c.tag {
	case Nil:
		fmt.Fprint(w, "()")

	case True:
		fmt.Fprint(w, "#T")

	case False:
		fmt.Fprint(w, "#F")

	case Eof:
		fmt.Fprint(w, "#EOF")

	case Symbol:
		fmt.Fprint(w, h.SymbolName(c))

	case Int:
		fmt.Fprintf(w, "%d", c.num)

	case Float:
		fmt.Fprint(w, formatFloat(c.fnum))

	case String:
		if display {
			fmt.Fprint(w, c.str)
		} else {
			fmt.Fprintf(w, "%q", c.str)
		}

	case Char:
		if display {
			fmt.Fprintf(w, "%c", c.ch)
		} else {
			switch c.ch {
			case '\n':
				fmt.Fprint(w, "#\\newline")
			case ' ':
				fmt.Fprint(w, "#\\space")
			case '\t':
				fmt.Fprint(w, "#\\tab")
			default:
				fmt.Fprintf(w, "#\\%c", c.ch)
			}
		}

	case Port:
		fmt.Fprint(w, "#<Port>")

	case Primitive:
		fmt.Fprintf(w, "#<Primitive procedure %s>", c.prim.Name)

	case PrimForm:
		fmt.Fprintf(w, "#<Primitive form %s>", c.prim.Name)

	case UserForm:
		fmt.Fprint(w, "#<Form>")

	case Bytecode:
		fmt.Fprintf(w, "#<Code,%d>", len(c.code))

	case ExePoint:
		fmt.Fprintf(w, "#<PC,%d>", c.ExePC())

	case Closure:
		fmt.Fprint(w, "#<Closure>")

	case Cont:
		fmt.Fprint(w, "#<Continuation>")

	case Environ:
		fmt.Fprint(w, "#<Environment>")

	case Resume:
		fmt.Fprintf(w, "#<Resume,%d>", c.num)

	case Vector:
		fmt.Fprint(w, "#(")
		for i, e := range c.cells {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			h.emit(w, e, display)
		}
		fmt.Fprint(w, ")")

	default:
		fmt.Fprintf(w, "#<%s>", c.tag)
	}
}

// formatFloat prints floats so they read back as floats: a value with no
// fractional digits gets a trailing ".0" rather than printing as an
// integer literal.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
