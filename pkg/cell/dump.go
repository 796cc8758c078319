package cell

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Environment persistence. The dump is a sequence of records, one per
// bound global: a length-prefixed symbol name followed by the value
// serialized recursively by tag. Primitives and forms are never dumped;
// startup re-binds them. Ports, continuations, execution points and
// environments have no sensible serialization and are skipped with their
// symbols.
//
// All integers on the wire are little-endian: lengths and sizes as
// uint32, Int payloads as int64, Float payloads as IEEE 754 doubles.

var wire = binary.LittleEndian

func dumpable(c *Cell) bool {
	switch c.Kind() {
	case Primitive, PrimForm, UserForm, Port, Cont, ExePoint, Environ:
		return false
	}
	return true
}

// DumpEnv writes every dumpable global binding of env to w.
func (h *Heap) DumpEnv(w io.Writer, env *Cell) error {
	glo := env.EnvGlobal()
	for i, val := range glo.Elems() {
		if val == nil || !dumpable(val) {
			continue
		}
		name := h.Symbols.Name(i)
		if err := writeBytes(w, []byte(name)); err != nil {
			return err
		}
		if err := h.dumpCell(w, val); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) dumpCell(w io.Writer, c *Cell) error {
	if err := binary.Write(w, wire, uint8(c.tag)); err != nil {
		return err
	}

	switch c.tag {
	case Nil, True, False, Eof:
		return nil

	case Symbol:
		return writeBytes(w, []byte(h.SymbolName(c)))

	case Int:
		return binary.Write(w, wire, c.num)

	case Float:
		return binary.Write(w, wire, c.fnum)

	case String:
		return writeBytes(w, []byte(c.str))

	case Char:
		return binary.Write(w, wire, c.ch)

	case Bytecode:
		if err := binary.Write(w, wire, uint32(len(c.code))); err != nil {
			return err
		}
		if err := binary.Write(w, wire, uint32(len(c.cells))); err != nil {
			return err
		}
		if _, err := w.Write(c.code); err != nil {
			return err
		}
		for _, k := range c.cells {
			if err := h.dumpCell(w, k); err != nil {
				return err
			}
		}
		return nil

	case Closure:
		if err := h.dumpCell(w, c.a); err != nil {
			return err
		}
		if err := h.dumpCell(w, c.b); err != nil {
			return err
		}
		return h.dumpCell(w, c.c)

	case Vector:
		if err := binary.Write(w, wire, uint32(len(c.cells))); err != nil {
			return err
		}
		for _, e := range c.cells {
			if err := h.dumpCell(w, e); err != nil {
				return err
			}
		}
		return nil

	case Pair:
		if err := h.dumpCell(w, c.a); err != nil {
			return err
		}
		return h.dumpCell(w, c.b)

	default:
		return fmt.Errorf("dump-environment: unsupported type %s", c.tag)
	}
}

// RestoreEnv reads records from r and binds them into env's globals until
// end of input.
func (h *Heap) RestoreEnv(r io.Reader, env *Cell) error {
	save := h.Mark()
	defer h.Release(save)
	e, sym, val := h.Reg(), h.Reg(), h.Reg()
	*e = env

	for {
		name, err := readBytes(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		s, err := h.Symbol(string(name))
		if err != nil {
			return err
		}
		*sym = s

		*val, err = h.restoreCell(r)
		if err != nil {
			return err
		}
		GlobalSet(*e, *sym, *val)
	}
}

func (h *Heap) restoreCell(r io.Reader) (*Cell, error) {
	var tag uint8
	if err := binary.Read(r, wire, &tag); err != nil {
		return nil, err
	}

	switch Tag(tag) {
	case Nil:
		return h.Nil, nil
	case True:
		return h.T, nil
	case False:
		return h.F, nil
	case Eof:
		return h.Eof, nil

	case Symbol:
		name, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return h.Symbol(string(name))

	case Int:
		var v int64
		if err := binary.Read(r, wire, &v); err != nil {
			return nil, err
		}
		return h.Int(v), nil

	case Float:
		var v float64
		if err := binary.Read(r, wire, &v); err != nil {
			return nil, err
		}
		return h.Float(v), nil

	case String:
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return h.Str(string(b)), nil

	case Char:
		var v uint8
		if err := binary.Read(r, wire, &v); err != nil {
			return nil, err
		}
		return h.Char(v), nil

	case Bytecode:
		var ncode, nconst uint32
		if err := binary.Read(r, wire, &ncode); err != nil {
			return nil, err
		}
		if err := binary.Read(r, wire, &nconst); err != nil {
			return nil, err
		}

		save := h.Mark()
		defer h.Release(save)
		bc := h.Reg()
		*bc = h.NewCell(Bytecode, int(ncode), int(nconst))

		if _, err := io.ReadFull(r, (*bc).code); err != nil {
			return nil, err
		}
		for i := 0; i < int(nconst); i++ {
			k, err := h.restoreCell(r)
			if err != nil {
				return nil, err
			}
			(*bc).cells[i] = k
		}
		return *bc, nil

	case Closure:
		save := h.Mark()
		defer h.Release(save)
		cl := h.Reg()
		*cl = h.NewCell(Closure, 0, 0)

		env, err := h.restoreCell(r)
		if err != nil {
			return nil, err
		}
		(*cl).a = env
		parms, err := h.restoreCell(r)
		if err != nil {
			return nil, err
		}
		(*cl).b = parms
		body, err := h.restoreCell(r)
		if err != nil {
			return nil, err
		}
		(*cl).c = body
		return *cl, nil

	case Vector:
		var n uint32
		if err := binary.Read(r, wire, &n); err != nil {
			return nil, err
		}

		save := h.Mark()
		defer h.Release(save)
		v := h.Reg()
		*v = h.NewCell(Vector, int(n), 0)

		for i := 0; i < int(n); i++ {
			e, err := h.restoreCell(r)
			if err != nil {
				return nil, err
			}
			(*v).cells[i] = e
		}
		return *v, nil

	case Pair:
		save := h.Mark()
		defer h.Release(save)
		p := h.Reg()
		*p = h.NewCell(Pair, 0, 0)

		car, err := h.restoreCell(r)
		if err != nil {
			return nil, err
		}
		(*p).a = car
		cdr, err := h.restoreCell(r)
		if err != nil {
			return nil, err
		}
		(*p).b = cdr
		return *p, nil

	default:
		return nil, fmt.Errorf("restore-environment: unsupported type %d", tag)
	}
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, wire, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, wire, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return b, nil
}
