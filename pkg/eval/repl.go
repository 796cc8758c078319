package eval

import (
	"strings"

	"gscheme/pkg/cell"
	"gscheme/pkg/lexer"
	"gscheme/pkg/reader"
)

// EvalString reads and evaluates every expression in src and returns the
// last value. Each expression goes straight from the reader onto the
// expression stack, so nothing parsed is ever unprotected from the
// collector while a previous expression runs.
func (m *Machine) EvalString(src string) (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	last := m.H.Reg()
	*last = m.H.Nil

	s := lexer.New(strings.NewReader(src))
	for {
		expr, err := reader.Read(m.H, s)
		if err != nil {
			return nil, asRuntime(err)
		}
		if expr == m.H.Eof {
			return *last, nil
		}

		v, err := m.EvalExpr(expr)
		if err != nil {
			return nil, err
		}
		*last = v
	}
}
