package eval

import "gscheme/pkg/cell"

// Type predicates. Each pops one argument and pushes #T or #F.

func (m *Machine) pred(test func(*cell.Cell) bool) error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Bool(test(c)))
}

// (NULL? obj). Both () and #F count as empty, the traditional reading.
func (m *Machine) opNull() error {
	return m.pred(func(c *cell.Cell) bool { return c.IsNull() || c.Kind() == cell.False })
}

func (m *Machine) opAtom() error   { return m.pred((*cell.Cell).IsAtom) }
func (m *Machine) opPair() error   { return m.pred((*cell.Cell).IsPair) }
func (m *Machine) opSymbol() error { return m.pred((*cell.Cell).IsSymbol) }
func (m *Machine) opNumber() error { return m.pred((*cell.Cell).IsNumber) }
func (m *Machine) opInteger() error { return m.pred((*cell.Cell).IsInt) }
func (m *Machine) opFloat() error  { return m.pred((*cell.Cell).IsFloat) }
func (m *Machine) opChar() error   { return m.pred((*cell.Cell).IsChar) }
func (m *Machine) opString() error { return m.pred((*cell.Cell).IsString) }
func (m *Machine) opVector() error { return m.pred((*cell.Cell).IsVector) }

func (m *Machine) opBoolean() error {
	return m.pred(func(c *cell.Cell) bool {
		return c.Kind() == cell.True || c.Kind() == cell.False
	})
}

// (PROCEDURE? obj). Closures, primitives and continuations apply.
func (m *Machine) opProcedure() error {
	return m.pred(func(c *cell.Cell) bool {
		return c.IsClosure() || c.IsFunc() || c.IsCont()
	})
}

func (m *Machine) opEofObj() error {
	return m.pred(func(c *cell.Cell) bool { return c.Kind() == cell.Eof })
}

func (m *Machine) opInPort() error {
	return m.pred(func(c *cell.Cell) bool {
		return c.IsPort() && c.Port().Dir == cell.PortInput
	})
}

func (m *Machine) opOutPort() error {
	return m.pred(func(c *cell.Cell) bool {
		return c.IsPort() && c.Port().Dir == cell.PortOutput
	})
}

// (ZERO? n) and friends.

func (m *Machine) numPred(who string, test func(number) bool) error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	n, err := m.number(c, who)
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Bool(test(n)))
}

func (m *Machine) opZero() error {
	return m.numPred("ZERO?", func(n number) bool { return n.zero() })
}

func (m *Machine) opPositive() error {
	return m.numPred("POSITIVE?", func(n number) bool { return n.float() > 0 })
}

func (m *Machine) opNegative() error {
	return m.numPred("NEGATIVE?", func(n number) bool { return n.float() < 0 })
}

func (m *Machine) opOdd() error {
	return m.intPred("ODD?", func(i int64) bool { return i%2 != 0 })
}

func (m *Machine) opEven() error {
	return m.intPred("EVEN?", func(i int64) bool { return i%2 == 0 })
}

func (m *Machine) intPred(who string, test func(int64) bool) error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	if !c.IsInt() {
		return m.errorf("%s requires an integer", who)
	}
	return m.pushVal(m.H.Bool(test(c.Int())))
}

// (NOT obj)
func (m *Machine) opNot() error {
	return m.pred((*cell.Cell).IsFalse)
}

// Equality: (EQ? a b), (EQV? a b), (EQUAL? a b). The second argument is
// on top of the value stack.

func (m *Machine) eqPred(same func(a, b *cell.Cell) bool) error {
	b, err := m.popVal()
	if err != nil {
		return err
	}
	a, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Bool(same(a, b)))
}

func (m *Machine) opEq() error    { return m.eqPred(cell.Eq) }
func (m *Machine) opEqv() error   { return m.eqPred(cell.Eqv) }
func (m *Machine) opEqual() error { return m.eqPred(cell.Equal) }

// Character comparisons; both operands must be characters.

func (m *Machine) charCompare(who string, test func(a, b byte) bool) error {
	b, err := m.popVal()
	if err != nil {
		return err
	}
	a, err := m.popVal()
	if err != nil {
		return err
	}
	if !a.IsChar() || !b.IsChar() {
		return m.errorf("%s requires characters", who)
	}
	return m.pushVal(m.H.Bool(test(a.Char(), b.Char())))
}

func (m *Machine) opCharE() error {
	return m.charCompare("CHAR=?", func(a, b byte) bool { return a == b })
}

func (m *Machine) opCharL() error {
	return m.charCompare("CHAR<?", func(a, b byte) bool { return a < b })
}

func (m *Machine) opCharG() error {
	return m.charCompare("CHAR>?", func(a, b byte) bool { return a > b })
}

func (m *Machine) opCharLE() error {
	return m.charCompare("CHAR<=?", func(a, b byte) bool { return a <= b })
}

func (m *Machine) opCharGE() error {
	return m.charCompare("CHAR>=?", func(a, b byte) bool { return a >= b })
}

// String comparisons.

func (m *Machine) strCompare(who string, test func(a, b string) bool) error {
	b, err := m.popVal()
	if err != nil {
		return err
	}
	a, err := m.popVal()
	if err != nil {
		return err
	}
	if !a.IsString() || !b.IsString() {
		return m.errorf("%s requires strings", who)
	}
	return m.pushVal(m.H.Bool(test(a.Str(), b.Str())))
}

func (m *Machine) opStrE() error {
	return m.strCompare("STRING=?", func(a, b string) bool { return a == b })
}

func (m *Machine) opStrL() error {
	return m.strCompare("STRING<?", func(a, b string) bool { return a < b })
}

func (m *Machine) opStrG() error {
	return m.strCompare("STRING>?", func(a, b string) bool { return a > b })
}

func (m *Machine) opStrLE() error {
	return m.strCompare("STRING<=?", func(a, b string) bool { return a <= b })
}

func (m *Machine) opStrGE() error {
	return m.strCompare("STRING>=?", func(a, b string) bool { return a >= b })
}
