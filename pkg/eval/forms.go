package eval

import "gscheme/pkg/cell"

// The primitive special forms. A form's entry handler is called with its
// unevaluated arguments on the expression stack above the Call marker.
// Forms that need the value of a sub-expression suspend themselves: they
// stash what they already know on the value stack, push a Resume cell,
// push the sub-expression, and return to the loop; the resume handler
// finishes the job when the value arrives.
//
// The last sub-expression of begin, and, and or is pushed without a
// resume underneath (the mark below it is popped instead), so nothing is
// left to run on its return. That is the tail-call property.

// throwAwayVal discards value-stack entries down to the mark.
func (m *Machine) throwAwayVal() error {
	for !m.Val.Empty() {
		c, err := m.popVal()
		if err != nil {
			return err
		}
		if c == m.sMark {
			return nil
		}
	}
	return nil
}

// (QUOTE x)
func (m *Machine) opQuote() error {
	x, err := m.popExpr()
	if err != nil {
		return err
	}
	if err := m.pushVal(x); err != nil {
		return err
	}
	// pop the Call marker
	_, err = m.popExpr()
	return err
}

// (LAMBDA params body...) builds a closure over the current nested
// environment.
func (m *Machine) opLambda() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	args, close := m.H.Reg(), m.H.Reg()

	a, err := m.gatherExpr()
	if err != nil {
		return err
	}
	*args = a

	*close = m.H.NewCell(cell.Closure, 0, 0)
	(*close).SetClosureParams(m.H.Car(*args))
	(*close).SetClosureBody(m.H.Cdr(*args))
	(*close).SetClosureEnv(m.env.EnvNested())

	return m.pushVal(*close)
}

// ----------------------------------------------------------------------
// define and set!
// ----------------------------------------------------------------------

// (DEFINE sym expr) evaluates expr and binds it globally; defining an
// already-defined symbol is an error. (DEFINE (name . params) body...)
// is the procedure shorthand and replaces any previous binding.
func (m *Machine) opDefine() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	args, sym := m.H.Reg(), m.H.Reg()

	a, err := m.gatherExpr()
	if err != nil {
		return err
	}
	*args = a
	*sym = m.H.Car(*args)

	if !(*sym).IsAtom() {
		// procedure shorthand
		close := m.H.Reg()
		*close = m.H.NewCell(cell.Closure, 0, 0)
		(*close).SetClosureParams(m.H.Cdr(*sym))
		(*close).SetClosureBody(m.H.Cdr(*args))
		(*close).SetClosureEnv(m.env.EnvNested())

		*sym = m.H.Car(*sym)
		if err := m.defGlobal(*sym, *close); err != nil {
			return err
		}
		return m.pushVal(*sym)
	}

	if !(*sym).IsSymbol() {
		return m.errorVal("DEFINE: can't bind to non-symbol: ", *sym)
	}

	// symbol below a mark, then evaluate the expression and resume
	if err := m.pushVal(*sym); err != nil {
		return err
	}
	if err := m.pushVal(m.sMark); err != nil {
		return err
	}
	if err := m.pushExpr(m.H.NewResume(opDefine)); err != nil {
		return err
	}
	return m.pushExpr(m.H.Cadr(*args))
}

func (m *Machine) opResDefine() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, value := m.H.Reg(), m.H.Reg()

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*value = v
	if _, err := m.popVal(); err != nil { // mark
		return err
	}
	s, err := m.popVal()
	if err != nil {
		return err
	}
	*sym = s

	if m.accGlobal(*sym, m.env) != nil {
		return m.errorVal("DEFINE: symbol already defined: ", *sym)
	}
	if err := m.defGlobal(*sym, *value); err != nil {
		return err
	}
	return m.pushVal(*sym)
}

// (SET! sym expr) evaluates expr and updates the nearest binding: the
// nested environment first, then the global.
func (m *Machine) opSet() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, exp := m.H.Reg(), m.H.Reg()

	s, err := m.popExpr()
	if err != nil {
		return err
	}
	*sym = s
	e, err := m.popExpr()
	if err != nil {
		return err
	}
	*exp = e
	if _, err := m.popExpr(); err != nil { // Call marker
		return err
	}

	if !(*sym).IsSymbol() {
		return m.errorVal("SET!: can't bind to non-symbol: ", *sym)
	}

	if err := m.pushVal(*sym); err != nil {
		return err
	}
	if err := m.pushVal(m.sMark); err != nil {
		return err
	}
	if err := m.pushExpr(m.H.NewResume(opSet)); err != nil {
		return err
	}
	return m.pushExpr(*exp)
}

func (m *Machine) setSymbol(sym, value *cell.Cell) error {
	if binding := m.accNested(sym); !binding.IsNull() {
		binding.SetCdr(value)
		return nil
	}
	if m.accGlobal(sym, m.env) != nil {
		return m.defGlobal(sym, value)
	}
	return m.errorVal("SET!: symbol undefined: ", sym)
}

func (m *Machine) opResSet() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, value := m.H.Reg(), m.H.Reg()

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*value = v
	if _, err := m.popVal(); err != nil { // mark
		return err
	}
	s, err := m.popVal()
	if err != nil {
		return err
	}
	*sym = s

	if err := m.setSymbol(*sym, *value); err != nil {
		return err
	}
	return m.pushVal(*sym)
}

// ----------------------------------------------------------------------
// begin, or, and
// ----------------------------------------------------------------------

// seqStart moves the form's expressions onto the value stack above a
// mark, arranged so they pop in source order, then seeds the dummy value
// and calls the resume handler directly.
func (m *Machine) seqStart(empty *cell.Cell, dummy *cell.Cell, res func(*cell.Cell) error, op byte) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	exp, lst := m.H.Reg(), m.H.Reg()

	e, err := m.popExpr()
	if err != nil {
		return err
	}
	if e == m.sCall {
		return m.pushVal(empty)
	}
	if err := m.pushVal(m.sMark); err != nil {
		return err
	}

	// expressions pop off the expression stack first-to-last; collect
	// them so they can go onto the value stack last-to-first
	*lst = m.H.Nil
	for e != m.sCall {
		*exp = e
		*lst = m.H.Cons(*exp, *lst)
		e, err = m.popExpr()
		if err != nil {
			return err
		}
	}
	for c := *lst; c.IsPair(); c = c.Cdr() {
		if err := m.pushVal(c.Car()); err != nil {
			return err
		}
	}

	if err := m.pushVal(dummy); err != nil {
		return err
	}
	return res(m.H.NewResume(op))
}

// (BEGIN e...) evaluates left to right; the value is the last
// expression's. (BEGIN) is ().
func (m *Machine) opBegin() error {
	return m.seqStart(m.H.Nil, m.H.Nil, m.opResBegin, opBegin)
}

func (m *Machine) opResBegin(res *cell.Cell) error {
	// discard the previous expression's value
	if _, err := m.popVal(); err != nil {
		return err
	}
	exp, err := m.popVal()
	if err != nil {
		return err
	}

	// the last expression runs without a resume underneath: pop the
	// mark instead, and its value simply becomes ours
	if m.Val.Top() == m.sMark {
		if _, err := m.popVal(); err != nil {
			return err
		}
	} else if err := m.pushExpr(res); err != nil {
		return err
	}
	return m.pushExpr(exp)
}

// (OR e...) returns the first non-false value; (OR) is #F.
func (m *Machine) opOr() error {
	return m.seqStart(m.H.F, m.H.Nil, m.opResOr, opOr)
}

func (m *Machine) opResOr(res *cell.Cell) error {
	result, err := m.popVal()
	if err != nil {
		return err
	}
	if !result.IsFalse() {
		if err := m.throwAwayVal(); err != nil {
			return err
		}
		return m.pushVal(result)
	}

	exp, err := m.popVal()
	if err != nil {
		return err
	}
	if m.Val.Top() == m.sMark {
		if _, err := m.popVal(); err != nil {
			return err
		}
	} else if err := m.pushExpr(res); err != nil {
		return err
	}
	return m.pushExpr(exp)
}

// (AND e...) returns the first false value, or the last value; (AND) is
// #T.
func (m *Machine) opAnd() error {
	return m.seqStart(m.H.T, m.H.T, m.opResAnd, opAnd)
}

func (m *Machine) opResAnd(res *cell.Cell) error {
	result, err := m.popVal()
	if err != nil {
		return err
	}
	if result.IsFalse() {
		if err := m.throwAwayVal(); err != nil {
			return err
		}
		return m.pushVal(result)
	}

	exp, err := m.popVal()
	if err != nil {
		return err
	}
	if m.Val.Top() == m.sMark {
		if _, err := m.popVal(); err != nil {
			return err
		}
	} else if err := m.pushExpr(res); err != nil {
		return err
	}
	return m.pushExpr(exp)
}

// ----------------------------------------------------------------------
// if
// ----------------------------------------------------------------------

// (IF cond then [else]). With no alternate and a false condition, the
// value is the condition's value.
func (m *Machine) opIf() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	cond, cons, alt := m.H.Reg(), m.H.Reg(), m.H.Reg()

	c, err := m.popExpr()
	if err != nil {
		return err
	}
	*cond = c
	t, err := m.popExpr()
	if err != nil {
		return err
	}
	*cons = t
	a, err := m.popExpr()
	if err != nil {
		return err
	}

	if a == m.sCall {
		// no alternate; leave the Call sentinel standing in for it
		*alt = m.sCall
	} else {
		*alt = a
		if _, err := m.popExpr(); err != nil { // Call marker
			return err
		}
	}

	if err := m.pushVal(*alt); err != nil {
		return err
	}
	if err := m.pushVal(*cons); err != nil {
		return err
	}
	if err := m.pushVal(m.sMark); err != nil {
		return err
	}
	if err := m.pushExpr(m.H.NewResume(opIf)); err != nil {
		return err
	}
	return m.pushExpr(*cond)
}

func (m *Machine) opResIf() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	value, cons, alt := m.H.Reg(), m.H.Reg(), m.H.Reg()

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*value = v
	if _, err := m.popVal(); err != nil { // mark
		return err
	}
	t, err := m.popVal()
	if err != nil {
		return err
	}
	*cons = t
	a, err := m.popVal()
	if err != nil {
		return err
	}
	*alt = a

	if (*value).IsFalse() {
		if *alt == m.sCall {
			return m.pushVal(*value)
		}
		return m.pushExpr(*alt)
	}
	return m.pushExpr(*cons)
}

// ----------------------------------------------------------------------
// macro
// ----------------------------------------------------------------------

// (MACRO sym expr) evaluates expr to an expander procedure and binds sym
// to it in the expansion table. The expander receives the whole original
// form and its result replaces that form.
func (m *Machine) opMacro() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, fn := m.H.Reg(), m.H.Reg()

	s, err := m.popExpr()
	if err != nil {
		return err
	}
	*sym = s
	f, err := m.popExpr()
	if err != nil {
		return err
	}
	*fn = f
	if _, err := m.popExpr(); err != nil { // Call marker
		return err
	}

	if !(*sym).IsSymbol() {
		return m.errorVal("MACRO: can't make macro of non-symbol: ", *sym)
	}

	if err := m.pushVal(*sym); err != nil {
		return err
	}
	if err := m.pushExpr(m.H.NewResume(opMacro)); err != nil {
		return err
	}
	return m.pushExpr(*fn)
}

func (m *Machine) opResMacro() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	name, expand, binding, etbl := m.H.Reg(), m.H.Reg(), m.H.Reg(), m.H.Reg()

	e, err := m.popVal()
	if err != nil {
		return err
	}
	*expand = e
	n, err := m.popVal()
	if err != nil {
		return err
	}
	*name = n

	*etbl = m.accGlobal(m.expTable, m.env)

	*binding = m.H.QAssoc(*name, *etbl)
	if !(*binding).IsNull() {
		(*binding).SetCdr(*expand)
	} else {
		*binding = m.H.Cons(*name, *expand)
		*etbl = m.H.Cons(*binding, *etbl)
		if err := m.defGlobal(m.expTable, *etbl); err != nil {
			return err
		}
	}
	return m.pushVal(*name)
}

// ----------------------------------------------------------------------
// Compiled define, set! and macro
// ----------------------------------------------------------------------

// bcSet is the bytecode half of set!: the compiler evaluated the symbol
// and value in line, so just pop and bind.
func (m *Machine) bcSet() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, value := m.H.Reg(), m.H.Reg()

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*value = v
	s, err := m.popVal()
	if err != nil {
		return err
	}
	*sym = s

	if err := m.setSymbol(*sym, *value); err != nil {
		return err
	}
	return m.pushVal(*sym)
}

// bcDefine is the bytecode half of define.
func (m *Machine) bcDefine() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, value := m.H.Reg(), m.H.Reg()

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*value = v
	s, err := m.popVal()
	if err != nil {
		return err
	}
	*sym = s

	if !(*sym).IsSymbol() {
		return m.errorVal("DEFINE: can't bind to non-symbol: ", *sym)
	}
	if m.accGlobal(*sym, m.env) != nil {
		return m.errorVal("DEFINE: symbol already defined: ", *sym)
	}
	if err := m.defGlobal(*sym, *value); err != nil {
		return err
	}
	return m.pushVal(*sym)
}

// bcMacro rejects macro inside bytecode; macro is interpreted only.
func (m *Machine) bcMacro() error {
	return m.errorf("MACRO cannot run from compiled code")
}
