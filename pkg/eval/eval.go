package eval

import (
	"fmt"

	"gscheme/pkg/cell"
)

// The dispatch loop. Run pops one entry at a time from the expression
// stack and acts on it until the stack is empty:
//
//	()          push () on the value stack
//	PushFunc    move the evaluated callable to the function stack
//	Call        apply the function stack's top
//	bytecode    enter the bytecode interpreter
//	Restore     reinstate a saved nested environment
//	Resume      complete a suspended special form
//	atom        evaluate; special forms are invoked on the spot
//	pair        expand via the expansion table, or schedule the
//	            combination: Call marker, arguments right to left,
//	            PushFunc, then the operator
//
// Arguments are pushed right to left so they evaluate left to right.

// Run evaluates until the expression stack is empty.
func (m *Machine) Run() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	exp := m.H.Reg()
	fn := m.H.Reg()

	for !m.Expr.Empty() {
		if m.interrupted.Load() {
			m.interrupted.Store(false)
			return ErrInterrupt
		}
		if m.EvalDebug {
			m.DumpStacks(m.out())
		}

		e, err := m.popExpr()
		if err != nil {
			return err
		}
		*exp = e

		switch {
		case e == m.H.Nil:
			// () is illegal syntax by the book, but evaluating
			// it to itself is friendlier
			if err := m.pushVal(e); err != nil {
				return err
			}

		case e == m.sPushFunc:
			f, err := m.popVal()
			if err != nil {
				return err
			}
			*fn = f
			if err := m.pushFunc(f); err != nil {
				return err
			}

			if f.IsFunc() {
				if err := m.countArgs(f); err != nil {
					return err
				}
				// variadic primitives delimit their
				// arguments with a mark
				p := f.Prim()
				if p.Required != p.Allowed {
					if err := m.pushVal(m.sMark); err != nil {
						return err
					}
				}
			} else {
				// user callables always get a mark; the
				// binder pops it
				if err := m.pushVal(m.sMark); err != nil {
					return err
				}
			}

		case e == m.sCall:
			f, err := m.popFunc()
			if err != nil {
				return err
			}
			*fn = f
			if err := m.apply(f); err != nil {
				return err
			}

		case e.IsCode() || e.IsExe():
			if err := m.invokeBC(e); err != nil {
				return err
			}

		case e == m.sRestore:
			prev, err := m.popExpr()
			if err != nil {
				return err
			}
			// a whole environment cell means eval switched
			// environments; otherwise just the nested part
			if prev.IsEnviron() {
				m.env = prev
			} else {
				m.env.SetEnvNested(prev)
			}

		case e.IsResume():
			if err := m.invokeRes(e); err != nil {
				return err
			}

		case e.IsAtom():
			v, err := m.evalAtom(e)
			if err != nil {
				return err
			}
			*exp = v

			// special forms run before their arguments are
			// evaluated
			if v.IsForm() || v.IsUserForm() {
				if err := m.invokeForm(v); err != nil {
					return err
				}
			} else if err := m.pushVal(v); err != nil {
				return err
			}

		default:
			// a combination (f a1 ...)
			expanded, err := m.expandOnce(e)
			if err != nil {
				return err
			}
			if expanded {
				continue
			}

			if err := m.pushExpr(m.sCall); err != nil {
				return err
			}

			// collect the arguments and push them right to
			// left; pushing allocates nothing, so the slice
			// is safe from the collector
			var args []*cell.Cell
			for rest := m.H.Cdr(e); rest.IsPair(); rest = rest.Cdr() {
				args = append(args, rest.Car())
			}
			for i := len(args) - 1; i >= 0; i-- {
				if err := m.pushExpr(args[i]); err != nil {
					return err
				}
			}

			if err := m.pushExpr(m.sPushFunc); err != nil {
				return err
			}
			if err := m.pushExpr(m.H.Car(e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvalExpr pushes one expression, runs the loop, and pops the result.
func (m *Machine) EvalExpr(c *cell.Cell) (*cell.Cell, error) {
	if err := m.pushExpr(c); err != nil {
		return nil, err
	}
	if err := m.Run(); err != nil {
		return nil, err
	}
	return m.popVal()
}

// evalAtom returns the value of an atom in the current environment:
// constants evaluate to themselves, symbols to their nearest binding.
func (m *Machine) evalAtom(atom *cell.Cell) (*cell.Cell, error) {
	switch atom.Kind() {
	case cell.True, cell.False, cell.Int, cell.Float,
		cell.String, cell.Char, cell.Vector, cell.Eof:
		return atom, nil
	}

	if !atom.IsSymbol() {
		return nil, m.errorVal("EVAL: can't evaluate non-symbol: ", atom)
	}

	if binding := m.accNested(atom); !binding.IsNull() {
		return binding.Cdr(), nil
	}
	if v := m.accGlobal(atom, m.env); v != nil {
		return v, nil
	}
	return nil, m.errorVal("EVAL: undefined symbol ", atom)
}

// countArgs checks the primitive's arity against the argument
// expressions sitting between the stack top and the Call marker.
func (m *Machine) countArgs(f *cell.Cell) error {
	n := 0
	for i := 0; ; i++ {
		c := m.Expr.Peek(i)
		if c == nil || c == m.sCall {
			break
		}
		n++
	}
	if f.Prim().ArityOK(n) {
		return nil
	}
	return m.errorf("EVAL: wrong number of args to primitive procedure %s", f.Prim().Name)
}

// gatherVal pops values down to the mark and returns them as a list in
// evaluation order.
func (m *Machine) gatherVal() (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	args, exp := m.H.Reg(), m.H.Reg()
	*args = m.H.Nil

	for {
		e, err := m.popVal()
		if err != nil {
			return nil, err
		}
		if e == m.sMark {
			return *args, nil
		}
		*exp = e
		*args = m.H.Cons(*exp, *args)
	}
}

// gatherExpr pops expressions down to the Call marker and returns them as
// a list in source order.
func (m *Machine) gatherExpr() (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	args, exp := m.H.Reg(), m.H.Reg()
	*args = m.H.Nil

	for {
		e, err := m.popExpr()
		if err != nil {
			return nil, err
		}
		if e == m.sCall {
			break
		}
		*exp = e
		*args = m.H.Cons(*exp, *args)
	}
	*args = m.H.Rev(*args)
	return *args, nil
}

// ----------------------------------------------------------------------
// Apply
// ----------------------------------------------------------------------

// apply invokes f on the arguments already evaluated onto the value
// stack.
func (m *Machine) apply(f *cell.Cell) error {
	switch {
	case f.IsClosure():
		return m.invokeUserFunc(f.ClosureParams(), f.ClosureBody(), f.ClosureEnv())

	case f.IsCont():
		return m.invokeCont(f)

	case f.IsFunc():
		// arity was checked when the function moved to the
		// function stack
		return f.Prim().Fn()

	default:
		return m.errorVal("APPLY: can't apply the non-function ", f)
	}
}

// invokeUserFunc enters a closure: save the caller's environment, bind
// arguments to parameters on top of the closure's captured environment,
// and evaluate the body.
func (m *Machine) invokeUserFunc(parms, body, env *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	b := m.H.Reg()
	*b = body

	if err := m.saveEnv(); err != nil {
		return err
	}
	nested, err := m.bindArgs(parms, env)
	if err != nil {
		return err
	}
	m.env.SetEnvNested(nested)

	return m.evalBody(*b)
}

// evalBody runs a closure or form body: compiled bodies enter the
// bytecode interpreter, list bodies run through begin.
func (m *Machine) evalBody(body *cell.Cell) error {
	if body.IsExe() || body.IsCode() {
		return m.invokeBC(body)
	}

	if err := m.pushExpr(m.sCall); err != nil {
		return err
	}
	var exps []*cell.Cell
	for c := body; c.IsPair(); c = c.Cdr() {
		exps = append(exps, c.Car())
	}
	for i := len(exps) - 1; i >= 0; i-- {
		if err := m.pushExpr(exps[i]); err != nil {
			return err
		}
	}
	return m.opBegin()
}

// bindArgs builds the extended nested environment for a closure call.
// The parameter spec may be a single symbol (bind the whole argument
// list), a proper list, or an improper list whose tail symbol collects
// the remaining arguments.
func (m *Machine) bindArgs(parms, env *cell.Cell) (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	p, nenv, args, bind := m.H.Reg(), m.H.Reg(), m.H.Reg(), m.H.Reg()
	*p = parms
	*nenv = env

	lst, err := m.gatherVal()
	if err != nil {
		return nil, err
	}
	*args = lst

	for !(*p).IsNull() {
		if (*p).IsAtom() {
			// rest parameter takes everything left
			*bind = m.H.Cons(*p, *args)
			*nenv = m.H.Cons(*bind, *nenv)
			return *nenv, nil
		}
		if (*args).IsNull() {
			return nil, m.errorf("too few args in call to function")
		}

		*bind = m.H.Cons((*p).Car(), (*args).Car())
		*nenv = m.H.Cons(*bind, *nenv)
		*p = (*p).Cdr()
		*args = (*args).Cdr()
	}

	if !(*args).IsNull() {
		return nil, m.errorf("too many args in call to function")
	}
	return *nenv, nil
}

// ----------------------------------------------------------------------
// User-defined special forms
// ----------------------------------------------------------------------

// invokeUserForm enters a user special form. Unlike a closure it has no
// captured environment (the body runs in the caller's environment) and
// its arguments are the unevaluated expressions still sitting on the
// expression stack.
func (m *Machine) invokeUserForm(parms, body *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	b := m.H.Reg()
	*b = body

	if err := m.saveEnv(); err != nil {
		return err
	}
	nested, err := m.bindFormArgs(parms, m.env.EnvNested())
	if err != nil {
		return err
	}
	m.env.SetEnvNested(nested)

	return m.evalBody(*b)
}

// bindFormArgs binds parameters to the unevaluated argument expressions
// popped from the expression stack.
func (m *Machine) bindFormArgs(parms, env *cell.Cell) (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	p, nenv, value, bind := m.H.Reg(), m.H.Reg(), m.H.Reg(), m.H.Reg()
	*p = parms
	*nenv = env

	sawCall := false
	for !(*p).IsNull() {
		if (*p).IsAtom() {
			rest, err := m.gatherExpr()
			if err != nil {
				return nil, err
			}
			*bind = m.H.Cons(*p, rest)
			*nenv = m.H.Cons(*bind, *nenv)
			return *nenv, nil
		}

		v, err := m.popExpr()
		if err != nil {
			return nil, err
		}
		if v == m.sCall {
			sawCall = true
			break
		}
		*value = v

		*bind = m.H.Cons((*p).Car(), *value)
		*nenv = m.H.Cons(*bind, *nenv)
		*p = (*p).Cdr()
	}

	if !(*p).IsNull() || sawCall {
		return nil, m.errorf("wrong number of args in call to form")
	}
	// consume the Call marker
	if v, err := m.popExpr(); err != nil {
		return nil, err
	} else if v != m.sCall {
		return nil, m.errorf("too many args in call to form")
	}
	return *nenv, nil
}

// ----------------------------------------------------------------------
// Continuations
// ----------------------------------------------------------------------

// invokeCont replaces the three stacks and the nested environment with
// the continuation's snapshots and delivers the return value.
func (m *Machine) invokeCont(c *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	val, k := m.H.Reg(), m.H.Reg()
	*k = c

	v, err := m.popVal()
	if err != nil {
		return err
	}
	*val = v

	m.Expr.RestoreFrom((*k).ContExps())
	m.Val.RestoreFrom((*k).ContVals())
	m.Func.RestoreFrom((*k).ContFncs())
	m.env.SetEnvNested((*k).ContEnv())

	return m.pushVal(*val)
}

// ----------------------------------------------------------------------
// Primitive special forms
// ----------------------------------------------------------------------

// invokeForm runs a special form met in operator position. A form met
// anywhere else is just a value.
func (m *Machine) invokeForm(f *cell.Cell) error {
	if m.Expr.Top() != m.sPushFunc {
		return m.pushVal(f)
	}
	if _, err := m.popExpr(); err != nil {
		return err
	}

	if f.IsUserForm() {
		return m.invokeUserForm(f.ClosureParams(), f.ClosureBody())
	}

	if err := m.countArgs(f); err != nil {
		return err
	}
	return f.Prim().Fn()
}

// invokeRes dispatches a popped Resume cell to the handler that
// completes the suspended form.
func (m *Machine) invokeRes(res *cell.Cell) error {
	if m.EvalDebug {
		fmt.Fprintf(m.out(), "resume %d\n", res.Opcode())
	}

	switch res.Opcode() {
	case opDefine:
		return m.opResDefine()
	case opSet:
		return m.opResSet()
	case opIf:
		return m.opResIf()
	case opBegin:
		return m.opResBegin(res)
	case opOr:
		return m.opResOr(res)
	case opAnd:
		return m.opResAnd(res)
	case opMacro:
		return m.opResMacro()
	case opExpand:
		return m.opResExpand()
	case opLoad:
		return m.opResLoad(res)
	default:
		return m.errorf("illegal operation %d in resume", res.Opcode())
	}
}

// ----------------------------------------------------------------------
// Macro expansion
// ----------------------------------------------------------------------

// expandOnce checks the expansion table for the head symbol of a
// combination. When an expander is bound it is scheduled to run on the
// original form, with an expansion resume underneath to feed the result
// back into the evaluator; the caller restarts its loop.
func (m *Machine) expandOnce(e *cell.Cell) (bool, error) {
	head := m.H.Car(e)
	if head.IsPair() {
		return false, nil
	}
	if !head.IsSymbol() {
		return false, nil
	}

	etbl := m.accGlobal(m.expTable, m.env)
	if etbl == nil || etbl.IsNull() {
		return false, nil
	}
	binding := m.H.QAssoc(head, etbl)
	if binding.IsNull() {
		return false, nil
	}

	if err := m.pushExpr(m.expResume); err != nil {
		return false, err
	}
	if err := m.pushExpr(m.sCall); err != nil {
		return false, err
	}
	if err := m.pushVal(m.sMark); err != nil {
		return false, err
	}
	if err := m.pushVal(e); err != nil {
		return false, err
	}
	if err := m.pushFunc(binding.Cdr()); err != nil {
		return false, err
	}
	return true, nil
}

// opResExpand feeds the expander's result back onto the expression stack.
func (m *Machine) opResExpand() error {
	result, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushExpr(result)
}

// ----------------------------------------------------------------------
// Calling from primitives
// ----------------------------------------------------------------------

// callFunc arranges the stacks to invoke func on the given argument list
// as if the combination had just been evaluated; apply and call/cc use
// it. The arguments are pushed in order so the binder sees them exactly
// like evaluated ones.
func (m *Machine) callFunc(fn, args *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	f, a := m.H.Reg(), m.H.Reg()
	*f = fn
	*a = args

	if err := m.pushExpr(m.sCall); err != nil {
		return err
	}
	if err := m.pushFunc(fn); err != nil {
		return err
	}

	if fn.IsFunc() {
		n := m.H.Length(args)
		if !fn.Prim().ArityOK(n) {
			return m.errorf("EVAL: wrong number of args to primitive procedure %s", fn.Prim().Name)
		}
		p := fn.Prim()
		if p.Required != p.Allowed {
			if err := m.pushVal(m.sMark); err != nil {
				return err
			}
		}
	} else if !(*f).IsCont() {
		if err := m.pushVal(m.sMark); err != nil {
			return err
		}
	}

	if (*a).IsAtom() {
		return m.pushVal(*a)
	}
	for c := *a; c.IsPair(); c = c.Cdr() {
		if err := m.pushVal(c.Car()); err != nil {
			return err
		}
	}
	return nil
}
