package eval

import (
	"fmt"

	"gscheme/pkg/cell"
)

// The bytecode interpreter. It enters at pc 0 for a fresh block, or at
// the saved pc and environment for an execution point, then fetches and
// dispatches until it falls off the end, hits Return, or suspends.
//
// A suspension happens on Call (a user callable must be applied by the
// tree evaluator) and on the eval, apply, and call/cc primitives (they
// manipulate the stacks themselves). Before suspending, the interpreter
// saves an ExecutionPoint so control comes back to the next instruction,
// unless that instruction is Return, in which case nothing is saved and
// the result returns straight to this block's caller. That check is the
// bytecode-level tail-call rule.

// invokeBC runs a Bytecode cell or resumes an ExecutionPoint.
func (m *Machine) invokeBC(c *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	bcReg := m.H.Reg()
	tmp := m.H.Reg()

	var pc int
	var bc *cell.Cell
	if c.IsExe() {
		m.env.SetEnvNested(c.ExeEnv())
		pc = c.ExePC()
		bc = c.ExeCode()
	} else {
		pc = 0
		bc = c
	}
	*bcReg = bc

	code := bc.Code()
	for pc < len(code) {
		if m.interrupted.Load() {
			m.interrupted.Store(false)
			return ErrInterrupt
		}

		op := code[pc]
		if m.EvalDebug {
			fmt.Fprintf(m.out(), "bytecode op %d pc %d of %d\n", op, pc, len(code))
		}
		pc++

		switch op {
		case OpNoOp:

		case OpCollectArgs:
			lst, err := m.gatherVal()
			if err != nil {
				return err
			}
			if err := m.pushVal(lst); err != nil {
				return err
			}

		case OpPushConst:
			k := code[pc]
			pc++
			if err := m.pushVal(bc.Constants()[k]); err != nil {
				return err
			}

		case OpPushVar:
			k := code[pc]
			pc++
			sym := bc.Constants()[k]

			if binding := m.accNested(sym); !binding.IsNull() {
				if err := m.pushVal(binding.Cdr()); err != nil {
					return err
				}
			} else if v := m.accGlobal(sym, m.env); v != nil {
				if err := m.pushVal(v); err != nil {
					return err
				}
			} else {
				return m.errorVal("EVAL: undefined symbol ", sym)
			}

		case OpReturn:
			return nil

		case OpNilBranch:
			v, err := m.popVal()
			if err != nil {
				return err
			}
			if v.IsFalse() {
				pc = int(code[pc])
			} else {
				pc++
			}

		case OpBranch:
			pc = int(code[pc])

		case OpPopVal:
			// discard a sequence value
			if _, err := m.popVal(); err != nil {
				return err
			}

		case OpMakeClosure:
			if err := m.opMakeClosure(); err != nil {
				return err
			}

		case OpPushMark:
			if err := m.pushVal(m.sMark); err != nil {
				return err
			}

		case OpPushFunc:
			v, err := m.popVal()
			if err != nil {
				return err
			}
			*tmp = v
			if err := m.pushFunc(v); err != nil {
				return err
			}

		case OpCall:
			// a user callable: hand control back to the tree
			// evaluator, which will pop Call and apply
			if err := m.saveExe(pc, *bcReg); err != nil {
				return err
			}
			return m.pushExpr(m.sCall)

		default:
			suspends := op == opEval || op == opApply || op == opCallCC
			if suspends {
				if err := m.saveExe(pc, *bcReg); err != nil {
					return err
				}
			}

			fn := m.bops[op]
			if fn == nil {
				return m.errorf("illegal bytecode operation %d", op)
			}
			if err := fn(); err != nil {
				return err
			}

			if suspends {
				return nil
			}
		}
	}
	return nil
}

// saveExe pushes an execution point for the instruction at pc, unless
// that instruction is Return (or the end of the block): a call in tail
// position returns directly to this block's caller.
func (m *Machine) saveExe(pc int, bc *cell.Cell) error {
	code := bc.Code()
	if pc >= len(code) || code[pc] == OpReturn {
		return nil
	}

	save := m.H.Mark()
	defer m.H.Release(save)
	b := m.H.Reg()
	*b = bc

	exe := m.H.NewCell(cell.ExePoint, 0, 0)
	exe.SetExeCode(*b)
	exe.SetExePC(pc)
	exe.SetExeEnv(m.env.EnvNested())
	return m.pushExpr(exe)
}

// opMakeClosure pops a compiled body and a parameter list and builds a
// closure over the current nested environment.
func (m *Machine) opMakeClosure() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	body, parms, close := m.H.Reg(), m.H.Reg(), m.H.Reg()

	b, err := m.popVal()
	if err != nil {
		return err
	}
	*body = b
	p, err := m.popVal()
	if err != nil {
		return err
	}
	*parms = p

	*close = m.H.NewCell(cell.Closure, 0, 0)
	(*close).SetClosureEnv(m.env.EnvNested())
	(*close).SetClosureBody(*body)
	(*close).SetClosureParams(*parms)
	return m.pushVal(*close)
}
