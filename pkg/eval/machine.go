// Package eval implements the evaluator subsystem: a stack-based
// explicit-continuation machine, a compiler to a small bytecode, and an
// interpreter for that bytecode, all sharing one garbage-collected heap.
//
// Scheme-level recursion never uses the Go call stack. The machine runs a
// single dispatch loop over an explicit expression stack, which is what
// makes continuations capturable and proper tail calls possible: a
// continuation is a snapshot of the three machine stacks plus the nested
// environment, and a tail call simply declines to push anything to return
// to.
//
// Environments come in two parts. The nested environment is an
// association list of (symbol . value) pairs extended on closure entry
// and dropped by a Restore marker on the expression stack; the global
// environment is a vector with one slot per interned symbol, so global
// lookup is one index operation.
package eval

import (
	"io"
	"os"
	"sync/atomic"

	"gscheme/pkg/cell"
	"gscheme/pkg/lexer"
)

// Options configures a Machine.
type Options struct {
	// EvalDebug traces the dispatch loop and the bytecode interpreter.
	EvalDebug bool
	// CompileDebug dumps generated bytecode after each compilation.
	CompileDebug bool
	// GCDebug prints collection statistics.
	GCDebug bool
	// Torture collects before every allocation.
	Torture bool
	// Symbols is the symbol table capacity (0 for the default).
	Symbols int

	// Stdin and Stdout back the standard ports. They default to the
	// process's stdin and stdout.
	Stdin  io.Reader
	Stdout io.Writer
}

// Machine is one interpreter instance: heap, stacks, environment, and
// the primitive dispatch table.
type Machine struct {
	H *cell.Heap

	// The expression, value and function stacks. The register stack
	// lives on the heap.
	Expr *cell.Stack
	Val  *cell.Stack
	Func *cell.Stack

	env *cell.Cell // the current environment (an Environ cell)

	// Stack machine sentinels, compared by identity.
	sCall     *cell.Cell
	sMark     *cell.Cell
	sPushFunc *cell.Cell
	sRestore  *cell.Cell
	expResume *cell.Cell // resume cell for the macro expander
	expTable  *cell.Cell // the symbol *EXPANSION-TABLE*

	stdin  *cell.Cell // the standard ports
	stdout *cell.Cell
	curIn  *cell.Cell // the current ports
	curOut *cell.Cell

	// bytecode dispatch: predefined number -> handler
	bops [numFuncs]func() error

	cbuf *codeBuffer   // the main compile buffer
	bufs []*codeBuffer // buffers active in a compilation; their constants are roots

	EvalDebug    bool
	CompileDebug bool

	interrupted atomic.Bool
}

// New builds a machine: heap, stacks, sentinels, standard ports, global
// environment, and the predefined functions and forms.
func New(opts Options) (*Machine, error) {
	h := cell.NewHeap(opts.Symbols)
	h.Torture = opts.Torture
	h.Debug = opts.GCDebug

	m := &Machine{
		H:            h,
		Expr:         cell.NewStack("expression", 0),
		Val:          cell.NewStack("value", 0),
		Func:         cell.NewStack("function", 0),
		EvalDebug:    opts.EvalDebug,
		CompileDebug: opts.CompileDebug,
		cbuf:         newCodeBuffer(),
	}
	h.AddRoots(m.Expr)
	h.AddRoots(m.Val)
	h.AddRoots(m.Func)
	h.AddRoots(m)

	var err error
	defConst := func(name string) *cell.Cell {
		var c *cell.Cell
		if err != nil {
			return h.Nil
		}
		c, err = h.Symbol(name)
		if err != nil {
			return h.Nil
		}
		return h.Permanent(c)
	}

	m.sCall = defConst("*CALL*")
	m.sMark = defConst("*MARK*")
	m.sPushFunc = defConst("*PUSHFUNC*")
	m.sRestore = defConst("*RESTORE*")
	m.expTable = defConst("*EXPANSION-TABLE*")
	if err != nil {
		return nil, err
	}

	m.expResume = h.Permanent(h.NewResume(opExpand))

	in := opts.Stdin
	if in == nil {
		in = os.Stdin
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	m.stdin = h.Permanent(h.NewPort(&cell.PortData{
		Scan: lexer.New(in),
		Dir:  cell.PortInput,
	}))
	m.stdout = h.Permanent(h.NewPort(&cell.PortData{
		W:   out,
		Dir: cell.PortOutput,
	}))
	m.curIn, m.curOut = m.stdin, m.stdout

	m.env = h.NewEnv()
	cell.GlobalSet(m.env, m.expTable, h.Nil)

	if err := m.addPredefs(); err != nil {
		return nil, err
	}

	h.SealRegisters()
	return m, nil
}

// Roots reports the cells the machine itself keeps live: the current
// environment and the current ports.
func (m *Machine) Roots(visit func(*cell.Cell)) {
	if m.env != nil {
		visit(m.env)
	}
	if m.curIn != nil {
		visit(m.curIn)
	}
	if m.curOut != nil {
		visit(m.curOut)
	}
	for _, cb := range m.bufs {
		cb.Roots(visit)
	}
}

// Env returns the machine's environment cell.
func (m *Machine) Env() *cell.Cell { return m.env }

// Reset restores the post-init state after an error or interrupt: clear
// stacks, restore the register stack to the system mark, and point the
// current ports back at the standard ones. Global bindings survive.
func (m *Machine) Reset() {
	m.Expr.Reset()
	m.Val.Reset()
	m.Func.Reset()
	m.H.ResetRegisters()
	m.curIn, m.curOut = m.stdin, m.stdout
	m.interrupted.Store(false)
}

// Interrupt asks the evaluator to stop at the next dispatch. Safe to call
// from a signal handler goroutine.
func (m *Machine) Interrupt() { m.interrupted.Store(true) }

// out returns the writer of the current output port.
func (m *Machine) out() io.Writer {
	if p := m.curOut.Port(); p != nil && p.W != nil {
		return p.W
	}
	return os.Stdout
}

// Stack helpers; every push and pop reports overflow and underflow as a
// runtime error.

func (m *Machine) pushExpr(c *cell.Cell) error { return asRuntime(m.Expr.Push(c)) }
func (m *Machine) pushVal(c *cell.Cell) error  { return asRuntime(m.Val.Push(c)) }
func (m *Machine) pushFunc(c *cell.Cell) error { return asRuntime(m.Func.Push(c)) }

func (m *Machine) popExpr() (*cell.Cell, error) {
	c, err := m.Expr.Pop()
	return c, asRuntime(err)
}

func (m *Machine) popVal() (*cell.Cell, error) {
	c, err := m.Val.Pop()
	return c, asRuntime(err)
}

func (m *Machine) popFunc() (*cell.Cell, error) {
	c, err := m.Func.Pop()
	return c, asRuntime(err)
}

// Environment access.

// defGlobal binds sym globally.
func (m *Machine) defGlobal(sym, val *cell.Cell) error {
	if !sym.IsSymbol() {
		return m.errorVal("DEFINE: can't bind to non-symbol: ", sym)
	}
	cell.GlobalSet(m.env, sym, val)
	return nil
}

// accNested returns the nested binding pair for sym, or ().
func (m *Machine) accNested(sym *cell.Cell) *cell.Cell {
	return m.H.QAssoc(sym, m.env.EnvNested())
}

// accGlobal returns the global binding of sym in env, or nil if unbound.
func (m *Machine) accGlobal(sym, env *cell.Cell) *cell.Cell {
	return cell.GlobalGet(env, sym)
}

// saveEnv pushes the current nested environment and a Restore marker so a
// completed call drops back into its caller's environment. If the top of
// the expression stack is already a Restore (or a suspended execution
// point, which restores on its own), nothing is pushed: the call is in
// tail position and will return straight to the earlier caller. This is
// the rule that keeps tail calls from growing any stack.
func (m *Machine) saveEnv() error {
	top := m.Expr.Top()
	if top == m.sRestore || (top != nil && top.IsExe()) {
		return nil
	}
	if err := m.pushExpr(m.env.EnvNested()); err != nil {
		return err
	}
	return m.pushExpr(m.sRestore)
}
