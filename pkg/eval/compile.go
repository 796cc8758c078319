package eval

import (
	"fmt"

	"gscheme/pkg/cell"
)

// The compiler translates an expression tree into a Bytecode cell: a byte
// array plus a constant pool. Code is generated into a fixed-size buffer
// and copied out when the expression is done; the constant pool is capped
// at 256 entries so operands stay one byte, and the compiler reports an
// error rather than emit a wider operand.
//
// Tail handling: atEnd is true when the expression being compiled is the
// last thing its block will do. An if in tail position ends each branch
// with Return instead of jumping to a join point, and the interpreter
// skips saving an execution point when the next instruction is Return;
// together these make compiled tail calls return straight to the caller's
// caller.

const (
	maxBCode = 512
	maxConst = 256
)

type codeBuffer struct {
	code [maxBCode]byte
	cnst [maxConst]*cell.Cell
	ip   int
	cp   int
}

func newCodeBuffer() *codeBuffer { return &codeBuffer{} }

func (cb *codeBuffer) reset() {
	cb.ip, cb.cp = 0, 0
	for i := range cb.cnst {
		cb.cnst[i] = nil
	}
}

func (cb *codeBuffer) emit(op byte) error {
	if cb.ip >= maxBCode {
		return &RuntimeError{Message: "COMPILE: code buffer overflow"}
	}
	cb.code[cb.ip] = op
	cb.ip++
	return nil
}

// fixup patches a previously reserved address slot.
func (cb *codeBuffer) fixup(at int, target int) {
	cb.code[at] = byte(target)
}

// emitConst adds k to the constant pool and emits its index.
func (cb *codeBuffer) emitConst(k *cell.Cell) error {
	if cb.cp >= maxConst {
		return &RuntimeError{Message: "COMPILE: constant pool overflow"}
	}
	if err := cb.emit(byte(cb.cp)); err != nil {
		return err
	}
	cb.cnst[cb.cp] = k
	cb.cp++
	return nil
}

// Roots lets an active compile buffer's constants survive a collection.
func (cb *codeBuffer) Roots(visit func(*cell.Cell)) {
	for i := 0; i < cb.cp; i++ {
		if cb.cnst[i] != nil {
			visit(cb.cnst[i])
		}
	}
}

// rootBuf puts a buffer on the machine's active-buffer stack, whose
// constants the collector treats as roots; dropBuf removes it.
func (m *Machine) rootBuf(cb *codeBuffer) { m.bufs = append(m.bufs, cb) }
func (m *Machine) dropBuf()               { m.bufs = m.bufs[:len(m.bufs)-1] }

// Compile fully compiles one expression into a Bytecode cell.
func (m *Machine) Compile(e *cell.Cell) (*cell.Cell, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	exp, bcode := m.H.Reg(), m.H.Reg()
	*exp = e

	m.cbuf.reset()
	m.rootBuf(m.cbuf)
	defer m.dropBuf()

	if err := m.compile(m.cbuf, *exp, true); err != nil {
		return nil, err
	}

	*bcode = m.makeBCode(m.cbuf)
	if m.CompileDebug {
		m.dumpBC(*bcode)
	}
	return *bcode, nil
}

// makeBCode copies a finished buffer into a Bytecode cell.
func (m *Machine) makeBCode(cb *codeBuffer) *cell.Cell {
	code := m.H.NewCell(cell.Bytecode, cb.ip, cb.cp)
	copy(code.Code(), cb.code[:cb.ip])
	copy(code.Constants(), cb.cnst[:cb.cp])
	return code
}

func (m *Machine) compile(cb *codeBuffer, e *cell.Cell, atEnd bool) error {
	if e.IsAtom() {
		switch e.Kind() {
		case cell.Int, cell.Float, cell.String, cell.Nil, cell.Char,
			cell.True, cell.False, cell.Eof, cell.Vector:
			if err := cb.emit(OpPushConst); err != nil {
				return err
			}
			return cb.emitConst(e)

		case cell.Symbol:
			if err := cb.emit(OpPushVar); err != nil {
				return err
			}
			return cb.emitConst(e)

		default:
			return m.errorVal("COMPILE: can't compile ", e)
		}
	}

	f := m.H.Car(e)
	args := m.H.Cdr(e)

	// an atom in operator position may be a primitive or a system form
	if f.IsSymbol() {
		if binding := m.accGlobal(f, m.env); binding != nil {
			if binding.IsForm() {
				return m.compileForm(cb, binding, args, atEnd)
			}
			if binding.IsFunc() {
				return m.compilePrim(cb, binding, args)
			}
		}
	}

	// an application of a user callable: mark the value stack so the
	// binder knows where the arguments stop
	if err := cb.emit(OpPushMark); err != nil {
		return err
	}
	if err := m.compile(cb, f, false); err != nil {
		return err
	}
	if err := cb.emit(OpPushFunc); err != nil {
		return err
	}
	if err := m.compileArgs(cb, args); err != nil {
		return err
	}
	return cb.emit(OpCall)
}

// compileArgs compiles each argument in source order, so the generated
// code evaluates them left to right.
func (m *Machine) compileArgs(cb *codeBuffer, args *cell.Cell) error {
	for c := args; c.IsPair(); c = c.Cdr() {
		if err := m.compile(cb, c.Car(), false); err != nil {
			return err
		}
	}
	return nil
}

// compilePrim generates code for a primitive call: a mark when variadic,
// the arguments, then the primitive's own opcode.
func (m *Machine) compilePrim(cb *codeBuffer, fn, args *cell.Cell) error {
	p := fn.Prim()
	if !p.ArityOK(m.H.Length(args)) {
		return m.errorf("COMPILE: wrong number of args to primitive procedure %s", p.Name)
	}

	if p.Required != p.Allowed {
		if err := cb.emit(OpPushMark); err != nil {
			return err
		}
	}
	if err := m.compileArgs(cb, args); err != nil {
		return err
	}
	return cb.emit(p.Code)
}

// compileForm dispatches to the dedicated form compilers. Forms with no
// compiled equivalent are refused.
func (m *Machine) compileForm(cb *codeBuffer, f, e *cell.Cell, atEnd bool) error {
	switch f.Prim().Code {
	case opBegin:
		return m.compileBegin(cb, e, atEnd)
	case opIf:
		return m.compileIf(cb, e, atEnd)
	case opQuote:
		return m.compileQuote(cb, e)
	case opLambda:
		return m.compileLambda(cb, e)
	case opDefine:
		return m.compileDefine(cb, e)
	case opSet:
		return m.compileSet(cb, e)
	default:
		return m.errorf("COMPILE: can't compile the special form %s", f.Prim().Name)
	}
}

// compileIf lays out: cond, NilBranch->else, then, Branch->end, else.
// In tail position each branch ends with Return instead.
func (m *Machine) compileIf(cb *codeBuffer, e *cell.Cell, atEnd bool) error {
	if err := m.compile(cb, m.H.Car(e), false); err != nil {
		return err
	}

	if err := cb.emit(OpNilBranch); err != nil {
		return err
	}
	gotoElse := cb.ip
	if err := cb.emit(OpNoOp); err != nil { // address slot
		return err
	}

	if err := m.compile(cb, m.H.Cadr(e), atEnd); err != nil {
		return err
	}

	gotoDone := -1
	if atEnd {
		if err := cb.emit(OpReturn); err != nil {
			return err
		}
	} else {
		if err := cb.emit(OpBranch); err != nil {
			return err
		}
		gotoDone = cb.ip
		if err := cb.emit(OpNoOp); err != nil {
			return err
		}
	}

	cb.fixup(gotoElse, cb.ip)
	if err := m.compile(cb, m.H.Caddr(e), atEnd); err != nil {
		return err
	}

	if atEnd {
		return cb.emit(OpReturn)
	}
	cb.fixup(gotoDone, cb.ip)
	return cb.emit(OpNoOp)
}

// compileBegin compiles a sequence, discarding every value but the last.
// Only the last expression inherits the caller's tail position.
func (m *Machine) compileBegin(cb *codeBuffer, e *cell.Cell, atEnd bool) error {
	for e.IsPair() {
		exp := e.Car()
		e = e.Cdr()

		if e.IsPair() {
			if err := m.compile(cb, exp, false); err != nil {
				return err
			}
			if err := cb.emit(OpPopVal); err != nil {
				return err
			}
		} else {
			if err := m.compile(cb, exp, atEnd); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Machine) compileQuote(cb *codeBuffer, e *cell.Cell) error {
	if err := cb.emit(OpPushConst); err != nil {
		return err
	}
	return cb.emitConst(m.H.Car(e))
}

// compileLambda compiles the body into a fresh buffer with the tail flag
// set, wraps it in a Bytecode cell, and emits code that builds the
// closure at run time. The freshly built inner bytecode is pushed on the
// register stack, not scoped to this call, so it survives collections
// until the whole compilation finishes.
func (m *Machine) compileLambda(cb *codeBuffer, e *cell.Cell) error {
	lcb := newCodeBuffer()
	m.rootBuf(lcb)
	defer m.dropBuf()

	if err := m.compileBegin(lcb, m.H.Cdr(e), true); err != nil {
		return err
	}

	inner := m.makeBCode(lcb)
	keep := m.H.Reg()
	*keep = inner

	if m.CompileDebug {
		m.dumpBC(inner)
	}

	// push the parameter list, push the body's bytecode, make closure
	if err := cb.emit(OpPushConst); err != nil {
		return err
	}
	if err := cb.emitConst(m.H.Car(e)); err != nil {
		return err
	}
	if err := cb.emit(OpPushConst); err != nil {
		return err
	}
	if err := cb.emitConst(*keep); err != nil {
		return err
	}
	return cb.emit(OpMakeClosure)
}

func (m *Machine) compileDefine(cb *codeBuffer, e *cell.Cell) error {
	if !m.H.Car(e).IsSymbol() {
		return m.errorVal("COMPILE: illegal DEFINE syntax, can't bind to non-symbol: ", m.H.Car(e))
	}
	if err := cb.emit(OpPushConst); err != nil {
		return err
	}
	if err := cb.emitConst(m.H.Car(e)); err != nil {
		return err
	}
	if err := m.compile(cb, m.H.Cadr(e), false); err != nil {
		return err
	}
	return cb.emit(opDefine)
}

func (m *Machine) compileSet(cb *codeBuffer, e *cell.Cell) error {
	if !m.H.Car(e).IsSymbol() {
		return m.errorVal("COMPILE: illegal SET! syntax, can't bind to non-symbol: ", m.H.Car(e))
	}
	if err := cb.emit(OpPushConst); err != nil {
		return err
	}
	if err := cb.emitConst(m.H.Car(e)); err != nil {
		return err
	}
	if err := m.compile(cb, m.H.Cadr(e), false); err != nil {
		return err
	}
	return cb.emit(opSet)
}

// dumpBC prints a compiled block for -c debugging.
func (m *Machine) dumpBC(bc *cell.Cell) {
	w := m.out()
	fmt.Fprintf(w, "\ngenerated code: size %d, %d constants\n",
		len(bc.Code()), len(bc.Constants()))
	for _, b := range bc.Code() {
		fmt.Fprintf(w, "%d ", b)
	}
	fmt.Fprintf(w, "\nconstants:\n")
	for i, k := range bc.Constants() {
		fmt.Fprintf(w, "%d = ", i)
		m.H.Write(w, k)
		fmt.Fprintln(w)
	}
}
