package eval

import (
	"os"

	"gscheme/pkg/cell"
)

// Primitive operations. Handlers pop their arguments from the value
// stack, last argument on top, and push exactly one result.

// ----------------------------------------------------------------------
// Interpreter directives
// ----------------------------------------------------------------------

// ErrExit is returned when user code runs (exit); the top level leaves
// with status 0.
var ErrExit = &exitError{}

type exitError struct{}

func (*exitError) Error() string { return "exit" }

// (THE-ENVIRONMENT) returns the environment cell itself, which eval
// accepts as a second argument.
func (m *Machine) opEnvPrim() error {
	return m.pushVal(m.env)
}

func (m *Machine) opExit() error { return ErrExit }

// (TORTURE), (GCDEBUG), (EVDEBUG) toggle their mode and return the new
// state.
func (m *Machine) opTorture() error {
	m.H.Torture = !m.H.Torture
	if m.H.Torture {
		return m.pushVal(m.H.T)
	}
	return m.pushVal(m.H.Nil)
}

func (m *Machine) opGcDebug() error {
	m.H.Debug = !m.H.Debug
	if m.H.Debug {
		return m.pushVal(m.H.T)
	}
	return m.pushVal(m.H.Nil)
}

func (m *Machine) opEvDebug() error {
	m.EvalDebug = !m.EvalDebug
	if m.EvalDebug {
		return m.pushVal(m.H.T)
	}
	return m.pushVal(m.H.Nil)
}

// ----------------------------------------------------------------------
// Evaluation
// ----------------------------------------------------------------------

// (EVAL expr [env]) pushes expr back onto the expression stack; with an
// environment argument, the current environment is saved first and
// replaced for the evaluation's extent.
func (m *Machine) opEval() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	exp := m.H.Reg()

	top, err := m.popVal()
	if err != nil {
		return err
	}
	next, err := m.popVal()
	if err != nil {
		return err
	}

	if next == m.sMark {
		*exp = top
	} else {
		env := top
		*exp = next
		if _, err := m.popVal(); err != nil { // mark
			return err
		}
		if !env.IsEnviron() {
			return m.errorVal("EVAL: not an environment: ", env)
		}
		// save the whole current environment cell, not just its
		// nested part, so the caller's environment comes back
		// intact after evaluating in the foreign one
		if err := m.pushExpr(m.env); err != nil {
			return err
		}
		if err := m.pushExpr(m.sRestore); err != nil {
			return err
		}
		m.env = env
	}

	return m.pushExpr(*exp)
}

// (APPLY func arg-list)
func (m *Machine) opApply() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	fn, args := m.H.Reg(), m.H.Reg()

	a, err := m.popVal()
	if err != nil {
		return err
	}
	*args = a
	f, err := m.popVal()
	if err != nil {
		return err
	}
	*fn = f

	return m.callFunc(*fn, *args)
}

// (CALL/CC func) reifies the machine state and calls func on it.
func (m *Machine) opCallCC() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	fn, cont := m.H.Reg(), m.H.Reg()

	f, err := m.popVal()
	if err != nil {
		return err
	}
	*fn = f

	*cont = m.H.NewCell(cell.Cont, 0, 0)
	(*cont).SetContEnv(m.env.EnvNested())
	(*cont).SetContVals(m.Val.Snapshot(m.H))
	(*cont).SetContExps(m.Expr.Snapshot(m.H))
	(*cont).SetContFncs(m.Func.Snapshot(m.H))

	*cont = m.H.Cons(*cont, m.H.Nil)
	return m.callFunc(*fn, *cont)
}

// (*COMPILE* exp)
func (m *Machine) opCompile() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	exp := m.H.Reg()

	e, err := m.popVal()
	if err != nil {
		return err
	}
	*exp = e

	code, err := m.Compile(*exp)
	if err != nil {
		return err
	}
	return m.pushVal(code)
}

// ----------------------------------------------------------------------
// Primitive list operations
// ----------------------------------------------------------------------

// (CAR obj). The car of an atom is ().
func (m *Machine) opCar() error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Car(c))
}

// (CDR obj)
func (m *Machine) opCdr() error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Cdr(c))
}

// (CONS obj1 obj2)
func (m *Machine) opCons() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	head, tail := m.H.Reg(), m.H.Reg()

	t, err := m.popVal()
	if err != nil {
		return err
	}
	*tail = t
	hd, err := m.popVal()
	if err != nil {
		return err
	}
	*head = hd

	return m.pushVal(m.H.Cons(*head, *tail))
}

// Composed accessors: (CADR l) and friends. The car or cdr of an atom
// is (), so these never fail.

func (m *Machine) access(path string) error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	// path reads right to left, like the name
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == 'a' {
			c = m.H.Car(c)
		} else {
			c = m.H.Cdr(c)
		}
	}
	return m.pushVal(c)
}

func (m *Machine) opCaar() error  { return m.access("aa") }
func (m *Machine) opCadr() error  { return m.access("ad") }
func (m *Machine) opCdar() error  { return m.access("da") }
func (m *Machine) opCddr() error  { return m.access("dd") }
func (m *Machine) opCaddr() error { return m.access("add") }
func (m *Machine) opCdddr() error { return m.access("ddd") }

// (SET-CAR! pair obj)
func (m *Machine) opSetCar() error {
	v, err := m.popVal()
	if err != nil {
		return err
	}
	p, err := m.popVal()
	if err != nil {
		return err
	}
	if !p.IsPair() {
		return m.errorf("SET-CAR!: first arg must be a pair")
	}
	p.SetCar(v)
	return m.pushVal(p)
}

// (SET-CDR! pair obj)
func (m *Machine) opSetCdr() error {
	v, err := m.popVal()
	if err != nil {
		return err
	}
	p, err := m.popVal()
	if err != nil {
		return err
	}
	if !p.IsPair() {
		return m.errorf("SET-CDR!: first arg must be a pair")
	}
	p.SetCdr(v)
	return m.pushVal(p)
}

// ----------------------------------------------------------------------
// Higher-level list operations
// ----------------------------------------------------------------------

func (m *Machine) popTwo() (first, second *cell.Cell, err error) {
	second, err = m.popVal()
	if err != nil {
		return nil, nil, err
	}
	first, err = m.popVal()
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (m *Machine) opAssoc() error {
	key, alist, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Assoc(key, alist))
}

func (m *Machine) opAssq() error {
	key, alist, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Assq(key, alist))
}

func (m *Machine) opAssv() error {
	key, alist, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Assv(key, alist))
}

func (m *Machine) opMember() error {
	o, l, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Member(o, l))
}

func (m *Machine) opMemq() error {
	o, l, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Memq(o, l))
}

func (m *Machine) opMemv() error {
	o, l, err := m.popTwo()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Memv(o, l))
}

// (LIST obj ...)
func (m *Machine) opList() error {
	l, err := m.gatherVal()
	if err != nil {
		return err
	}
	return m.pushVal(l)
}

// (LENGTH list)
func (m *Machine) opLength() error {
	l, err := m.popVal()
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Int(int64(m.H.Length(l))))
}

// (REVERSE list) reverses a copy; the argument is untouched.
func (m *Machine) opRev() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	arg := m.H.Reg()

	l, err := m.popVal()
	if err != nil {
		return err
	}
	*arg = l
	*arg = m.H.TreeCopy(*arg)
	*arg = m.H.Rev(*arg)
	return m.pushVal(*arg)
}

// (APPEND list ...) copies every list but the last, which is shared.
func (m *Machine) opAppend() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	args, res, tail, chunk := m.H.Reg(), m.H.Reg(), m.H.Reg(), m.H.Reg()

	a, err := m.gatherVal()
	if err != nil {
		return err
	}
	*args = a
	*res = m.H.Nil

	for (*args).IsPair() {
		*chunk = (*args).Car()
		*args = (*args).Cdr()

		if (*args).IsNull() {
			// last argument is shared, not copied
			if (*res).IsNull() {
				return m.pushVal(*chunk)
			}
			(*tail).SetCdr(*chunk)
			return m.pushVal(*res)
		}

		if (*chunk).IsNull() {
			continue
		}
		if !(*chunk).IsPair() {
			return m.errorVal("APPEND: requires lists: ", *chunk)
		}

		for c := *chunk; c.IsPair(); c = c.Cdr() {
			p := m.H.Cons(c.Car(), m.H.Nil)
			if (*res).IsNull() {
				*res = p
				*tail = p
			} else {
				(*tail).SetCdr(p)
				*tail = p
			}
		}
	}
	return m.pushVal(*res)
}

// (TREE-COPY obj)
func (m *Machine) opTreeCopy() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	arg := m.H.Reg()

	l, err := m.popVal()
	if err != nil {
		return err
	}
	*arg = l
	return m.pushVal(m.H.TreeCopy(*arg))
}

// ----------------------------------------------------------------------
// Characters
// ----------------------------------------------------------------------

// (CHAR->INTEGER char)
func (m *Machine) opCharInt() error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	if !c.IsChar() {
		return m.errorf("CHAR->INTEGER: arg must be a character")
	}
	return m.pushVal(m.H.Int(int64(c.Char())))
}

// (INTEGER->CHAR int). Out-of-range integers yield the NUL character.
func (m *Machine) opIntChar() error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	if !c.IsInt() {
		return m.errorf("INTEGER->CHAR: arg must be an integer")
	}
	i := c.Int()
	if i < 0 || i > 255 {
		i = 0
	}
	return m.pushVal(m.H.Char(byte(i)))
}

// ----------------------------------------------------------------------
// Strings
// ----------------------------------------------------------------------

func (m *Machine) popString(who string) (*cell.Cell, error) {
	c, err := m.popVal()
	if err != nil {
		return nil, err
	}
	if !c.IsString() {
		return nil, m.errorVal(who+": arg must be a string: ", c)
	}
	return c, nil
}

// (STRING-LENGTH string)
func (m *Machine) opStrLen() error {
	s, err := m.popString("STRING-LENGTH")
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Int(int64(len(s.Str()))))
}

// (STRING-REF string k)
func (m *Machine) opStrRef() error {
	k, err := m.popVal()
	if err != nil {
		return err
	}
	s, err := m.popString("STRING-REF")
	if err != nil {
		return err
	}
	if !k.IsInt() {
		return m.errorVal("STRING-REF: second arg must be an integer: ", k)
	}
	i := k.Int()
	if i < 0 || i >= int64(len(s.Str())) {
		return m.errorVal("STRING-REF: index out of range: ", k)
	}
	return m.pushVal(m.H.Char(s.Str()[i]))
}

// (SUBSTRING string start end). The end index is inclusive.
func (m *Machine) opSubStr() error {
	end, err := m.popVal()
	if err != nil {
		return err
	}
	start, err := m.popVal()
	if err != nil {
		return err
	}
	s, err := m.popString("SUBSTRING")
	if err != nil {
		return err
	}
	if !start.IsInt() || !end.IsInt() {
		return m.errorf("SUBSTRING: indexes must be integers")
	}

	str := s.Str()
	b, e := start.Int(), end.Int()
	if b < 0 || b >= int64(len(str)) {
		return m.errorVal("SUBSTRING: START out of range: ", start)
	}
	if e < b || e >= int64(len(str)) {
		return m.errorVal("SUBSTRING: STOP out of range: ", end)
	}
	return m.pushVal(m.H.Str(str[b : e+1]))
}

// (STRING-APPEND str1 str2)
func (m *Machine) opStrApp() error {
	s2, err := m.popString("STRING-APPEND")
	if err != nil {
		return err
	}
	b := s2.Str()
	s1, err := m.popString("STRING-APPEND")
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Str(s1.Str() + b))
}

// (STRING->LIST string)
func (m *Machine) opStrLst() error {
	s, err := m.popString("STRING->LIST")
	if err != nil {
		return err
	}
	str := s.Str()

	save := m.H.Mark()
	defer m.H.Release(save)
	lst, ch := m.H.Reg(), m.H.Reg()
	*lst = m.H.Nil

	for i := len(str) - 1; i >= 0; i-- {
		*ch = m.H.Char(str[i])
		*lst = m.H.Cons(*ch, *lst)
	}
	return m.pushVal(*lst)
}

// (LIST->STRING chars)
func (m *Machine) opLstStr() error {
	l, err := m.popVal()
	if err != nil {
		return err
	}
	if !l.IsPair() && !l.IsNull() {
		return m.errorVal("LIST->STRING: arg must be a list: ", l)
	}

	var buf []byte
	for c := l; c.IsPair(); c = c.Cdr() {
		ch := c.Car()
		if !ch.IsChar() {
			return m.errorVal("LIST->STRING: element must be a character: ", ch)
		}
		buf = append(buf, ch.Char())
	}
	return m.pushVal(m.H.Str(string(buf)))
}

// (SYMBOL->STRING symbol)
func (m *Machine) opSymStr() error {
	s, err := m.popVal()
	if err != nil {
		return err
	}
	if !s.IsSymbol() {
		return m.errorVal("SYMBOL->STRING: arg must be a symbol: ", s)
	}
	return m.pushVal(m.H.Str(m.H.SymbolName(s)))
}

// (STRING->SYMBOL string)
func (m *Machine) opStrSym() error {
	s, err := m.popString("STRING->SYMBOL")
	if err != nil {
		return err
	}
	sym, err := m.H.Symbol(s.Str())
	if err != nil {
		return err
	}
	return m.pushVal(sym)
}

// (GENSYM)
func (m *Machine) opGenSym() error {
	s, err := m.H.Gensym()
	if err != nil {
		return err
	}
	return m.pushVal(s)
}

// ----------------------------------------------------------------------
// Vectors
// ----------------------------------------------------------------------

// (VECTOR obj ...)
func (m *Machine) opArgVector() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	lst := m.H.Reg()

	l, err := m.gatherVal()
	if err != nil {
		return err
	}
	*lst = l
	return m.pushVal(m.H.VectorFromList(*lst))
}

// (MAKE-VECTOR n fill)
func (m *Machine) opMakeVector() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	fill := m.H.Reg()

	f, err := m.popVal()
	if err != nil {
		return err
	}
	*fill = f
	n, err := m.popVal()
	if err != nil {
		return err
	}
	if !n.IsInt() || n.Int() < 0 {
		return m.errorVal("MAKE-VECTOR: requires a non-negative number: ", n)
	}
	return m.pushVal(m.H.MakeVector(int(n.Int()), *fill))
}

func (m *Machine) popVector(who string) (*cell.Cell, error) {
	v, err := m.popVal()
	if err != nil {
		return nil, err
	}
	if !v.IsVector() {
		return nil, m.errorVal(who+": requires a vector: ", v)
	}
	return v, nil
}

// (VECTOR-LENGTH v)
func (m *Machine) opVectLength() error {
	v, err := m.popVector("VECTOR-LENGTH")
	if err != nil {
		return err
	}
	return m.pushVal(m.H.Int(int64(v.VectorLen())))
}

// (VECTOR-REF v n)
func (m *Machine) opVectRef() error {
	n, err := m.popVal()
	if err != nil {
		return err
	}
	v, err := m.popVector("VECTOR-REF")
	if err != nil {
		return err
	}
	if !n.IsInt() || n.Int() < 0 || n.Int() >= int64(v.VectorLen()) {
		return m.errorVal("VECTOR-REF: illegal reference: ", n)
	}
	return m.pushVal(v.Elems()[n.Int()])
}

// (VECTOR-SET! v n obj)
func (m *Machine) opVectSet() error {
	obj, err := m.popVal()
	if err != nil {
		return err
	}
	n, err := m.popVal()
	if err != nil {
		return err
	}
	v, err := m.popVector("VECTOR-SET!")
	if err != nil {
		return err
	}
	if !n.IsInt() || n.Int() < 0 || n.Int() >= int64(v.VectorLen()) {
		return m.errorVal("VECTOR-SET!: illegal reference: ", n)
	}
	v.Elems()[n.Int()] = obj
	return m.pushVal(v)
}

// (VECTOR-COPY v)
func (m *Machine) opVectCopy() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	old := m.H.Reg()

	v, err := m.popVector("VECTOR-COPY")
	if err != nil {
		return err
	}
	*old = v
	return m.pushVal(m.H.VectorCopy(*old))
}

// (VECTOR-FILL! v obj)
func (m *Machine) opVectFill() error {
	obj, err := m.popVal()
	if err != nil {
		return err
	}
	v, err := m.popVector("VECTOR-FILL!")
	if err != nil {
		return err
	}
	m.H.VectorFill(v, obj)
	return m.pushVal(v)
}

// (VECTOR->LIST v)
func (m *Machine) opVectLst() error {
	v, err := m.popVector("VECTOR->LIST")
	if err != nil {
		return err
	}
	return m.pushVal(m.H.ListFromVector(v))
}

// (LIST->VECTOR l)
func (m *Machine) opLstVect() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	lst := m.H.Reg()

	l, err := m.popVal()
	if err != nil {
		return err
	}
	*lst = l
	return m.pushVal(m.H.VectorFromList(*lst))
}

// ----------------------------------------------------------------------
// Miscellaneous
// ----------------------------------------------------------------------

// (ERROR obj ...) displays its arguments and unwinds to the top level.
func (m *Machine) opError() error {
	args, err := m.gatherVal()
	if err != nil {
		return err
	}

	w := m.out()
	for c := args; c.IsPair(); c = c.Cdr() {
		m.H.Display(w, c.Car())
		if c.Cdr().IsPair() {
			w.Write([]byte(" "))
		}
	}
	return m.errorf("error raised")
}

// (CHDIR string)
func (m *Machine) opChdir() error {
	s, err := m.popString("CHDIR")
	if err != nil {
		return err
	}
	if err := os.Chdir(s.Str()); err != nil {
		return m.pushVal(m.H.F)
	}
	return m.pushVal(s)
}
