package eval

import "gscheme/pkg/cell"

// Registration of the predefined functions and special forms. Each entry
// binds a global symbol to a Primitive or PrimForm cell and installs the
// handler in the bytecode dispatch table under its predefined number.
//
// Arity: allowed == required is exact, allowed > required is a range,
// allowed < required (written -1) means "at least required".

func (m *Machine) defFunc(name string, code byte, fn func() error, ra, aa int) error {
	return m.defPrim(cell.Primitive, name, code, fn, fn, ra, aa)
}

func (m *Machine) defForm(name string, code byte, fn, bc func() error, ra, aa int) error {
	return m.defPrim(cell.PrimForm, name, code, fn, bc, ra, aa)
}

func (m *Machine) defPrim(tag cell.Tag, name string, code byte, fn, bc func() error, ra, aa int) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	sym, prim := m.H.Reg(), m.H.Reg()

	s, err := m.H.Symbol(name)
	if err != nil {
		return err
	}
	*sym = s

	*prim = m.H.NewCell(tag, 0, 0)
	(*prim).SetPrim(&cell.PrimData{
		Name:     name,
		Code:     code,
		Required: ra,
		Allowed:  aa,
		Fn:       fn,
	})

	m.bops[code] = bc
	return m.defGlobal(*sym, *prim)
}

func (m *Machine) addPredefs() error {
	type def struct {
		name   string
		code   byte
		fn     func() error
		ra, aa int
	}

	funcs := []def{
		// interpreter directives
		{"THE-ENVIRONMENT", opEnv, m.opEnvPrim, 0, 0},
		{"TORTURE", opTorture, m.opTorture, 0, 0},
		{"GCDEBUG", opGcDebug, m.opGcDebug, 0, 0},
		{"EVDEBUG", opEvDebug, m.opEvDebug, 0, 0},
		{"QUIT", opExit, m.opExit, 0, 0},
		{"EXIT", opExit, m.opExit, 0, 0},
		{"BYE", opExit, m.opExit, 0, 0},

		// primitive list operations
		{"CAR", opCar, m.opCar, 1, 1},
		{"CDR", opCdr, m.opCdr, 1, 1},
		{"CONS", opCons, m.opCons, 2, 2},
		{"SET-CAR!", opSetCar, m.opSetCar, 2, 2},
		{"SET-CDR!", opSetCdr, m.opSetCdr, 2, 2},
		{"CAAR", opCaar, m.opCaar, 1, 1},
		{"CADR", opCadr, m.opCadr, 1, 1},
		{"CDAR", opCdar, m.opCdar, 1, 1},
		{"CDDR", opCddr, m.opCddr, 1, 1},
		{"CADDR", opCaddr, m.opCaddr, 1, 1},
		{"CDDDR", opCdddr, m.opCdddr, 1, 1},

		// predicates
		{"NULL?", opNull, m.opNull, 1, 1},
		{"ATOM?", opAtom, m.opAtom, 1, 1},
		{"PAIR?", opPair, m.opPair, 1, 1},
		{"SYMBOL?", opSymbol, m.opSymbol, 1, 1},
		{"NUMBER?", opNumber, m.opNumber, 1, 1},
		{"INTEGER?", opInteger, m.opInteger, 1, 1},
		{"FLOAT?", opFloat, m.opFloat, 1, 1},
		{"ZERO?", opZero, m.opZero, 1, 1},
		{"POSITIVE?", opPositive, m.opPositive, 1, 1},
		{"NEGATIVE?", opNegative, m.opNegative, 1, 1},
		{"ODD?", opOdd, m.opOdd, 1, 1},
		{"EVEN?", opEven, m.opEven, 1, 1},

		// equality
		{"EQ?", opEq, m.opEq, 2, 2},
		{"EQV?", opEqv, m.opEqv, 2, 2},
		{"EQUAL?", opEqual, m.opEqual, 2, 2},

		// arithmetic
		{"+", opPlus, m.opPlus, 0, -1},
		{"-", opMinus, m.opMinus, 0, -1},
		{"*", opMult, m.opMult, 0, -1},
		{"/", opDiv, m.opDiv, 0, -1},
		{"ABS", opAbs, m.opAbs, 1, 1},
		{"<", opLT, m.opLT, 2, 2},
		{">", opGT, m.opGT, 2, 2},
		{"<=", opLTE, m.opLTE, 2, 2},
		{">=", opGTE, m.opGTE, 2, 2},
		{"=", opNumE, m.opNumE, 2, 2},
		{"<>", opNumNE, m.opNumNE, 2, 2},
		{"MIN", opMin, m.opMin, 1, -1},
		{"MAX", opMax, m.opMax, 1, -1},

		// higher-level list operations
		{"ASSOC", opAssoc, m.opAssoc, 2, 2},
		{"ASSQ", opAssq, m.opAssq, 2, 2},
		{"ASSV", opAssv, m.opAssv, 2, 2},
		{"MEMBER", opMember, m.opMember, 2, 2},
		{"MEMQ", opMemq, m.opMemq, 2, 2},
		{"MEMV", opMemv, m.opMemv, 2, 2},
		{"LIST", opList, m.opList, 1, -1},
		{"LENGTH", opLength, m.opLength, 1, 1},
		{"APPEND", opAppend, m.opAppend, 2, -1},
		{"REVERSE", opRev, m.opRev, 1, 1},
		{"TREE-COPY", opTreeCopy, m.opTreeCopy, 1, 1},

		// control
		{"PROCEDURE?", opProcedure, m.opProcedure, 1, 1},
		{"EVAL", opEval, m.opEval, 1, 2},
		{"APPLY", opApply, m.opApply, 2, 2},
		{"CALL/CC", opCallCC, m.opCallCC, 1, 1},
		{"CALL-WITH-CURRENT-CONTINUATION", opCallCC, m.opCallCC, 1, 1},

		// environment persistence
		{"DUMP-ENVIRONMENT", opDumpEnv, m.opDumpEnv, 1, 1},
		{"RESTORE-ENVIRONMENT", opRestEnv, m.opRestEnv, 1, 1},

		// booleans
		{"NOT", opNot, m.opNot, 1, 1},
		{"BOOLEAN?", opBoolean, m.opBoolean, 1, 1},

		// characters
		{"CHAR?", opChar, m.opChar, 1, 1},
		{"CHAR=?", opCharE, m.opCharE, 2, 2},
		{"CHAR<?", opCharL, m.opCharL, 2, 2},
		{"CHAR>?", opCharG, m.opCharG, 2, 2},
		{"CHAR<=?", opCharLE, m.opCharLE, 2, 2},
		{"CHAR>=?", opCharGE, m.opCharGE, 2, 2},
		{"CHAR->INTEGER", opCharInt, m.opCharInt, 1, 1},
		{"INTEGER->CHAR", opIntChar, m.opIntChar, 1, 1},

		// strings
		{"STRING?", opString, m.opString, 1, 1},
		{"STRING-LENGTH", opStrLen, m.opStrLen, 1, 1},
		{"STRING-REF", opStrRef, m.opStrRef, 2, 2},
		{"STRING=?", opStrE, m.opStrE, 2, 2},
		{"STRING<?", opStrL, m.opStrL, 2, 2},
		{"STRING>?", opStrG, m.opStrG, 2, 2},
		{"STRING<=?", opStrLE, m.opStrLE, 2, 2},
		{"STRING>=?", opStrGE, m.opStrGE, 2, 2},
		{"SUBSTRING", opSubStr, m.opSubStr, 3, 3},
		{"STRING->LIST", opStrLst, m.opStrLst, 1, 1},
		{"LIST->STRING", opLstStr, m.opLstStr, 1, 1},
		{"SYMBOL->STRING", opSymStr, m.opSymStr, 1, 1},
		{"STRING->SYMBOL", opStrSym, m.opStrSym, 1, 1},
		{"STRING-APPEND", opStrApp, m.opStrApp, 2, 2},

		// vectors
		{"VECTOR?", opVector, m.opVector, 1, 1},
		{"VECTOR", opArgVector, m.opArgVector, 0, -1},
		{"MAKE-VECTOR", opMakeVector, m.opMakeVector, 2, 2},
		{"VECTOR-LENGTH", opVectLength, m.opVectLength, 1, 1},
		{"VECTOR-REF", opVectRef, m.opVectRef, 2, 2},
		{"VECTOR-SET!", opVectSet, m.opVectSet, 3, 3},
		{"VECTOR-COPY", opVectCopy, m.opVectCopy, 1, 1},
		{"VECTOR-FILL!", opVectFill, m.opVectFill, 2, 2},
		{"VECTOR->LIST", opVectLst, m.opVectLst, 1, 1},
		{"LIST->VECTOR", opLstVect, m.opLstVect, 1, 1},

		// I/O
		{"READ", opRead, m.opRead, 0, 1},
		{"WRITE", opWrite, m.opWrite, 1, 2},
		{"READ-CHAR", opReadChar, m.opReadChar, 0, 1},
		{"WRITE-CHAR", opWriteChar, m.opWriteChar, 1, 2},
		{"EOF-OBJECT?", opEofObj, m.opEofObj, 1, 1},
		{"DISPLAY", opDisplay, m.opDisplay, 1, 2},
		{"NEWLINE", opNewLine, m.opNewLine, 0, 1},
		{"INPUT-PORT?", opInPort, m.opInPort, 1, 1},
		{"OUTPUT-PORT?", opOutPort, m.opOutPort, 1, 1},
		{"CURRENT-INPUT-PORT", opCurrIn, m.opCurrIn, 0, 0},
		{"CURRENT-OUTPUT-PORT", opCurrOut, m.opCurrOut, 0, 0},
		{"OPEN-INPUT-FILE", opOpenInFile, m.opOpenInFile, 1, 1},
		{"OPEN-OUTPUT-FILE", opOpenOutFile, m.opOpenOutFile, 1, 1},
		{"CLOSE-FILE", opClose, m.opClose, 1, 1},
		{"LOAD", opLoad, m.opLoad, 1, 1},

		{"ERROR", opError, m.opError, 0, -1},
		{"GENSYM", opGenSym, m.opGenSym, 0, 0},
		{"*COMPILE*", opCompile, m.opCompile, 1, 1},
		{"CHDIR", opChdir, m.opChdir, 1, 1},
	}

	for _, d := range funcs {
		if err := m.defFunc(d.name, d.code, d.fn, d.ra, d.aa); err != nil {
			return err
		}
	}

	forms := []struct {
		name   string
		code   byte
		fn, bc func() error
		ra, aa int
	}{
		{"LAMBDA", opLambda, m.opLambda, nil, 2, -1},
		{"DEFINE", opDefine, m.opDefine, m.bcDefine, 2, -1},
		{"SET!", opSet, m.opSet, m.bcSet, 2, 2},
		{"IF", opIf, m.opIf, nil, 2, 3},
		{"QUOTE", opQuote, m.opQuote, nil, 1, 1},
		{"BEGIN", opBegin, m.opBegin, nil, 0, -1},
		{"OR", opOr, m.opOr, nil, 0, -1},
		{"AND", opAnd, m.opAnd, nil, 0, -1},
		{"MACRO", opMacro, m.opMacro, m.bcMacro, 2, 2},
	}

	for _, d := range forms {
		if err := m.defForm(d.name, d.code, d.fn, d.bc, d.ra, d.aa); err != nil {
			return err
		}
	}
	return nil
}
