package eval

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gscheme/pkg/cell"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(Options{Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	return m
}

func run(t *testing.T, m *Machine, src string) *cell.Cell {
	t.Helper()
	v, err := m.EvalString(src)
	require.NoError(t, err, "source: %s", src)
	return v
}

// evalTo evaluates src and checks the printed result.
func evalTo(t *testing.T, m *Machine, src, want string) {
	t.Helper()
	assert.Equal(t, want, m.H.Sprint(run(t, m, src)), "source: %s", src)
}

func TestSelfEvaluation(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"42", "42"},
		{"-17", "-17"},
		{"3.5", "3.5"},
		{`"hello"`, `"hello"`},
		{`#\a`, `#\a`},
		{"#T", "#T"},
		{"#F", "#F"},
		{"()", "()"},
		{"#()", "#()"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestArithmetic(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(+ 1 2 3)", "6"},
		{"(+)", "0"},
		{"(*)", "1"},
		{"(* 2 3 4)", "24"},
		{"(- 10 3 2)", "5"},
		{"(- 5)", "-5"},
		{"(/ 20 2 5)", "2"},
		{"(/ 2)", "0.5"},
		{"(+ 1 2.5)", "3.5"},
		{"(abs -4)", "4"},
		{"(abs -4.5)", "4.5"},
		{"(< 1 2)", "#T"},
		{"(> 1 2)", "#F"},
		{"(<= 2 2)", "#T"},
		{"(>= 1 2)", "#F"},
		{"(= 3 3)", "#T"},
		{"(<> 3 3)", "#F"},
		{"(< 1 2.5)", "#T"},
		{"(min 3 1 2)", "1"},
		{"(max 3 1 2)", "3"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestDivisionByZero(t *testing.T) {
	m := newMachine(t)
	_, err := m.EvalString("(/ 1 0)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestListPrimitives(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(cons 1 2)", "(1 . 2)"},
		{"(car '(1 2))", "1"},
		{"(cdr '(1 2))", "(2)"},
		{"(cadr '(1 2 3))", "2"},
		{"(caddr '(1 2 3))", "3"},
		{"(cddr '(1 2 3))", "(3)"},
		{"(list 1 2 3)", "(1 2 3)"},
		{"(length '(a b c))", "3"},
		{"(reverse '(1 2 3))", "(3 2 1)"},
		{"(append '(1 2) '(3 4))", "(1 2 3 4)"},
		{"(append '() '(1))", "(1)"},
		{"(tree-copy '(1 (2) 3))", "(1 (2) 3)"},
		{"(member 2 '(1 2 3))", "(2 3)"},
		{"(memq 'b '(a b c))", "(B C)"},
		{"(assoc 2 '((1 . a) (2 . b)))", "(2 . B)"},
		{"(assq 'x '((x . 1)))", "(X . 1)"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestMutatingPairs(t *testing.T) {
	m := newMachine(t)
	run(t, m, "(define p (cons 1 2))")
	evalTo(t, m, "(set-car! p 9)", "(9 . 2)")
	evalTo(t, m, "(set-cdr! p 8)", "(9 . 8)")
	evalTo(t, m, "p", "(9 . 8)")
}

func TestPredicates(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(null? '())", "#T"},
		{"(null? 1)", "#F"},
		{"(pair? '(1))", "#T"},
		{"(pair? 1)", "#F"},
		{"(atom? 1)", "#T"},
		{"(atom? '(1))", "#F"},
		{"(symbol? 'x)", "#T"},
		{"(number? 4)", "#T"},
		{"(number? 4.5)", "#T"},
		{"(integer? 4)", "#T"},
		{"(integer? 4.5)", "#F"},
		{"(float? 4.5)", "#T"},
		{"(zero? 0)", "#T"},
		{"(zero? 0.0)", "#T"},
		{"(positive? 3)", "#T"},
		{"(negative? -3)", "#T"},
		{"(odd? 3)", "#T"},
		{"(even? 3)", "#F"},
		{"(char? #\\a)", "#T"},
		{`(string? "s")`, "#T"},
		{"(vector? #(1))", "#T"},
		{"(boolean? #T)", "#T"},
		{"(boolean? 1)", "#F"},
		{"(procedure? car)", "#T"},
		{"(procedure? 'car)", "#F"},
		{"(not #F)", "#T"},
		{"(not 1)", "#F"},
		{"(eof-object? 1)", "#F"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestEqualityPrimitives(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(eq? 'a 'a)", "#T"},
		{"(eq? 'a 'b)", "#F"},
		{"(eqv? 2 2)", "#T"},
		{"(eqv? 2 2.0)", "#F"},
		{"(equal? '(1 2) '(1 2))", "#T"},
		{"(equal? '(1 2) '(1 3))", "#F"},
		{`(equal? "ab" "ab")`, "#T"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestDefineAndLookup(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(define x 10)", "X")
	evalTo(t, m, "x", "10")
	evalTo(t, m, "(+ x 5)", "15")

	// plain define refuses to redefine
	_, err := m.EvalString("(define x 11)")
	require.Error(t, err)
	m.Reset()

	// but the procedure shorthand replaces
	run(t, m, "(define (f) 1)")
	evalTo(t, m, "(f)", "1")
	run(t, m, "(define (f) 2)")
	evalTo(t, m, "(f)", "2")
}

func TestUndefinedSymbol(t *testing.T) {
	m := newMachine(t)
	_, err := m.EvalString("no-such-symbol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined symbol")
}

func TestSetBang(t *testing.T) {
	m := newMachine(t)
	run(t, m, "(define x 1)")
	evalTo(t, m, "(set! x 2)", "X")
	evalTo(t, m, "x", "2")

	// set! of an unbound symbol is an error
	_, err := m.EvalString("(set! nope 1)")
	require.Error(t, err)
	m.Reset()

	// set! updates the nearest nested binding
	evalTo(t, m, "((lambda (y) (set! y 9) y) 1)", "9")
	evalTo(t, m, "x", "2")
}

func TestLambdaAndShadowing(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "((lambda (x) (* x x)) 7)", "49")

	run(t, m, "(define x 1)")
	run(t, m, "(define (f x) x)")
	evalTo(t, m, "(f 2)", "2")
	// unshadowed after return
	evalTo(t, m, "x", "1")

	// closures capture their definition environment
	run(t, m, "(define (adder n) (lambda (k) (+ n k)))")
	run(t, m, "(define add3 (adder 3))")
	evalTo(t, m, "(add3 4)", "7")

	// rest parameters
	run(t, m, "(define (rest . args) args)")
	evalTo(t, m, "(rest 1 2 3)", "(1 2 3)")
	run(t, m, "(define (pairrest a . b) (cons a b))")
	evalTo(t, m, "(pairrest 1 2 3)", "(1 2 3)")
	evalTo(t, m, "((lambda args args) 1 2)", "(1 2)")
}

func TestArgumentOrder(t *testing.T) {
	m := newMachine(t)
	// arguments evaluate left to right
	run(t, m, "(define trace '())")
	run(t, m, "(define (note x) (set! trace (cons x trace)) x)")
	run(t, m, "(list (note 1) (note 2) (note 3))")
	evalTo(t, m, "trace", "(3 2 1)")
}

func TestWrongArity(t *testing.T) {
	m := newMachine(t)
	for _, src := range []string{
		"(car)",
		"(car '(1) '(2))",
		"(cons 1)",
		"((lambda (x) x))",
		"((lambda (x) x) 1 2)",
	} {
		_, err := m.EvalString(src)
		require.Error(t, err, "source %s", src)
		m.Reset()
		// the machine stays usable
		evalTo(t, m, "(+ 1 1)", "2")
	}
}

func TestIf(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(if #T 1 2)", "1"},
		{"(if #F 1 2)", "2"},
		{"(if '() 1 2)", "2"},
		{"(if 0 1 2)", "1"},
		{"(if #F 1)", "#F"},   // no alternate: the condition's value
		{"(if '() 1)", "()"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestBeginOrAnd(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(begin 1 2 3)", "3"},
		{"(begin)", "()"},
		{"(or)", "#F"},
		{"(or #F 2)", "2"},
		{"(or 1 2)", "1"},
		{"(or #F #F)", "#F"},
		{"(and)", "#T"},
		{"(and 1 2)", "2"},
		{"(and #F 2)", "#F"},
		{"(and 1 #F 3)", "#F"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}

	// short circuit: the rest is never evaluated
	run(t, m, "(define hits 0)")
	run(t, m, "(define (bump) (set! hits (+ hits 1)) #T)")
	run(t, m, "(or 1 (bump))")
	run(t, m, "(and #F (bump))")
	evalTo(t, m, "hits", "0")
}

func TestFactorial(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(define (fact n) (if (= n 0) 1 (* n (fact (- n 1)))))", "FACT")
	evalTo(t, m, "(fact 10)", "3628800")
}

func TestTailCallBoundedStack(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(define (loop n) (if (= n 0) 'done (loop (- n 1))))", "LOOP")
	// far more iterations than any stack has slots
	evalTo(t, m, "(loop 100000)", "DONE")

	assert.Zero(t, m.Expr.Depth())
	assert.Zero(t, m.Val.Depth())
	assert.Zero(t, m.Func.Depth())
}

func TestMutualTailCalls(t *testing.T) {
	m := newMachine(t)
	run(t, m, "(define (even-loop n) (if (= n 0) 'even (odd-loop (- n 1))))")
	run(t, m, "(define (odd-loop n) (if (= n 0) 'odd (even-loop (- n 1))))")
	evalTo(t, m, "(even-loop 50001)", "ODD")
}

func TestCallCC(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(call/cc (lambda (k) (+ 1 (k 42))))", "42")
	evalTo(t, m, "(call/cc (lambda (k) 7))", "7")
	evalTo(t, m, "(+ 1 (call/cc (lambda (k) (k 10) 99)))", "11")
	evalTo(t, m, "(call-with-current-continuation (lambda (k) (k 5)))", "5")
}

func TestContinuationReentry(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(define c #F)", "C")
	evalTo(t, m, "(+ 1 (call/cc (lambda (k) (set! c k) 10)))", "11")
	// invoking the saved continuation re-enters the (+ 1 _) context,
	// after its dynamic extent has ended, as many times as we like
	evalTo(t, m, "(c 100)", "101")
	evalTo(t, m, "(c 200)", "201")
}

func TestMacro(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m,
		"(macro my-when (lambda (form) (list 'if (cadr form) (cons 'begin (cddr form)) #F)))",
		"MY-WHEN")
	evalTo(t, m, "(my-when #T 1 2 3)", "3")
	evalTo(t, m, "(my-when #F 1 2 3)", "#F")

	// a macro does not shadow a variable of the same name outside
	// head position
	run(t, m, "(define x 5)")
	evalTo(t, m, "(macro x (lambda (form) (cadr form)))", "X")
	evalTo(t, m, "(x 42)", "42") // macro wins in head position
	evalTo(t, m, "x", "5")       // variable wins elsewhere

	// redefinition replaces the expander
	evalTo(t, m, "(macro x (lambda (form) 0))", "X")
	evalTo(t, m, "(x 42)", "0")
}

func TestMacroSeesUnevaluatedForm(t *testing.T) {
	m := newMachine(t)
	// the expander receives the original form, arguments unevaluated
	run(t, m, "(define qlist '())")
	run(t, m, "(macro remember (lambda (form) (list 'begin (list 'set! 'qlist (list 'quote (cadr form))) #T)))")
	evalTo(t, m, "(remember (+ 1 2))", "#T")
	evalTo(t, m, "qlist", "(+ 1 2)")
}

func TestQuote(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "'x", "X")
	evalTo(t, m, "'(1 2)", "(1 2)")
	evalTo(t, m, "(quote (a . b))", "(A . B)")
}

func TestEvalAndApply(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(eval '(+ 1 2))", "3")
	evalTo(t, m, "(eval ''x)", "X")
	evalTo(t, m, "(apply + '(1 2 3))", "6")
	evalTo(t, m, "(apply car '((9 8)))", "9")

	// eval in a captured environment
	run(t, m, "(define env (the-environment))")
	run(t, m, "(define y 33)")
	evalTo(t, m, "(eval 'y env)", "33")
}

func TestStringsAndChars(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{`(string-length "hello")`, "5"},
		{`(string-ref "abc" 1)`, `#\b`},
		{`(substring "hello" 1 3)`, `"ell"`},
		{`(string-append "foo" "bar")`, `"foobar"`},
		{`(string->list "ab")`, `(#\a #\b)`},
		{`(list->string (list #\a #\b))`, `"ab"`},
		{"(symbol->string 'abc)", `"ABC"`},
		{`(string->symbol "ABC")`, "ABC"},
		{`(string=? "a" "a")`, "#T"},
		{`(string<? "a" "b")`, "#T"},
		{`(string>? "a" "b")`, "#F"},
		{"(char->integer #\\a)", "97"},
		{"(integer->char 97)", `#\a`},
		{"(char=? #\\a #\\a)", "#T"},
		{"(char<? #\\a #\\b)", "#T"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestVectorPrimitives(t *testing.T) {
	m := newMachine(t)
	tests := []struct{ src, want string }{
		{"(vector 1 2 3)", "#(1 2 3)"},
		{"(make-vector 2 'x)", "#(X X)"},
		{"(vector-length #(1 2))", "2"},
		{"(vector-ref #(1 2) 1)", "2"},
		{"(vector->list #(1 2))", "(1 2)"},
		{"(list->vector '(1 2))", "#(1 2)"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}

	run(t, m, "(define v (make-vector 3 0))")
	evalTo(t, m, "(vector-set! v 1 'y)", "#(0 Y 0)")
	evalTo(t, m, "(vector-fill! v 9)", "#(9 9 9)")
	run(t, m, "(define w (vector-copy v))")
	run(t, m, "(vector-set! w 0 0)")
	evalTo(t, m, "v", "#(9 9 9)")

	_, err := m.EvalString("(vector-ref #(1) 5)")
	require.Error(t, err)
}

func TestGensym(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(eq? (gensym) (gensym))", "#F")
	evalTo(t, m, "(symbol? (gensym))", "#T")
}

func TestErrorPrimitive(t *testing.T) {
	m := newMachine(t)
	_, err := m.EvalString(`(error "boom" 42)`)
	require.Error(t, err)
	m.Reset()
	evalTo(t, m, "(+ 1 1)", "2")
}

func TestExit(t *testing.T) {
	m := newMachine(t)
	_, err := m.EvalString("(exit)")
	assert.ErrorIs(t, err, ErrExit)
}

func TestDisplayAndWriteOutput(t *testing.T) {
	var out bytes.Buffer
	m, err := New(Options{Stdin: strings.NewReader(""), Stdout: &out})
	require.NoError(t, err)

	_, err = m.EvalString(`(display "hi") (newline) (write "hi")`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n\"hi\"", out.String())
}

func TestReadPrimitive(t *testing.T) {
	m, err := New(Options{Stdin: strings.NewReader("(1 2 3) 42"), Stdout: &bytes.Buffer{}})
	require.NoError(t, err)

	v, err := m.EvalString("(read)")
	require.NoError(t, err)
	assert.Equal(t, "(1 2 3)", m.H.Sprint(v))

	v, err = m.EvalString("(read)")
	require.NoError(t, err)
	assert.Equal(t, "42", m.H.Sprint(v))

	v, err = m.EvalString("(read)")
	require.NoError(t, err)
	assert.Equal(t, m.H.Eof, v)
}

func TestLoad(t *testing.T) {
	m := newMachine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.scm")
	src := "(define (triple n) (* 3 n))\n(define loaded 'yes)\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	evalTo(t, m, `(load "`+path+`")`, `"`+path+`"`)
	evalTo(t, m, "(triple 14)", "42")
	evalTo(t, m, "loaded", "YES")

	_, err := m.EvalString(`(load "/no/such/file.scm")`)
	require.Error(t, err)
}

func TestFilePorts(t *testing.T) {
	m := newMachine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.scm")

	run(t, m, `(define out (open-output-file "`+path+`"))`)
	evalTo(t, m, "(output-port? out)", "#T")
	run(t, m, "(write '(1 2 3) out)")
	run(t, m, "(close-file out)")

	run(t, m, `(define in (open-input-file "`+path+`"))`)
	evalTo(t, m, "(input-port? in)", "#T")
	evalTo(t, m, "(read in)", "(1 2 3)")
	evalTo(t, m, "(eof-object? (read in))", "#T")
	run(t, m, "(close-file in)")
}

func TestDumpRestoreEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.bin")

	m := newMachine(t)
	run(t, m, "(define magic 42)")
	run(t, m, "(define lst '(1 (2) 3))")
	run(t, m, `(define msg "hello")`)
	evalTo(t, m, `(dump-environment "`+path+`")`, `"`+path+`"`)

	// a fresh interpreter restores the globals
	m2 := newMachine(t)
	evalTo(t, m2, `(restore-environment "`+path+`")`, `"`+path+`"`)
	evalTo(t, m2, "magic", "42")
	evalTo(t, m2, "lst", "(1 (2) 3)")
	evalTo(t, m2, "msg", `"hello"`)
	// primitives still work after a restore
	evalTo(t, m2, "(+ magic 1)", "43")
}

func TestTheEnvironmentRoundTrip(t *testing.T) {
	m := newMachine(t)
	run(t, m, "(define e (the-environment))")
	evalTo(t, m, "(procedure? e)", "#F")
	evalTo(t, m, "(eval '(+ 2 2) e)", "4")
	// the caller's environment survives an eval-in-env
	run(t, m, "(define z 1)")
	evalTo(t, m, "(begin (eval '(+ 1 1) e) z)", "1")
}

func TestInterrupt(t *testing.T) {
	m := newMachine(t)
	run(t, m, "(define (forever) (forever))")
	m.Interrupt()
	_, err := m.EvalString("(forever)")
	assert.ErrorIs(t, err, ErrInterrupt)
	m.Reset()
	evalTo(t, m, "(+ 1 2)", "3")
}

func TestDirectives(t *testing.T) {
	m := newMachine(t)
	evalTo(t, m, "(torture)", "#T")
	evalTo(t, m, "(torture)", "()")
	evalTo(t, m, "(evdebug)", "#T")
	m.EvalDebug = false
	evalTo(t, m, "(gcdebug)", "#T")
	m.H.Debug = false
}

func TestStackOverflowUnwinds(t *testing.T) {
	m := newMachine(t)
	// deep non-tail recursion must overflow a machine stack, not
	// crash the host
	run(t, m, "(define (deep n) (if (= n 0) 0 (+ 1 (deep (- n 1)))))")
	_, err := m.EvalString("(deep 100000)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow")

	m.Reset()
	evalTo(t, m, "(deep 10)", "10")
}
