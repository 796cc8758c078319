package eval

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Torture mode collects before every allocation, so any temporary the
// evaluator fails to root is reclaimed out from under it immediately.
// Everything that passes normally must pass identically here.

func newTortureMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(Options{Torture: true, Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	return m
}

func TestTortureBasics(t *testing.T) {
	m := newTortureMachine(t)
	tests := []struct{ src, want string }{
		{"(+ 1 2 3)", "6"},
		{"(cons 1 (cons 2 '()))", "(1 2)"},
		{"(list 'a \"b\" 3 4.5 #\\c)", `(A "b" 3 4.5 #\c)`},
		{"(append '(1 2) '(3))", "(1 2 3)"},
		{"(reverse '(1 2 3))", "(3 2 1)"},
		{"(vector 1 2 3)", "#(1 2 3)"},
		{"((lambda (x y) (cons x y)) 1 2)", "(1 . 2)"},
		{"(begin 'a 'b 'c)", "C"},
		{"(if (< 1 2) (list 1) (list 2))", "(1)"},
		{`(string->list "ab")`, `(#\a #\b)`},
		{"(eval '(+ 1 2))", "3"},
	}
	for _, tt := range tests {
		evalTo(t, m, tt.src, tt.want)
	}
}

func TestTortureClosuresAndRecursion(t *testing.T) {
	m := newTortureMachine(t)
	evalTo(t, m, "(define (fact n) (if (= n 0) 1 (* n (fact (- n 1)))))", "FACT")
	evalTo(t, m, "(fact 10)", "3628800")

	run(t, m, "(define (loop n) (if (= n 0) 'done (loop (- n 1))))")
	evalTo(t, m, "(loop 500)", "DONE")
}

func TestTortureContinuations(t *testing.T) {
	m := newTortureMachine(t)
	evalTo(t, m, "(call/cc (lambda (k) (+ 1 (k 42))))", "42")
	evalTo(t, m, "(define c #F)", "C")
	evalTo(t, m, "(+ 1 (call/cc (lambda (k) (set! c k) 10)))", "11")
	evalTo(t, m, "(c 100)", "101")
}

func TestTortureMacros(t *testing.T) {
	m := newTortureMachine(t)
	evalTo(t, m,
		"(macro my-when (lambda (form) (list 'if (cadr form) (cons 'begin (cddr form)) #F)))",
		"MY-WHEN")
	evalTo(t, m, "(my-when #T 1 2 3)", "3")
}

func TestTortureCompiledCode(t *testing.T) {
	m := newTortureMachine(t)
	evalTo(t, m, "(eval (*compile* '(+ 20 22)))", "42")
	run(t, m, "(define sq (eval (*compile* '(lambda (x) (* x x)))))")
	evalTo(t, m, "(sq 12)", "144")
}

func TestTortureReader(t *testing.T) {
	m := newTortureMachine(t)
	evalTo(t, m, "'(1 (2 (3 (4))) #(5 6) \"s\")", `(1 (2 (3 (4))) #(5 6) "s")`)
}
