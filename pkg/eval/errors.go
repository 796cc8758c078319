package eval

import (
	"errors"
	"fmt"
	"io"

	"gscheme/pkg/cell"
)

// RuntimeError is the single error taxonomy of the interpreter. Type
// errors, arity errors, undefined symbols, stack overflow and underflow,
// compile overflow and I/O failures are all RuntimeErrors; the top level
// reports them, dumps the stack tops, resets, and keeps reading.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

// ErrInterrupt is returned by the evaluator when the host delivers an
// interrupt; the top level resets the stacks and continues.
var ErrInterrupt = errors.New("interrupted")

// errorf builds a RuntimeError.
func (m *Machine) errorf(format string, args ...any) error {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// errorVal builds a RuntimeError whose message ends with the offending
// value in written form.
func (m *Machine) errorVal(msg string, c *cell.Cell) error {
	return &RuntimeError{Message: msg + m.H.Sprint(c)}
}

// asRuntime wraps stack overflow/underflow and similar plain errors so
// everything the evaluator returns shares one taxonomy. Fatal errors and
// interrupts pass through untouched.
func asRuntime(err error) error {
	if err == nil {
		return nil
	}
	var rt *RuntimeError
	if errors.As(err, &rt) || cell.IsFatal(err) || errors.Is(err, ErrInterrupt) {
		return err
	}
	return &RuntimeError{Message: err.Error()}
}

// DumpStacks prints the top few entries of each machine stack; the top
// level calls it when reporting a runtime error, and the evaluator in
// debug mode prints it before every dispatch.
func (m *Machine) DumpStacks(w io.Writer) {
	m.dumpStack(w, "Expression stack: ", m.Expr)
	m.dumpStack(w, "Value stack: ", m.Val)
	m.dumpStack(w, "Function stack: ", m.Func)
}

func (m *Machine) dumpStack(w io.Writer, label string, s *cell.Stack) {
	fmt.Fprint(w, label)
	if s.Empty() {
		fmt.Fprintf(w, "  <EMPTY>\n")
		return
	}
	for i := 0; i < 5; i++ {
		c := s.Peek(i)
		if c == nil {
			break
		}
		m.H.Write(w, c)
		fmt.Fprint(w, " | ")
	}
	fmt.Fprintln(w)
}
