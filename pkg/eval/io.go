package eval

import (
	"fmt"
	"os"

	"gscheme/pkg/cell"
	"gscheme/pkg/lexer"
	"gscheme/pkg/reader"
)

// Port and I/O primitives. Reads go through the scanner+reader pipeline
// attached to the input port; writes format values as S-expressions.
// Optional port arguments default to the current ports.

// openInput opens name for reading and wraps it in a port cell with its
// own scanner.
func (m *Machine) openInput(name string) (*cell.Cell, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil
	}
	return m.H.NewPort(&cell.PortData{
		File: f,
		Scan: lexer.New(f),
		Dir:  cell.PortInput,
	}), nil
}

// (CURRENT-INPUT-PORT) and (CURRENT-OUTPUT-PORT)
func (m *Machine) opCurrIn() error  { return m.pushVal(m.curIn) }
func (m *Machine) opCurrOut() error { return m.pushVal(m.curOut) }

// popOptPort unwinds the optional trailing port argument of a variadic
// I/O primitive with one required argument. It returns that required
// argument and the chosen port.
func (m *Machine) popOptPort(who string, dir cell.PortDir, dflt *cell.Cell) (*cell.Cell, *cell.Cell, error) {
	top, err := m.popVal()
	if err != nil {
		return nil, nil, err
	}
	next, err := m.popVal()
	if err != nil {
		return nil, nil, err
	}

	if next == m.sMark {
		// only the required argument was given
		return top, dflt, nil
	}
	if _, err := m.popVal(); err != nil { // mark
		return nil, nil, err
	}

	port := top
	if !port.IsPort() {
		return nil, nil, m.errorVal(who+": arg must be a port: ", port)
	}
	if port.Port().Dir != dir {
		if dir == cell.PortInput {
			return nil, nil, m.errorf("%s: port must be an input port", who)
		}
		return nil, nil, m.errorf("%s: port must be an output port", who)
	}
	return next, port, nil
}

// popJustPort handles the zero-required-argument case: (READ [port]).
func (m *Machine) popJustPort(who string, dir cell.PortDir, dflt *cell.Cell) (*cell.Cell, error) {
	top, err := m.popVal()
	if err != nil {
		return nil, err
	}
	if top == m.sMark {
		return dflt, nil
	}
	if _, err := m.popVal(); err != nil { // mark
		return nil, err
	}
	if !top.IsPort() {
		return nil, m.errorVal(who+": arg must be a port: ", top)
	}
	if top.Port().Dir != dir {
		return nil, m.errorf("%s: wrong port direction", who)
	}
	return top, nil
}

// (READ [port])
func (m *Machine) opRead() error {
	port, err := m.popJustPort("READ", cell.PortInput, m.curIn)
	if err != nil {
		return err
	}
	if port.Port().Scan == nil {
		return m.errorf("READ: port has no reader")
	}

	obj, err := reader.Read(m.H, port.Port().Scan)
	if err != nil {
		return asRuntime(err)
	}
	return m.pushVal(obj)
}

// (READ-CHAR [port])
func (m *Machine) opReadChar() error {
	port, err := m.popJustPort("READ-CHAR", cell.PortInput, m.curIn)
	if err != nil {
		return err
	}
	if port.Port().Scan == nil {
		return m.errorf("READ-CHAR: port has no reader")
	}

	ch, err := port.Port().Scan.ReadByte()
	if err != nil {
		return m.pushVal(m.H.Eof)
	}
	return m.pushVal(m.H.Char(ch))
}

// portWriter returns the Go writer behind an output port cell.
func portWriter(port *cell.Cell) (interface{ Write([]byte) (int, error) }, error) {
	p := port.Port()
	if p.W != nil {
		return p.W, nil
	}
	if p.File != nil {
		return p.File, nil
	}
	return nil, fmt.Errorf("port has no writer")
}

// (WRITE obj [port])
func (m *Machine) opWrite() error {
	obj, port, err := m.popOptPort("WRITE", cell.PortOutput, m.curOut)
	if err != nil {
		return err
	}
	w, err := portWriter(port)
	if err != nil {
		return asRuntime(err)
	}
	m.H.Write(w, obj)
	return m.pushVal(obj)
}

// (DISPLAY obj [port])
func (m *Machine) opDisplay() error {
	obj, port, err := m.popOptPort("DISPLAY", cell.PortOutput, m.curOut)
	if err != nil {
		return err
	}
	w, err := portWriter(port)
	if err != nil {
		return asRuntime(err)
	}
	m.H.Display(w, obj)
	return m.pushVal(obj)
}

// (WRITE-CHAR char [port])
func (m *Machine) opWriteChar() error {
	ch, port, err := m.popOptPort("WRITE-CHAR", cell.PortOutput, m.curOut)
	if err != nil {
		return err
	}
	if !ch.IsChar() {
		return m.errorVal("WRITE-CHAR: first arg must be a character: ", ch)
	}
	w, err := portWriter(port)
	if err != nil {
		return asRuntime(err)
	}
	fmt.Fprintf(w, "%c", ch.Char())
	return m.pushVal(ch)
}

// (NEWLINE [port])
func (m *Machine) opNewLine() error {
	port, err := m.popJustPort("NEWLINE", cell.PortOutput, m.curOut)
	if err != nil {
		return err
	}
	w, err := portWriter(port)
	if err != nil {
		return asRuntime(err)
	}
	fmt.Fprintln(w)
	return m.pushVal(m.H.Nil)
}

// (OPEN-INPUT-FILE name)
func (m *Machine) opOpenInFile() error {
	name, err := m.popString("OPEN-INPUT-FILE")
	if err != nil {
		return err
	}
	port, err := m.openInput(name.Str())
	if err != nil {
		return err
	}
	if port == nil {
		return m.errorVal("OPEN-INPUT-FILE: can't open: ", name)
	}
	return m.pushVal(port)
}

// (OPEN-OUTPUT-FILE name)
func (m *Machine) opOpenOutFile() error {
	name, err := m.popString("OPEN-OUTPUT-FILE")
	if err != nil {
		return err
	}
	f, err := os.Create(name.Str())
	if err != nil {
		return m.errorVal("OPEN-OUTPUT-FILE: can't open: ", name)
	}
	return m.pushVal(m.H.NewPort(&cell.PortData{
		File: f,
		W:    f,
		Dir:  cell.PortOutput,
	}))
}

// (CLOSE-FILE port)
func (m *Machine) closePort(port *cell.Cell) {
	p := port.Port()
	if p.Dir != cell.PortClosed && p.File != nil {
		p.File.Close()
	}
	p.Dir = cell.PortClosed
}

func (m *Machine) opClose() error {
	port, err := m.popVal()
	if err != nil {
		return err
	}
	if !port.IsPort() {
		return m.errorVal("CLOSE-FILE: arg must be a port: ", port)
	}
	m.closePort(port)
	return m.pushVal(m.H.Nil)
}

// ----------------------------------------------------------------------
// load
// ----------------------------------------------------------------------

// (LOAD string) reads and evaluates one expression at a time through the
// resume protocol: the value stack holds the port and the previous
// expression's value, and each resume throws the value away, reads the
// next expression, and re-installs itself until EOF closes the port. The
// file name, pushed first, is left behind as load's value.
func (m *Machine) opLoad() error {
	save := m.H.Mark()
	defer m.H.Release(save)
	name := m.H.Reg()

	n, err := m.popVal()
	if err != nil {
		return err
	}
	*name = n
	if err := m.pushVal(*name); err != nil {
		return err
	}

	if !(*name).IsString() {
		return m.errorVal("LOAD: arg must be a string: ", *name)
	}

	found, err := m.loadSetup((*name).Str())
	if err != nil {
		return err
	}
	if !found {
		return m.errorVal("LOAD: file not found: ", *name)
	}
	return nil
}

// loadSetup opens the file and installs the first load resume. It
// reports false when the file does not exist.
func (m *Machine) loadSetup(name string) (bool, error) {
	save := m.H.Mark()
	defer m.H.Release(save)
	port := m.H.Reg()

	p, err := m.openInput(name)
	if err != nil {
		return false, asRuntime(err)
	}
	if p == nil {
		return false, nil
	}
	*port = p

	if err := m.pushVal(*port); err != nil {
		return true, err
	}
	// dummy value for the first resume to throw away
	if err := m.pushVal(m.H.T); err != nil {
		return true, err
	}
	return true, m.opResLoad(m.H.NewResume(opLoad))
}

// opResLoad continues a load in progress.
func (m *Machine) opResLoad(res *cell.Cell) error {
	save := m.H.Mark()
	defer m.H.Release(save)
	r, port, exp := m.H.Reg(), m.H.Reg(), m.H.Reg()
	*r = res

	// throw away the previous expression's value
	if _, err := m.popVal(); err != nil {
		return err
	}
	p, err := m.popVal()
	if err != nil {
		return err
	}
	*port = p

	obj, err := reader.Read(m.H, (*port).Port().Scan)
	if err != nil {
		return asRuntime(err)
	}
	if obj == m.H.Eof {
		m.closePort(*port)
		return nil
	}
	*exp = obj

	if err := m.pushVal(*port); err != nil {
		return err
	}
	if err := m.pushExpr(*r); err != nil {
		return err
	}
	return m.pushExpr(*exp)
}

// Load reads and evaluates a whole file; the embedding entry point used
// for scheme.ini and file arguments. Missing files are an error here.
func (m *Machine) Load(name string) error {
	found, err := m.loadSetup(name)
	if err != nil {
		return err
	}
	if !found {
		return m.errorf("LOAD: file not found: %s", name)
	}
	return m.Run()
}

// ----------------------------------------------------------------------
// Environment persistence
// ----------------------------------------------------------------------

// (DUMP-ENVIRONMENT filename)
func (m *Machine) opDumpEnv() error {
	name, err := m.popString("DUMP-ENVIRONMENT")
	if err != nil {
		return err
	}

	save := m.H.Mark()
	defer m.H.Release(save)
	n := m.H.Reg()
	*n = name

	f, err := os.Create(name.Str())
	if err != nil {
		return m.errorVal("DUMP-ENVIRONMENT: can't create: ", name)
	}
	defer f.Close()

	if err := m.H.DumpEnv(f, m.env); err != nil {
		return asRuntime(err)
	}
	return m.pushVal(*n)
}

// (RESTORE-ENVIRONMENT filename)
func (m *Machine) opRestEnv() error {
	name, err := m.popString("RESTORE-ENVIRONMENT")
	if err != nil {
		return err
	}

	save := m.H.Mark()
	defer m.H.Release(save)
	n := m.H.Reg()
	*n = name

	f, err := os.Open(name.Str())
	if err != nil {
		return m.errorVal("RESTORE-ENVIRONMENT: file not found: ", name)
	}
	defer f.Close()

	if err := m.H.RestoreEnv(f, m.env); err != nil {
		return asRuntime(err)
	}
	return m.pushVal(*n)
}
