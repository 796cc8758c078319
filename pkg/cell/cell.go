// Package cell implements the storage layer of the interpreter: the tagged
// cell value model, the segmented heap with its mark-and-sweep collector,
// the register stack used to root temporaries across allocations, the
// symbol table, the machine stacks, and the low-level list, vector and
// equality microcode.
//
// Every runtime value is a *Cell allocated from a Heap. Cells are uniform
// records: a tag, a mark bit, and a variant payload. References between
// cells are direct pointers. The collector reclaims cells onto a free list;
// it never moves them.
package cell

import (
	"io"
	"os"

	"gscheme/pkg/lexer"
)

// Tag discriminates the payload of a Cell.
type Tag uint8

const (
	// Free marks a cell on the heap's free list.
	Free Tag = iota

	// Unique sentinel objects. Exactly one cell of each of these tags
	// exists per heap.
	Nil
	True
	False
	Eof

	Pair
	Int
	Float
	Symbol // payload is an index into the symbol table
	Char
	String
	Port

	Bytecode // compiled code block: byte array + constant pool
	ExePoint // saved position inside a bytecode block

	Primitive // built-in function
	PrimForm  // built-in special form
	Closure   // user-defined procedure
	UserForm  // user-defined special form

	Cont   // reified continuation
	Resume // suspended special-form marker

	Vector
	Environ
)

// String returns a human-readable name for a tag, used in diagnostics.
func (t Tag) String() string {
	switch t {
	case Free:
		return "FREE"
	case Nil:
		return "NIL"
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	case Eof:
		return "EOF"
	case Pair:
		return "PAIR"
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Symbol:
		return "SYMBOL"
	case Char:
		return "CHAR"
	case String:
		return "STRING"
	case Port:
		return "PORT"
	case Bytecode:
		return "BYTECODE"
	case ExePoint:
		return "EXEPOINT"
	case Primitive:
		return "PRIMITIVE"
	case PrimForm:
		return "PRIMFORM"
	case Closure:
		return "CLOSURE"
	case UserForm:
		return "USERFORM"
	case Cont:
		return "CONTINUATION"
	case Resume:
		return "RESUME"
	case Vector:
		return "VECTOR"
	case Environ:
		return "ENVIRONMENT"
	default:
		return "UNKNOWN"
	}
}

// PortDir is the direction of a port.
type PortDir int

const (
	PortInput PortDir = iota + 1
	PortOutput
	PortClosed
)

// PortData is the host side of a port cell. Input ports carry their own
// scanner so that nested loads never share token state; output ports
// carry a writer. File is kept for closing and may be nil for the
// standard ports of an embedded machine.
type PortData struct {
	File *os.File
	Scan *lexer.Scanner // input ports only
	W    io.Writer      // output ports only
	Dir  PortDir
}

// PrimData describes a built-in function or special form. Handlers pop
// their arguments from the value stack and push one result; they are
// installed as closures over the owning machine.
type PrimData struct {
	Name     string
	Code     byte // predefined number; doubles as the bytecode opcode
	Required int  // required argument count
	Allowed  int  // allowed count; see ArityOK for the encoding
	Fn       func() error
}

// ArityOK reports whether n arguments satisfy the primitive's arity.
// Allowed == Required means exactly Required; Allowed > Required means
// between the two; Allowed < Required means at least Required.
func (p *PrimData) ArityOK(n int) bool {
	switch {
	case p.Required == n:
		return true
	case p.Allowed >= p.Required:
		return n >= p.Required && n <= p.Allowed
	default:
		return n >= p.Required
	}
}

// Cell is the uniform heap record. The meaning of the payload fields
// depends on the tag:
//
//	Pair      a=car b=cdr
//	Closure   a=captured nested env, b=params, c=body
//	UserForm  b=params, c=body
//	Cont      a=nested env, b=value stack, c=expression stack, d=function stack
//	Environ   a=nested a-list, b=global vector
//	ExePoint  a=bytecode cell, b=nested env, num=pc
//	Symbol    num=symbol table index
//	Resume    num=operation opcode
//	Int       num; Float fnum; Char ch; String str
//	Bytecode  code + cells (constant pool)
//	Vector    cells
//
// The cdr slot doubles as the free-list link while the cell is free.
type Cell struct {
	tag  Tag
	mark bool

	a, b, c, d *Cell

	num  int64
	fnum float64
	str  string
	ch   byte

	code  []byte
	cells []*Cell
	prim  *PrimData
	port  *PortData
}

// Kind returns the cell's tag.
func (c *Cell) Kind() Tag { return c.tag }

// Predicates. IsNull is true only of the unique empty list; IsAtom is the
// complement of IsPair, matching the traditional Lisp reading.

func (c *Cell) IsNull() bool    { return c.tag == Nil }
func (c *Cell) IsPair() bool    { return c.tag == Pair }
func (c *Cell) IsAtom() bool    { return c.tag != Pair }
func (c *Cell) IsSymbol() bool  { return c.tag == Symbol }
func (c *Cell) IsString() bool  { return c.tag == String }
func (c *Cell) IsChar() bool    { return c.tag == Char }
func (c *Cell) IsInt() bool     { return c.tag == Int }
func (c *Cell) IsFloat() bool   { return c.tag == Float }
func (c *Cell) IsNumber() bool  { return c.tag == Int || c.tag == Float }
func (c *Cell) IsPort() bool    { return c.tag == Port }
func (c *Cell) IsVector() bool  { return c.tag == Vector }
func (c *Cell) IsCode() bool    { return c.tag == Bytecode }
func (c *Cell) IsExe() bool     { return c.tag == ExePoint }
func (c *Cell) IsFunc() bool    { return c.tag == Primitive }
func (c *Cell) IsForm() bool    { return c.tag == PrimForm }
func (c *Cell) IsClosure() bool { return c.tag == Closure }
func (c *Cell) IsUserForm() bool { return c.tag == UserForm }
func (c *Cell) IsCont() bool    { return c.tag == Cont }
func (c *Cell) IsResume() bool  { return c.tag == Resume }
func (c *Cell) IsEnviron() bool { return c.tag == Environ }

// IsFalse reports whether the cell counts as false in a conditional.
// False values are #f and the empty list.
func (c *Cell) IsFalse() bool { return c.tag == False || c.tag == Nil }

// Pair accessors. Callers are expected to have checked IsPair; the
// tolerant variants that return () for atoms live on the Heap.

func (c *Cell) Car() *Cell     { return c.a }
func (c *Cell) Cdr() *Cell     { return c.b }
func (c *Cell) SetCar(v *Cell) { c.a = v }
func (c *Cell) SetCdr(v *Cell) { c.b = v }

// Atom payloads.

func (c *Cell) Int() int64       { return c.num }
func (c *Cell) Float() float64   { return c.fnum }
func (c *Cell) Char() byte       { return c.ch }
func (c *Cell) Str() string      { return c.str }
func (c *Cell) SymbolIndex() int { return int(c.num) }
func (c *Cell) Opcode() byte     { return byte(c.num) }

func (c *Cell) SetInt(v int64)     { c.num = v }
func (c *Cell) SetFloat(v float64) { c.fnum = v }
func (c *Cell) SetStr(s string)    { c.str = s }

// Closure and user-form accessors.

func (c *Cell) ClosureEnv() *Cell    { return c.a }
func (c *Cell) ClosureParams() *Cell { return c.b }
func (c *Cell) ClosureBody() *Cell   { return c.c }

func (c *Cell) SetClosureEnv(e *Cell)    { c.a = e }
func (c *Cell) SetClosureParams(p *Cell) { c.b = p }
func (c *Cell) SetClosureBody(b *Cell)   { c.c = b }

// Continuation accessors.

func (c *Cell) ContEnv() *Cell  { return c.a }
func (c *Cell) ContVals() *Cell { return c.b }
func (c *Cell) ContExps() *Cell { return c.c }
func (c *Cell) ContFncs() *Cell { return c.d }

func (c *Cell) SetContEnv(v *Cell)  { c.a = v }
func (c *Cell) SetContVals(v *Cell) { c.b = v }
func (c *Cell) SetContExps(v *Cell) { c.c = v }
func (c *Cell) SetContFncs(v *Cell) { c.d = v }

// Environment accessors. The nested part is an association list of
// (symbol . value) pairs; the global part is a vector cell indexed by
// symbol table index whose unbound slots hold Go nil.

func (c *Cell) EnvNested() *Cell { return c.a }
func (c *Cell) EnvGlobal() *Cell { return c.b }

func (c *Cell) SetEnvNested(n *Cell) { c.a = n }
func (c *Cell) SetEnvGlobal(g *Cell) { c.b = g }

// Execution-point accessors.

func (c *Cell) ExeCode() *Cell { return c.a }
func (c *Cell) ExeEnv() *Cell  { return c.b }
func (c *Cell) ExePC() int     { return int(c.num) }

func (c *Cell) SetExeCode(bc *Cell) { c.a = bc }
func (c *Cell) SetExeEnv(e *Cell)   { c.b = e }
func (c *Cell) SetExePC(pc int)     { c.num = int64(pc) }

// Bytecode accessors.

func (c *Cell) Code() []byte       { return c.code }
func (c *Cell) Constants() []*Cell { return c.cells }

// Vector accessors.

func (c *Cell) Elems() []*Cell { return c.cells }
func (c *Cell) VectorLen() int { return len(c.cells) }

// Prim returns the primitive descriptor of a Primitive or PrimForm cell.
func (c *Cell) Prim() *PrimData { return c.prim }

// SetPrim installs the primitive descriptor.
func (c *Cell) SetPrim(p *PrimData) { c.prim = p }

// Port returns the host port data of a Port cell.
func (c *Cell) Port() *PortData { return c.port }

// SetPort installs the host port data.
func (c *Cell) SetPort(p *PortData) { c.port = p }

// SameSymbol reports whether two symbol cells name the same symbol.
// Symbols are interned, so index equality is symbol equality.
func SameSymbol(a, b *Cell) bool {
	return a.tag == Symbol && b.tag == Symbol && a.num == b.num
}
