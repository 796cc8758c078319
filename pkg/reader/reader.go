// Package reader turns token streams into cell trees.
//
// The reader performs no evaluation: 'x becomes (QUOTE X), `x becomes
// (QUASIQUOTE X), ,x and ,@x become (UNQUOTE X) and (UNQUOTE-SPLICE X).
// The keywords #NULL, #T and #F denote the singletons. Vector literals
// may carry an element count (#3(...)) or not (#(...)).
//
// Reading allocates cells, so every partially built structure is rooted
// on the heap's register stack while the rest of it is read.
package reader

import (
	"fmt"

	"gscheme/pkg/cell"
	"gscheme/pkg/lexer"
)

// Read returns the next object from the token stream, or the EOF object
// at end of input.
func Read(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	c, err := read(h, s)
	if err != nil {
		return nil, err
	}
	if c == nil {
		// a close paren with no matching open
		tok := s.Next()
		return nil, fmt.Errorf("read: unexpected %q", tok.Text)
	}
	return c, nil
}

// read returns nil (with no error) when the next token is a list
// terminator, leaving the token in the stream for the caller.
func read(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	tok := s.Next()

	switch tok.Type {
	case lexer.Quote, lexer.Quasiquote, lexer.Unquote, lexer.UnquoteSplice:
		s.Unread(tok)
		return readQuote(h, s)

	case lexer.SymbolTok, lexer.StringTok, lexer.IntTok, lexer.FloatTok, lexer.CharTok:
		s.Unread(tok)
		return readAtom(h, s)

	case lexer.VectorTok:
		s.Unread(tok)
		return readVector(h, s)

	case lexer.LParen, lexer.LBracket:
		s.Unread(tok)
		return readList(h, s)

	case lexer.RParen, lexer.RBracket:
		s.Unread(tok)
		return nil, nil

	case lexer.EOF:
		return h.Eof, nil

	default:
		return nil, fmt.Errorf("read: syntax error at %q", tok.Text)
	}
}

func readAtom(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	tok := s.Next()

	if tok.Type == lexer.SymbolTok {
		switch tok.Text {
		case "#NULL":
			return h.Nil, nil
		case "#T":
			return h.T, nil
		case "#F":
			return h.F, nil
		}
	}

	switch tok.Type {
	case lexer.IntTok:
		return h.Int(tok.Int), nil
	case lexer.FloatTok:
		return h.Float(tok.Float), nil
	case lexer.SymbolTok:
		return h.Symbol(tok.Text)
	case lexer.CharTok:
		return h.Char(tok.Text[0]), nil
	case lexer.StringTok:
		return h.Str(tok.Text), nil
	default:
		return nil, fmt.Errorf("read: illegal token %q", tok.Text)
	}
}

func readList(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	save := h.Mark()
	defer h.Release(save)
	head, tail, elem := h.Reg(), h.Reg(), h.Reg()
	*head, *tail = h.Nil, h.Nil

	open := s.Next()
	end := lexer.RParen
	if open.Type == lexer.LBracket {
		end = lexer.RBracket
	}

	for {
		tok := s.Next()
		if tok.Type == end || tok.Type == lexer.Dot {
			s.Unread(tok)
			break
		}
		if tok.Type == lexer.EOF {
			return nil, fmt.Errorf("read: unexpected end of input in list")
		}
		s.Unread(tok)

		e, err := read(h, s)
		if err != nil {
			return nil, err
		}
		if e == nil {
			// mismatched closer terminates the list
			break
		}
		*elem = h.Cons(e, h.Nil)

		if (*head).IsNull() {
			*head = *elem
			*tail = *elem
		} else {
			(*tail).SetCdr(*elem)
			*tail = *elem
		}
	}

	tok := s.Next()
	if tok.Type == lexer.Dot {
		e, err := read(h, s)
		if err != nil {
			return nil, err
		}
		if e == nil || (*head).IsNull() {
			return nil, fmt.Errorf("read: misplaced dot")
		}
		(*tail).SetCdr(e)

		if tok = s.Next(); tok.Type != end {
			// skip the rest of the malformed tail
			for tok.Type != end && tok.Type != lexer.EOF {
				tok = s.Next()
			}
			return nil, fmt.Errorf("read: misplaced dot, elements skipped")
		}
	}

	return *head, nil
}

func readQuote(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	tok := s.Next()

	var name string
	switch tok.Type {
	case lexer.Quote:
		name = "QUOTE"
	case lexer.Quasiquote:
		name = "QUASIQUOTE"
	case lexer.Unquote:
		name = "UNQUOTE"
	case lexer.UnquoteSplice:
		name = "UNQUOTE-SPLICE"
	}

	save := h.Mark()
	defer h.Release(save)
	q, elem := h.Reg(), h.Reg()

	sym, err := h.Symbol(name)
	if err != nil {
		return nil, err
	}
	*q = sym

	e, err := read(h, s)
	if err != nil {
		return nil, err
	}
	if e == nil || e == h.Eof {
		return nil, fmt.Errorf("read: %s needs an expression", name)
	}
	*elem = h.Cons(e, h.Nil)
	return h.Cons(*q, *elem), nil
}

func readVector(h *cell.Heap, s *lexer.Scanner) (*cell.Cell, error) {
	tok := s.Next()

	save := h.Mark()
	defer h.Release(save)
	v := h.Reg()

	if tok.Int == lexer.UnknownSize {
		lst := h.Reg()
		*lst = h.Nil
		for {
			next := s.Next()
			if next.Type == lexer.RParen {
				break
			}
			if next.Type == lexer.EOF {
				return nil, fmt.Errorf("read: unexpected end of input in vector")
			}
			s.Unread(next)

			e, err := read(h, s)
			if err != nil {
				return nil, err
			}
			if e == nil {
				break
			}
			*lst = h.Cons(e, *lst)
		}
		*lst = h.Rev(*lst)
		*v = h.VectorFromList(*lst)
		return *v, nil
	}

	if tok.Int < 0 {
		return nil, fmt.Errorf("read: negative vector size")
	}
	*v = h.MakeVector(int(tok.Int), h.Nil)
	for i := 0; i < int(tok.Int); i++ {
		e, err := read(h, s)
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		(*v).Elems()[i] = e
	}
	if tok = s.Next(); tok.Type != lexer.RParen {
		return nil, fmt.Errorf("read: vector syntax error")
	}
	return *v, nil
}

