// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package expr evaluates the integer expressions accepted by the assembler
// operands and the host's command arguments.
//
// Numbers may be written as $hex, 0xhex, %binary, 0bbinary, 0ddecimal,
// decimal or as a quoted character ('A'). Supported operators, from
// lowest to highest precedence, are | ^ & << >> + - * / % and the unary
// operators - + ~. Parentheses group subexpressions. Identifiers are
// looked up through a caller-supplied Resolver.
package expr

import (
	"strconv"

	"github.com/pkg/errors"
)

// Errors returned by the evaluator.
var (
	ErrSyntax       = errors.New("expression syntax error")
	ErrDivideByZero = errors.New("division by zero")
)

// A Resolver returns the value of an identifier found in an expression.
type Resolver func(id string) (int64, error)

// A Parser evaluates expressions.
type Parser struct {
	// HexMode treats unprefixed numbers as hexadecimal. An identifier made
	// up entirely of hex digits is then read as a number.
	HexMode bool

	// Resolve looks up identifiers. A nil Resolve rejects all identifiers.
	Resolve Resolver
}

// Eval evaluates the expression 's'.
func (p *Parser) Eval(s string) (int64, error) {
	e := &evaluator{p: p, s: s}
	v, err := e.expression(1)
	if err != nil {
		return 0, err
	}
	e.skipSpace()
	if e.pos < len(e.s) {
		return 0, e.syntaxError()
	}
	return v, nil
}

type binaryOp struct {
	symbol string
	prec   int
	eval   func(a, b int64) (int64, error)
}

// Two-character symbols come first so they match before their prefixes.
var binaryOps = []binaryOp{
	{"<<", 4, func(a, b int64) (int64, error) { return a << uint64(b&63), nil }},
	{">>", 4, func(a, b int64) (int64, error) { return a >> uint64(b&63), nil }},
	{"*", 6, func(a, b int64) (int64, error) { return a * b, nil }},
	{"/", 6, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	}},
	{"%", 6, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	}},
	{"+", 5, func(a, b int64) (int64, error) { return a + b, nil }},
	{"-", 5, func(a, b int64) (int64, error) { return a - b, nil }},
	{"&", 3, func(a, b int64) (int64, error) { return a & b, nil }},
	{"^", 2, func(a, b int64) (int64, error) { return a ^ b, nil }},
	{"|", 1, func(a, b int64) (int64, error) { return a | b, nil }},
}

type evaluator struct {
	p   *Parser
	s   string
	pos int
}

func (e *evaluator) syntaxError() error {
	return errors.Wrapf(ErrSyntax, "invalid expression '%s'", e.s)
}

func (e *evaluator) skipSpace() {
	for e.pos < len(e.s) && whitespace(e.s[e.pos]) {
		e.pos++
	}
}

func (e *evaluator) peekOp() *binaryOp {
	for i := range binaryOps {
		op := &binaryOps[i]
		if len(e.s)-e.pos >= len(op.symbol) && e.s[e.pos:e.pos+len(op.symbol)] == op.symbol {
			return op
		}
	}
	return nil
}

// Evaluate a chain of binary operations whose precedence is at least
// minPrec. Operators of equal precedence associate to the left.
func (e *evaluator) expression(minPrec int) (int64, error) {
	lhs, err := e.unary()
	if err != nil {
		return 0, err
	}

	for {
		e.skipSpace()
		op := e.peekOp()
		if op == nil || op.prec < minPrec {
			return lhs, nil
		}
		e.pos += len(op.symbol)

		rhs, err := e.expression(op.prec + 1)
		if err != nil {
			return 0, err
		}
		if lhs, err = op.eval(lhs, rhs); err != nil {
			return 0, err
		}
	}
}

func (e *evaluator) unary() (int64, error) {
	e.skipSpace()
	if e.pos < len(e.s) {
		switch e.s[e.pos] {
		case '-':
			e.pos++
			v, err := e.unary()
			return -v, err
		case '+':
			e.pos++
			return e.unary()
		case '~':
			e.pos++
			v, err := e.unary()
			return ^v, err
		}
	}
	return e.primary()
}

func (e *evaluator) primary() (int64, error) {
	if e.pos >= len(e.s) {
		return 0, e.syntaxError()
	}

	c := e.s[e.pos]
	switch {
	case c == '(':
		e.pos++
		v, err := e.expression(1)
		if err != nil {
			return 0, err
		}
		e.skipSpace()
		if e.pos >= len(e.s) || e.s[e.pos] != ')' {
			return 0, e.syntaxError()
		}
		e.pos++
		return v, nil

	case c == '$':
		e.pos++
		return e.number(16, hexadecimal)

	case c == '%':
		e.pos++
		return e.number(2, binary)

	case c == '\'':
		if e.pos+2 >= len(e.s) || e.s[e.pos+2] != '\'' {
			return 0, e.syntaxError()
		}
		v := int64(e.s[e.pos+1])
		e.pos += 3
		return v, nil

	case c == '0' && e.pos+1 < len(e.s) && (e.s[e.pos+1] == 'x' || e.s[e.pos+1] == 'X'):
		e.pos += 2
		return e.number(16, hexadecimal)

	case c == '0' && e.pos+1 < len(e.s) && e.s[e.pos+1] == 'b' && !e.p.HexMode:
		e.pos += 2
		return e.number(2, binary)

	case c == '0' && e.pos+2 < len(e.s) && e.s[e.pos+1] == 'd' && decimal(e.s[e.pos+2]):
		e.pos += 2
		return e.number(10, decimal)

	case decimal(c):
		if e.p.HexMode {
			return e.number(16, hexadecimal)
		}
		return e.number(10, decimal)

	case identStart(c):
		return e.identifier()
	}

	return 0, e.syntaxError()
}

func (e *evaluator) number(base int, fn func(c byte) bool) (int64, error) {
	start := e.pos
	for e.pos < len(e.s) && fn(e.s[e.pos]) {
		e.pos++
	}
	if start == e.pos {
		return 0, e.syntaxError()
	}

	v, err := strconv.ParseInt(e.s[start:e.pos], base, 64)
	if err != nil {
		return 0, e.syntaxError()
	}
	return v, nil
}

func (e *evaluator) identifier() (int64, error) {
	start := e.pos
	for e.pos < len(e.s) && identifier(e.s[e.pos]) {
		e.pos++
	}
	id := e.s[start:e.pos]

	if e.p.HexMode && allHex(id) {
		v, err := strconv.ParseInt(id, 16, 64)
		if err != nil {
			return 0, e.syntaxError()
		}
		return v, nil
	}

	if e.p.Resolve == nil {
		return 0, errors.Errorf("identifier '%s' not found", id)
	}
	return e.p.Resolve(id)
}

func allHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !hexadecimal(s[i]) {
			return false
		}
	}
	return true
}

func whitespace(c byte) bool {
	return c == ' ' || c == '\t'
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func hexadecimal(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func binary(c byte) bool {
	return c == '0' || c == '1'
}

func identStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.'
}

func identifier(c byte) bool {
	return identStart(c) || decimal(c)
}
