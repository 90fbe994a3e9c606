// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a line assembler for the instruction subset
// supported by package cpu.
//
// Each source line holds at most one label, one instruction or pseudo-op,
// and a comment introduced by ';'. Labels end with ':'. Operands are
// expressions over numbers and labels, e.g. "table+2" or "(end-start)/2",
// evaluated by package expr. Supported pseudo-ops are .ORG, .DB (.BYTE)
// and .DW (.WORD).
package asm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/lite6502/cpu"
	"github.com/beevik/lite6502/expr"
	"github.com/pkg/errors"
)

var (
	errParse      = errors.New("parse error")
	errUnresolved = errors.New("unresolved label")
)

type pseudoOpData struct {
	fn    func(a *assembler, operand string, param int) error
	param int
}

var pseudoOps map[string]pseudoOpData

func init() {
	pseudoOps = map[string]pseudoOpData{
		".org":  {fn: (*assembler).parseOrigin},
		".or":   {fn: (*assembler).parseOrigin},
		".db":   {fn: (*assembler).parseData, param: 1},
		".byte": {fn: (*assembler).parseData, param: 1},
		".dw":   {fn: (*assembler).parseData, param: 2},
		".word": {fn: (*assembler).parseData, param: 2},
	}
}

// A fixup records an operand expression that referred to a label whose
// address was not yet known when the expression was parsed.
type fixup struct {
	offset int    // offset into the code of the operand
	size   int    // operand size in bytes
	expr   string // operand expression
	line   int    // source line of the reference
}

type assembler struct {
	filename string
	origin   int
	pc       int
	line     int
	code     []byte
	labels   map[string]int
	fixups   []fixup
	errors   []string
}

// Assembly contains the assembled machine code and other data associated
// with the machine code.
type Assembly struct {
	Origin uint16   // Address of the first byte of Code
	Code   []byte   // Assembled machine code
	Errors []string // Errors encountered during assembly
}

// ReadFrom reads raw machine code from a binary input source.
func (a *Assembly) ReadFrom(r io.Reader) (n int64, err error) {
	a.Errors = nil
	a.Code, err = io.ReadAll(r)
	n = int64(len(a.Code))
	if n > cpu.MemorySize {
		return n, errors.New("code exceeded 64K size")
	}
	return n, err
}

// WriteTo saves machine code as binary data into an output writer.
func (a *Assembly) WriteTo(w io.Writer) (n int64, err error) {
	nn, err := w.Write(a.Code)
	return int64(nn), err
}

// Load stores the assembled code into memory at its origin.
func (a *Assembly) Load(mem *cpu.Memory) error {
	return mem.StoreBytes(int(a.Origin), a.Code)
}

// Assemble reads data from the provided stream and attempts to assemble it
// into 6502 byte code. Code starts at 'origin' unless the source begins
// with an .ORG pseudo-op. On failure the returned Assembly still carries
// every error found.
func Assemble(r io.Reader, filename string, origin uint16) (*Assembly, error) {
	a := &assembler{
		filename: filename,
		origin:   int(origin),
		pc:       int(origin),
		labels:   make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		a.line++
		a.parseLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return &Assembly{Origin: origin}, errors.Wrapf(err, "reading '%s'", filename)
	}

	a.resolveFixups()

	assembly := &Assembly{
		Origin: uint16(a.origin),
		Code:   a.code,
		Errors: a.errors,
	}
	if len(a.errors) > 0 {
		return assembly, errors.Wrapf(errParse, "%d error(s) in '%s'", len(a.errors), filename)
	}
	return assembly, nil
}

// AssembleString is a convenience wrapper around Assemble for in-memory
// source text.
func AssembleString(s string, origin uint16) (*Assembly, error) {
	return Assemble(strings.NewReader(s), "<string>", origin)
}

func (a *assembler) parseLine(line string) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	if i := strings.IndexByte(line, ':'); i >= 0 {
		a.storeLabel(strings.TrimSpace(line[:i]))
		line = strings.TrimSpace(line[i+1:])
	}
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	op, operand := fields[0], strings.Join(fields[1:], "")

	if p, ok := pseudoOps[strings.ToLower(op)]; ok {
		p.fn(a, operand, p.param)
		return
	}

	a.parseInstruction(op, operand)
}

func (a *assembler) storeLabel(label string) {
	switch {
	case !isIdentifier(label):
		a.addError("invalid label '%s'", label)
	default:
		if _, ok := a.labels[label]; ok {
			a.addError("label '%s' already defined", label)
			return
		}
		a.labels[label] = a.pc
	}
}

func (a *assembler) parseOrigin(operand string, _ int) error {
	v, err := a.eval(operand, true)
	if err != nil || v < 0 || v > 0xffff {
		a.addError("invalid origin '%s'", operand)
		return errParse
	}

	switch {
	case len(a.code) == 0:
		// Labels seen so far mark the first byte of code, which now
		// lives at the new origin.
		for label := range a.labels {
			a.labels[label] = v
		}
		a.origin, a.pc = v, v
	case v < a.pc:
		a.addError("origin $%04X is behind the current address $%04X", v, a.pc)
		return errParse
	default:
		a.emit(make([]byte, v-a.pc)...)
	}
	return nil
}

func (a *assembler) parseData(operand string, size int) error {
	if operand == "" {
		a.addError("missing data values")
		return errParse
	}
	for _, s := range strings.Split(operand, ",") {
		v, err := a.parseValue(s, size)
		if err != nil {
			a.addError("%v", err)
			return errParse
		}
		a.emit(toBytes(size, v)...)
	}
	return nil
}

func (a *assembler) parseInstruction(op, operand string) error {
	instructions := cpu.GetInstructions(op)
	if instructions == nil {
		a.addError("invalid opcode '%s'", op)
		return errParse
	}

	mode, expr, err := parseOperand(operand)
	if err != nil {
		a.addError("%v", err)
		return errParse
	}

	inst := findMode(instructions, mode)
	if inst == nil && mode == cpu.ZPG {
		inst = findMode(instructions, cpu.ABS)
	}
	if inst == nil {
		a.addError("addressing mode %v not supported by %s", mode, strings.ToUpper(op))
		return errParse
	}

	size := int(inst.Length) - 1
	a.emit(byte(inst.Opcode))
	v, err := a.parseValue(expr, size)
	if err != nil {
		a.addError("%v", err)
		return errParse
	}
	a.emit(toBytes(size, v)...)
	return nil
}

func findMode(instructions []*cpu.Instruction, mode cpu.Mode) *cpu.Instruction {
	for _, inst := range instructions {
		if inst.Mode == mode {
			return inst
		}
	}
	return nil
}

// Classify an operand string by its addressing mode syntax and return
// the value expression it contains. A bare address is reported as ZPG;
// the caller falls back to ABS for instructions without a zero-page form.
func parseOperand(s string) (mode cpu.Mode, expr string, err error) {
	switch {
	case s == "":
		return 0, "", errors.New("missing operand")
	case s[0] == '#':
		return cpu.IMM, s[1:], nil
	case strings.HasSuffix(strings.ToUpper(s), ",X"):
		return cpu.ZPX, s[:len(s)-2], nil
	case strings.Contains(s, ","):
		return 0, "", errors.Errorf("unknown addressing mode format '%s'", s)
	}
	return cpu.ZPG, s, nil
}

// Parse an operand expression of the given byte size. Expressions that
// refer to labels not defined yet are recorded as fixups and evaluate to
// zero until resolveFixups runs.
func (a *assembler) parseValue(s string, size int) (int, error) {
	if s == "" {
		return 0, errors.New("missing value")
	}

	v, err := a.eval(s, false)
	switch {
	case errors.Is(err, errUnresolved):
		a.fixups = append(a.fixups, fixup{
			offset: len(a.code),
			size:   size,
			expr:   s,
			line:   a.line,
		})
		return 0, nil
	case err != nil:
		return 0, err
	}
	return checkSize(s, v, size)
}

// Evaluate an expression against the labels defined so far. Unless
// 'final' is set, an unknown label yields errUnresolved.
func (a *assembler) eval(s string, final bool) (int, error) {
	p := expr.Parser{
		Resolve: func(id string) (int64, error) {
			if !isIdentifier(id) {
				return 0, errors.Errorf("invalid label '%s'", id)
			}
			if v, ok := a.labels[id]; ok {
				return int64(v), nil
			}
			if final {
				return 0, errors.Errorf("undefined label '%s'", id)
			}
			return 0, errors.Wrapf(errUnresolved, "label '%s'", id)
		},
	}

	v, err := p.Eval(s)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Check that an operand value fits in 'size' bytes. Negative values are
// stored in two's complement.
func checkSize(s string, v, size int) (int, error) {
	switch size {
	case 1:
		if v < -0x80 || v > 0xff {
			if isIdentifier(s) {
				return 0, errors.Errorf("label '%s' ($%04X) is not in the zero page", s, v)
			}
			return 0, errors.Errorf("value '%s' does not fit in a byte", s)
		}
	default:
		if v < -0x8000 || v > 0xffff {
			return 0, errors.Errorf("value '%s' does not fit in a word", s)
		}
	}
	return v, nil
}

func (a *assembler) resolveFixups() {
	for _, f := range a.fixups {
		a.line = f.line
		v, err := a.eval(f.expr, true)
		if err == nil {
			v, err = checkSize(f.expr, v, f.size)
		}
		if err != nil {
			a.addError("%v", err)
			continue
		}
		copy(a.code[f.offset:], toBytes(f.size, v))
	}
}

func (a *assembler) emit(b ...byte) {
	if a.pc+len(b) > cpu.MemorySize {
		a.addError("code exceeds the 64K address space")
		return
	}
	a.code = append(a.code, b...)
	a.pc += len(b)
}

// Append an error message to the assembler's error state.
func (a *assembler) addError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.errors = append(a.errors, fmt.Sprintf("Syntax error in '%s' line %d: %s", a.filename, a.line, msg))
}
