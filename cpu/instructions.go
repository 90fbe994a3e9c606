// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// An Opcode is an instruction byte recognized by the CPU. The set of
// opcodes is closed: any other byte value is rejected by DecodeOpcode.
type Opcode byte

// Implemented opcodes
const (
	LDAImmediate Opcode = 0xa9 // LDA #nn
	LDAZeroPage  Opcode = 0xa5 // LDA nn
	LDAZeroPageX Opcode = 0xb5 // LDA nn,X
	ADCImmediate Opcode = 0x69 // ADC #nn
	ADCZeroPage  Opcode = 0x65 // ADC nn
	ADCZeroPageX Opcode = 0x75 // ADC nn,X
	JSR          Opcode = 0x20 // JSR nnnn
)

// ErrInvalidOpcode is matched by every InvalidOpcodeError.
var ErrInvalidOpcode = errors.New("invalid opcode")

// An InvalidOpcodeError reports a byte that is not a recognized opcode.
type InvalidOpcodeError struct {
	Value byte
}

func (e *InvalidOpcodeError) Error() string {
	return fmt.Sprintf("invalid instruction byte: $%02X", e.Value)
}

// Is allows errors.Is(err, ErrInvalidOpcode).
func (e *InvalidOpcodeError) Is(target error) bool {
	return target == ErrInvalidOpcode
}

// DecodeOpcode converts an instruction byte into an Opcode. Unrecognized
// bytes produce an *InvalidOpcodeError.
func DecodeOpcode(b byte) (Opcode, error) {
	if table[b] == nil {
		return 0, &InvalidOpcodeError{Value: b}
	}
	return Opcode(b), nil
}

func (op Opcode) String() string {
	if inst := table[op]; inst != nil {
		return inst.String()
	}
	return fmt.Sprintf("$%02X", byte(op))
}

// Mode describes a memory addressing mode.
type Mode byte

// Implemented memory addressing modes
const (
	IMM Mode = iota // Immediate
	ZPG             // Zero Page
	ZPX             // Zero Page,X
	ABS             // Absolute
)

var modeNames = []string{"IMM", "ZPG", "ZPX", "ABS"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "???"
}

// An Instruction describes a CPU instruction, including its name,
// its addressing mode, its opcode value, its operand size, and its CPU
// cycle cost as charged by the emulator.
type Instruction struct {
	Name   string // all-caps name of the instruction
	Mode   Mode   // addressing mode
	Opcode Opcode // hexadecimal opcode value
	Length byte   // combined size of opcode and operand, in bytes
	Cycles byte   // number of CPU cycles charged to execute the instruction
}

func (inst *Instruction) String() string {
	return inst.Name + " " + inst.Mode.String()
}

// All implemented (opcode, mode) pairs. JSR is charged one cycle per
// byte fetched plus two per stack push.
var data = []Instruction{
	{"LDA", IMM, LDAImmediate, 2, 2},
	{"LDA", ZPG, LDAZeroPage, 2, 3},
	{"LDA", ZPX, LDAZeroPageX, 2, 4},

	{"ADC", IMM, ADCImmediate, 2, 2},
	{"ADC", ZPG, ADCZeroPage, 2, 3},
	{"ADC", ZPX, ADCZeroPageX, 2, 4},

	{"JSR", ABS, JSR, 3, 7},
}

var (
	table  [256]*Instruction
	byName = make(map[string][]*Instruction)
)

func init() {
	for i := range data {
		inst := &data[i]
		table[inst.Opcode] = inst
		byName[inst.Name] = append(byName[inst.Name], inst)
	}
}

// Lookup retrieves the instruction metadata for an opcode byte. It
// returns nil if the byte is not a recognized opcode.
func Lookup(b byte) *Instruction {
	return table[b]
}

// GetInstructions returns all instructions matching the case-insensitive
// instruction name.
func GetInstructions(name string) []*Instruction {
	return byName[strings.ToUpper(name)]
}

// Instructions returns the metadata for every implemented opcode, in
// table order.
func Instructions() []*Instruction {
	insts := make([]*Instruction, len(data))
	for i := range data {
		insts[i] = &data[i]
	}
	return insts
}
