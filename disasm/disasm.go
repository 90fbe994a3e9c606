// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a disassembler for the instruction subset
// supported by package cpu.
package disasm

import (
	"fmt"

	"github.com/beevik/lite6502/cpu"
)

// Disassembler formatting for addressing modes
var modeFormat = []string{
	"#$%s",  // IMM
	"$%s",   // ZPG
	"$%s,X", // ZPX
	"$%s",   // ABS
}

var hex = "0123456789ABCDEF"

// Return a hexadecimal string representation of the byte slice, most
// significant byte first.
func hexString(b []byte) string {
	hexlen := len(b) * 2
	hexbuf := make([]byte, hexlen)
	j := hexlen - 1
	for _, n := range b {
		hexbuf[j] = hex[n&0xf]
		hexbuf[j-1] = hex[n>>4]
		j -= 2
	}
	return string(hexbuf)
}

// Disassemble the machine code in memory 'm' at address 'addr'. Return a
// 'line' string representing the disassembled instruction and a 'next'
// address that starts the following line of machine code. Bytes that are
// not recognized opcodes disassemble as a one-byte .DB directive.
// Operands that run past $FFFF wrap to $0000.
func Disassemble(m *cpu.Memory, addr uint16) (line string, next uint16) {
	b := Bytes(m, addr)
	inst := cpu.Lookup(b[0])
	if inst == nil {
		return fmt.Sprintf(".DB $%02X", b[0]), addr + 1
	}

	format := "%s " + modeFormat[inst.Mode]
	line = fmt.Sprintf(format, inst.Name, hexString(b[1:]))
	next = addr + uint16(inst.Length)
	return
}

// Bytes returns the machine code bytes of the instruction at 'addr'.
func Bytes(m *cpu.Memory, addr uint16) []byte {
	opcode := load(m, addr)
	n := 1
	if inst := cpu.Lookup(opcode); inst != nil {
		n = int(inst.Length)
	}

	b := make([]byte, n)
	b[0] = opcode
	for i := 1; i < n; i++ {
		b[i] = load(m, addr+uint16(i))
	}
	return b
}

// A uint16 address never falls outside memory.
func load(m *cpu.Memory, addr uint16) byte {
	v, _ := m.LoadByte(int(addr))
	return v
}

// RegisterString returns a string describing the contents of the 6502
// registers.
func RegisterString(r *cpu.Registers) string {
	return fmt.Sprintf("A=%02X X=%02X Y=%02X PS=[%s] SP=%04X PC=%04X",
		r.A, r.X, r.Y, r.PS, r.SP, r.PC)
}
