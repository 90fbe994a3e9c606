// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// A Flag selects one bit of the processor status byte.
type Flag byte

// Bits assigned to the processor status byte
const (
	Carry            Flag = 1 << 0 // C
	Zero             Flag = 1 << 1 // Z
	InterruptDisable Flag = 1 << 2 // I
	Decimal          Flag = 1 << 3 // D
	Break            Flag = 1 << 4 // B
	Unused           Flag = 1 << 5 // U
	Overflow         Flag = 1 << 6 // V
	Negative         Flag = 1 << 7 // N
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{Negative, "N"},
	{Overflow, "V"},
	{Unused, "U"},
	{Break, "B"},
	{Decimal, "D"},
	{InterruptDisable, "I"},
	{Zero, "Z"},
	{Carry, "C"},
}

// FlagByName returns the flag whose single-letter name (C, Z, I, D, B, U,
// V or N) or long name matches 's', ignoring case.
func FlagByName(s string) (Flag, bool) {
	switch strings.ToLower(s) {
	case "c", "carry":
		return Carry, true
	case "z", "zero":
		return Zero, true
	case "i", "interruptdisable":
		return InterruptDisable, true
	case "d", "decimal":
		return Decimal, true
	case "b", "break":
		return Break, true
	case "u", "unused":
		return Unused, true
	case "v", "overflow":
		return Overflow, true
	case "n", "negative", "sign":
		return Negative, true
	}
	return 0, false
}

// Status holds the eight processor status flags packed into one byte.
type Status byte

// Has reports whether flag 'f' is set.
func (s Status) Has(f Flag) bool {
	return byte(s)&byte(f) != 0
}

// Set sets or clears flag 'f'.
func (s *Status) Set(f Flag, v bool) {
	if v {
		*s |= Status(f)
	} else {
		*s &^= Status(f)
	}
}

// Carry reports whether the carry flag is set.
func (s Status) Carry() bool { return s.Has(Carry) }

// Zero reports whether the zero flag is set.
func (s Status) Zero() bool { return s.Has(Zero) }

// InterruptDisable reports whether the interrupt disable flag is set.
func (s Status) InterruptDisable() bool { return s.Has(InterruptDisable) }

// Decimal reports whether the decimal mode flag is set.
func (s Status) Decimal() bool { return s.Has(Decimal) }

// Break reports whether the break flag is set.
func (s Status) Break() bool { return s.Has(Break) }

// Unused reports whether the unused flag is set. It reads as 1 on real
// hardware.
func (s Status) Unused() bool { return s.Has(Unused) }

// Overflow reports whether the overflow flag is set.
func (s Status) Overflow() bool { return s.Has(Overflow) }

// Negative reports whether the negative (sign) flag is set.
func (s Status) Negative() bool { return s.Has(Negative) }

// SetCarry sets or clears the carry flag.
func (s *Status) SetCarry(v bool) { s.Set(Carry, v) }

// SetZero sets or clears the zero flag.
func (s *Status) SetZero(v bool) { s.Set(Zero, v) }

// SetInterruptDisable sets or clears the interrupt disable flag.
func (s *Status) SetInterruptDisable(v bool) { s.Set(InterruptDisable, v) }

// SetDecimal sets or clears the decimal mode flag.
func (s *Status) SetDecimal(v bool) { s.Set(Decimal, v) }

// SetBreak sets or clears the break flag.
func (s *Status) SetBreak(v bool) { s.Set(Break, v) }

// SetUnused sets or clears the unused flag.
func (s *Status) SetUnused(v bool) { s.Set(Unused, v) }

// SetOverflow sets or clears the overflow flag.
func (s *Status) SetOverflow(v bool) { s.Set(Overflow, v) }

// SetNegative sets or clears the negative (sign) flag.
func (s *Status) SetNegative(v bool) { s.Set(Negative, v) }

// String returns the flags in NV-BDIZC order, with cleared flags shown
// as '-'.
func (s Status) String() string {
	var b [8]byte
	for i, f := range flagNames {
		if s.Has(f.flag) {
			b[i] = f.name[0]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}

// Registers contains the state of all 6502 registers.
type Registers struct {
	A  byte   // accumulator
	X  byte   // X indexing register
	Y  byte   // Y indexing register
	SP uint16 // stack register, decremented on each push
	PC uint16 // program counter
	PS Status // processor status flags
}

// Power-up and reset values
const (
	ResetVector  = 0xfffc
	PowerUpStack = 0x0100
	ResetStack   = 0x00ff
)

// Init sets the registers to their power-up state. PC = $FFFC,
// SP = $0100, everything else zero.
func (r *Registers) Init() {
	*r = Registers{PC: ResetVector, SP: PowerUpStack}
}

// Reset sets the registers to their documented reset state. PC = $FFFC,
// SP = $00FF, A, X, Y and all flags zero.
func (r *Registers) Reset() {
	*r = Registers{PC: ResetVector, SP: ResetStack}
}

// Update the Zero and Negative flags based on the value of 'v'.
func (r *Registers) updateNZ(v byte) {
	r.PS.Set(Zero, v == 0)
	r.PS.Set(Negative, v&0x80 != 0)
}
