// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements a subset of the 6502 CPU instruction set and a
// cycle-budgeted emulator for it.
//
// The emulator charges cycles per micro-operation: one per byte fetched
// from the instruction stream, one per data read or write, one for each
// zero-page index computation and two for each stack push. Execute stops
// issuing new instructions once the budget is used up, but an instruction
// that has started always runs to completion.
package cpu

import (
	"log"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
)

// InvalidOpcodeHandler is an interface implemented by types that wish to
// be notified when the CPU fetches a byte that is not a recognized opcode.
// When no handler is attached, the CPU reports through its Logger.
type InvalidOpcodeHandler interface {
	OnInvalidOpcode(cpu *CPU, addr uint16, value byte)
}

// CPU represents a single 6502 CPU. Memory is not owned by the CPU; it is
// passed in to each call of Execute or Step.
type CPU struct {
	Reg            Registers   // CPU registers
	Cycles         uint64      // total charged CPU cycles
	LastPC         uint16      // address of the most recently executed opcode
	Logger         *log.Logger // destination for invalid opcode reports
	debugger       *Debugger
	invalidHandler InvalidOpcodeHandler
	halted         atomic.Bool
}

// NewCPU creates an emulated 6502 CPU in its power-up state.
func NewCPU() *CPU {
	cpu := &CPU{
		Logger: log.New(os.Stderr, "cpu: ", 0),
	}
	cpu.Reg.Init()
	return cpu
}

// Reset puts the CPU registers into the documented reset state. It does
// not touch memory and may be called any number of times.
func (cpu *CPU) Reset() {
	cpu.Reg.Reset()
}

// SetPC updates the CPU program counter to 'addr'.
func (cpu *CPU) SetPC(addr uint16) {
	cpu.Reg.PC = addr
}

// Halt asks a running Execute call to return at the next instruction
// boundary. Breakpoint handlers use it to stop the CPU. It is safe to call
// from another goroutine.
func (cpu *CPU) Halt() {
	cpu.halted.Store(true)
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
}

// DetachDebugger detaches the currently attached debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
}

// AttachInvalidOpcodeHandler attaches a handler that is called whenever
// the CPU fetches an unrecognized opcode.
func (cpu *CPU) AttachInvalidOpcodeHandler(handler InvalidOpcodeHandler) {
	cpu.invalidHandler = handler
}

// Execute runs the fetch-decode-execute loop against 'mem' until the
// cycle budget is exhausted. The budget is only checked before an
// instruction starts, so the last instruction may overrun it.
//
// Invalid opcodes are reported and skipped. Memory bounds errors stop
// execution and are returned.
func (cpu *CPU) Execute(mem *Memory, cycles uint32) error {
	remaining := int64(cycles)
	cpu.halted.Store(false)
	for remaining > 0 && !cpu.halted.Load() {
		if err := cpu.step(mem, &remaining); err != nil {
			return err
		}
	}
	return nil
}

// Step executes a single instruction and returns the number of cycles it
// was charged.
func (cpu *CPU) Step(mem *Memory) (int, error) {
	var remaining int64
	err := cpu.step(mem, &remaining)
	return int(-remaining), err
}

func (cpu *CPU) step(mem *Memory, cycles *int64) error {
	start := *cycles
	cpu.LastPC = cpu.Reg.PC

	b, err := cpu.fetchByte(mem, cycles)
	if err != nil {
		return err
	}

	op, err := DecodeOpcode(b)
	if err != nil {
		cpu.reportInvalid(cpu.LastPC, b)
	} else if err := cpu.dispatch(op, mem, cycles); err != nil {
		return errors.Wrapf(err, "executing %v at $%04X", op, cpu.LastPC)
	}

	cpu.Cycles += uint64(start - *cycles)

	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.PC)
	}
	return nil
}

func (cpu *CPU) dispatch(op Opcode, mem *Memory, cycles *int64) error {
	switch op {
	case LDAImmediate:
		return cpu.lda(IMM, mem, cycles)
	case LDAZeroPage:
		return cpu.lda(ZPG, mem, cycles)
	case LDAZeroPageX:
		return cpu.lda(ZPX, mem, cycles)
	case ADCImmediate:
		return cpu.adc(IMM, mem, cycles)
	case ADCZeroPage:
		return cpu.adc(ZPG, mem, cycles)
	case ADCZeroPageX:
		return cpu.adc(ZPX, mem, cycles)
	case JSR:
		return cpu.jsr(mem, cycles)
	}
	return errors.Errorf("no handler for opcode $%02X", byte(op))
}

func (cpu *CPU) reportInvalid(addr uint16, v byte) {
	switch {
	case cpu.invalidHandler != nil:
		cpu.invalidHandler.OnInvalidOpcode(cpu, addr, v)
	case cpu.Logger != nil:
		cpu.Logger.Printf("%v at $%04X", &InvalidOpcodeError{Value: v}, addr)
	}
}

// Fetch the byte at PC and advance PC. 1 cycle.
func (cpu *CPU) fetchByte(mem *Memory, cycles *int64) (byte, error) {
	v, err := mem.LoadByte(int(cpu.Reg.PC))
	if err != nil {
		return 0, err
	}
	cpu.Reg.PC++
	*cycles--
	return v, nil
}

// Fetch a little-endian word from the instruction stream. 2 cycles.
func (cpu *CPU) fetchWord(mem *Memory, cycles *int64) (uint16, error) {
	lo, err := cpu.fetchByte(mem, cycles)
	if err != nil {
		return 0, err
	}
	hi, err := cpu.fetchByte(mem, cycles)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// Read a zero-page byte. 1 cycle.
func (cpu *CPU) readByte(mem *Memory, addr byte, cycles *int64) (byte, error) {
	*cycles--
	return mem.LoadByte(int(addr))
}

// Write a byte to memory. 1 cycle.
func (cpu *CPU) writeByte(mem *Memory, addr uint16, v byte, cycles *int64) error {
	*cycles--
	if cpu.debugger != nil {
		cpu.debugger.onDataStore(cpu, addr, v)
	}
	return mem.StoreByte(int(addr), v)
}

// Push a value 'v' onto the stack: write at SP, then decrement SP.
// 2 cycles.
func (cpu *CPU) push(mem *Memory, v byte, cycles *int64) error {
	if err := cpu.writeByte(mem, cpu.Reg.SP, v, cycles); err != nil {
		return err
	}
	cpu.Reg.SP--
	*cycles--
	return nil
}

// Push the address 'addr' onto the stack, high byte first.
func (cpu *CPU) pushAddress(mem *Memory, addr uint16, cycles *int64) error {
	if err := cpu.push(mem, byte(addr>>8), cycles); err != nil {
		return err
	}
	return cpu.push(mem, byte(addr), cycles)
}

// Load a byte value using the requested addressing mode, fetching the
// operand from the instruction stream.
func (cpu *CPU) load(mode Mode, mem *Memory, cycles *int64) (byte, error) {
	switch mode {
	case IMM:
		return cpu.fetchByte(mem, cycles)
	case ZPG:
		zp, err := cpu.fetchByte(mem, cycles)
		if err != nil {
			return 0, err
		}
		return cpu.readByte(mem, zp, cycles)
	case ZPX:
		zp, err := cpu.fetchByte(mem, cycles)
		if err != nil {
			return 0, err
		}
		zp = offsetZeroPage(zp, cpu.Reg.X)
		*cycles--
		return cpu.readByte(mem, zp, cycles)
	}
	return 0, errors.Errorf("invalid addressing mode %v", mode)
}

// Load Accumulator
func (cpu *CPU) lda(mode Mode, mem *Memory, cycles *int64) error {
	v, err := cpu.load(mode, mem, cycles)
	if err != nil {
		return err
	}
	cpu.Reg.A = v
	cpu.Reg.updateNZ(cpu.Reg.A)
	return nil
}

// Add with carry (binary mode only)
func (cpu *CPU) adc(mode Mode, mem *Memory, cycles *int64) error {
	add, err := cpu.load(mode, mem, cycles)
	if err != nil {
		return err
	}

	acc := cpu.Reg.A
	var carry uint16
	if cpu.Reg.PS.Has(Carry) {
		carry = 1
	}
	sum := uint16(acc) + uint16(add) + carry
	result := byte(sum)

	cpu.Reg.PS.Set(Carry, sum > 0xff)
	cpu.Reg.PS.Set(Overflow, ^(acc^add)&(acc^result)&0x80 != 0)
	cpu.Reg.updateNZ(result)
	cpu.Reg.A = result
	return nil
}

// Jump to subroutine. The pushed return address is the address of the
// last byte of the JSR instruction.
func (cpu *CPU) jsr(mem *Memory, cycles *int64) error {
	addr, err := cpu.fetchWord(mem, cycles)
	if err != nil {
		return err
	}
	if err := cpu.pushAddress(mem, cpu.Reg.PC-1, cycles); err != nil {
		return err
	}
	cpu.Reg.PC = addr
	return nil
}
