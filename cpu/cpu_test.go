// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/beevik/lite6502/asm"
	"github.com/beevik/lite6502/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Assemble code at the reset vector and return a freshly reset CPU
// along with the memory holding the code.
func loadCPU(t *testing.T, src string) (*cpu.CPU, *cpu.Memory) {
	t.Helper()
	a, err := asm.AssembleString(src, cpu.ResetVector)
	require.NoError(t, err, "assembly errors: %v", a.Errors)

	mem := cpu.NewMemory()
	require.NoError(t, a.Load(mem))

	c := cpu.NewCPU()
	c.Logger = log.New(&bytes.Buffer{}, "", 0)
	c.Reset()
	return c, mem
}

func runCPU(t *testing.T, src string, cycles uint32) (*cpu.CPU, *cpu.Memory) {
	t.Helper()
	c, mem := loadCPU(t, src)
	require.NoError(t, c.Execute(mem, cycles))
	return c, mem
}

func expectPC(t *testing.T, c *cpu.CPU, pc uint16) {
	t.Helper()
	assert.Equal(t, pc, c.Reg.PC, "PC incorrect. exp: $%04X, got: $%04X", pc, c.Reg.PC)
}

func expectCycles(t *testing.T, c *cpu.CPU, cycles uint64) {
	t.Helper()
	assert.Equal(t, cycles, c.Cycles, "Cycles incorrect")
}

func expectACC(t *testing.T, c *cpu.CPU, acc byte) {
	t.Helper()
	assert.Equal(t, acc, c.Reg.A, "Accumulator incorrect. exp: $%02X, got: $%02X", acc, c.Reg.A)
}

func expectSP(t *testing.T, c *cpu.CPU, sp uint16) {
	t.Helper()
	assert.Equal(t, sp, c.Reg.SP, "stack pointer incorrect. exp: $%04X, got: $%04X", sp, c.Reg.SP)
}

func expectMem(t *testing.T, mem *cpu.Memory, addr int, v byte) {
	t.Helper()
	got, err := mem.LoadByte(addr)
	require.NoError(t, err)
	assert.Equal(t, v, got, "Memory at $%04X incorrect. exp: $%02X, got: $%02X", addr, v, got)
}

func expectFlags(t *testing.T, c *cpu.CPU, z, n bool) {
	t.Helper()
	assert.Equal(t, z, c.Reg.PS.Zero(), "zero flag")
	assert.Equal(t, n, c.Reg.PS.Negative(), "negative flag")
}

func TestPowerUp(t *testing.T) {
	c := cpu.NewCPU()
	expectPC(t, c, 0xfffc)
	expectSP(t, c, 0x0100)
	expectACC(t, c, 0)
	assert.Equal(t, cpu.Status(0), c.Reg.PS)
}

func TestReset(t *testing.T) {
	c := cpu.NewCPU()
	c.Reg.A, c.Reg.X, c.Reg.Y = 1, 2, 3
	c.Reg.PS = 0xff
	c.SetPC(0x1234)

	mem := cpu.NewMemory()
	require.NoError(t, mem.StoreByte(0x80, 0x99))

	for i := 0; i < 2; i++ {
		c.Reset()
		assert.Equal(t, cpu.Registers{PC: 0xfffc, SP: 0x00ff}, c.Reg)
	}
	expectMem(t, mem, 0x80, 0x99)
}

func TestLDAImmediate(t *testing.T) {
	c, _ := runCPU(t, "LDA #$42", 2)
	expectACC(t, c, 0x42)
	expectPC(t, c, 0xfffe)
	expectCycles(t, c, 2)
	expectFlags(t, c, false, false)

	c, _ = runCPU(t, "LDA #0", 2)
	expectACC(t, c, 0)
	expectFlags(t, c, true, false)

	c, _ = runCPU(t, "LDA #$80", 2)
	expectACC(t, c, 0x80)
	expectFlags(t, c, false, true)
}

func TestLDAZeroPage(t *testing.T) {
	c, mem := loadCPU(t, "LDA $42")
	require.NoError(t, mem.StoreByte(0x42, 0x37))
	require.NoError(t, c.Execute(mem, 3))

	expectACC(t, c, 0x37)
	expectPC(t, c, 0xfffe)
	expectCycles(t, c, 3)
	expectFlags(t, c, false, false)
}

func TestLDAZeroPageX(t *testing.T) {
	c, mem := loadCPU(t, "LDA $80,X")
	c.Reg.X = 0x0f
	require.NoError(t, mem.StoreByte(0x8f, 0xf0))
	require.NoError(t, c.Execute(mem, 4))

	expectACC(t, c, 0xf0)
	expectCycles(t, c, 4)
	expectFlags(t, c, false, true)
}

func TestLDAZeroPageXWraps(t *testing.T) {
	c, mem := loadCPU(t, "LDA $80,X")
	c.Reg.X = 0xff
	require.NoError(t, mem.StoreByte(0x7f, 0x11))
	require.NoError(t, mem.StoreByte(0x17f, 0x22))
	require.NoError(t, c.Execute(mem, 4))

	expectACC(t, c, 0x11)
}

func TestADC(t *testing.T) {
	tests := []struct {
		a, v     byte
		carryIn  bool
		result   byte
		carry    bool
		zero     bool
		overflow bool
		negative bool
	}{
		{0x01, 0x01, false, 0x02, false, false, false, false},
		{0x01, 0x01, true, 0x03, false, false, false, false},
		{0xff, 0x01, false, 0x00, true, true, false, false},
		{0x50, 0x50, false, 0xa0, false, false, true, true},
		{0xd0, 0x90, false, 0x60, true, false, true, false},
		{0x7f, 0x00, true, 0x80, false, false, true, true},
		{0x80, 0xff, false, 0x7f, true, false, true, false},
		{0xf0, 0x10, true, 0x01, true, false, false, false},
	}

	for _, tt := range tests {
		mem := cpu.NewMemory()
		require.NoError(t, mem.StoreBytes(0x1000, []byte{byte(cpu.ADCImmediate), tt.v}))

		c := cpu.NewCPU()
		c.Reset()
		c.SetPC(0x1000)
		c.Reg.A = tt.a
		c.Reg.PS.SetCarry(tt.carryIn)
		require.NoError(t, c.Execute(mem, 2))

		expectACC(t, c, tt.result)
		assert.Equal(t, tt.carry, c.Reg.PS.Carry(), "carry for $%02X+$%02X", tt.a, tt.v)
		assert.Equal(t, tt.zero, c.Reg.PS.Zero(), "zero for $%02X+$%02X", tt.a, tt.v)
		assert.Equal(t, tt.overflow, c.Reg.PS.Overflow(), "overflow for $%02X+$%02X", tt.a, tt.v)
		assert.Equal(t, tt.negative, c.Reg.PS.Negative(), "negative for $%02X+$%02X", tt.a, tt.v)
	}
}

func TestLDAFlagsByMode(t *testing.T) {
	tests := []struct {
		src      string
		value    byte
		zero     bool
		negative bool
	}{
		{"LDA $10", 0x00, true, false},
		{"LDA $10", 0x80, false, true},
		{"LDA $10", 0x37, false, false},
		{"LDA $0e,X", 0x00, true, false},
		{"LDA $0e,X", 0xc1, false, true},
		{"LDA $0e,X", 0x7f, false, false},
	}

	for _, tt := range tests {
		c, mem := loadCPU(t, tt.src)
		c.Reg.A = 0x55
		c.Reg.X = 0x02
		require.NoError(t, mem.StoreByte(0x10, tt.value))
		require.NoError(t, c.Execute(mem, 1))

		expectACC(t, c, tt.value)
		assert.Equal(t, tt.zero, c.Reg.PS.Zero(), "zero for %s = $%02X", tt.src, tt.value)
		assert.Equal(t, tt.negative, c.Reg.PS.Negative(), "negative for %s = $%02X", tt.src, tt.value)
	}
}

func TestADCZeroPage(t *testing.T) {
	c, mem := loadCPU(t, "ADC $10")
	c.Reg.A = 0x20
	require.NoError(t, mem.StoreByte(0x10, 0x22))
	require.NoError(t, c.Execute(mem, 3))
	expectACC(t, c, 0x42)
	expectCycles(t, c, 3)

	c, mem = loadCPU(t, "ADC $10,X")
	c.Reg.A = 0x20
	c.Reg.X = 0x02
	require.NoError(t, mem.StoreByte(0x12, 0x01))
	require.NoError(t, c.Execute(mem, 4))
	expectACC(t, c, 0x21)
	expectCycles(t, c, 4)
}

func TestJSR(t *testing.T) {
	c, mem := runCPU(t, "JSR $2000", 7)

	expectPC(t, c, 0x2000)
	expectSP(t, c, 0x00fd)
	expectCycles(t, c, 7)
	expectMem(t, mem, 0x00ff, 0xff)
	expectMem(t, mem, 0x00fe, 0xfe)
	expectACC(t, c, 0)
}

func TestSubroutine(t *testing.T) {
	a, err := asm.AssembleString(`
	.org $1000
	JSR sub
	.org $1010
sub:	LDA #$10
	ADC #$20`, 0)
	require.NoError(t, err)

	mem := cpu.NewMemory()
	require.NoError(t, a.Load(mem))
	c := cpu.NewCPU()
	c.Reset()
	c.SetPC(0x1000)
	require.NoError(t, c.Execute(mem, 11))

	expectACC(t, c, 0x30)
	expectPC(t, c, 0x1014)
	expectCycles(t, c, 11)
	expectMem(t, mem, 0x00ff, 0x10)
	expectMem(t, mem, 0x00fe, 0x02)
}

func TestBudget(t *testing.T) {
	// The final instruction always completes, even past the budget.
	c, _ := runCPU(t, "LDA #1\nLDA #2", 1)
	expectACC(t, c, 1)
	expectCycles(t, c, 2)

	c, _ = runCPU(t, "LDA #1\nLDA #2", 3)
	expectACC(t, c, 2)
	expectCycles(t, c, 4)

	c, _ = runCPU(t, "LDA #1", 0)
	expectACC(t, c, 0)
	expectPC(t, c, 0xfffc)
	expectCycles(t, c, 0)
}

func TestStep(t *testing.T) {
	c, mem := loadCPU(t, "JSR $2000")
	n, err := c.Step(mem)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, uint16(0xfffc), c.LastPC)
}

func TestInstructionCycles(t *testing.T) {
	for _, inst := range cpu.Instructions() {
		mem := cpu.NewMemory()
		code := []byte{byte(inst.Opcode), 0x10, 0x30}
		require.NoError(t, mem.StoreBytes(0x0200, code[:inst.Length]))

		c := cpu.NewCPU()
		c.Reset()
		c.SetPC(0x0200)
		n, err := c.Step(mem)
		require.NoError(t, err, inst.String())
		assert.Equal(t, int(inst.Cycles), n, inst.String())
		assert.Equal(t, uint64(inst.Cycles), c.Cycles, inst.String())
	}
}

type invalidRecorder struct {
	addr  uint16
	value byte
	calls int
}

func (r *invalidRecorder) OnInvalidOpcode(c *cpu.CPU, addr uint16, value byte) {
	r.addr, r.value = addr, value
	r.calls++
}

func TestInvalidOpcodeLogged(t *testing.T) {
	c, mem := loadCPU(t, ".db $ff")
	var buf bytes.Buffer
	c.Logger = log.New(&buf, "", 0)
	c.Reg.A = 0x12
	c.Reg.PS.SetCarry(true)
	before := c.Reg

	require.NoError(t, c.Execute(mem, 1))

	after := c.Reg
	after.PC = before.PC
	assert.Equal(t, before, after)
	expectPC(t, c, 0xfffd)
	expectCycles(t, c, 1)
	assert.Contains(t, buf.String(), "invalid instruction byte: $FF")
}

func TestInvalidOpcodeHandler(t *testing.T) {
	c, mem := loadCPU(t, ".db $ea, $ea")
	var buf bytes.Buffer
	c.Logger = log.New(&buf, "", 0)
	h := &invalidRecorder{}
	c.AttachInvalidOpcodeHandler(h)

	require.NoError(t, c.Execute(mem, 2))

	assert.Equal(t, 2, h.calls)
	assert.Equal(t, uint16(0xfffd), h.addr)
	assert.Equal(t, byte(0xea), h.value)
	assert.Empty(t, buf.String())
	expectPC(t, c, 0xfffe)
}

func TestProgramCounterWraps(t *testing.T) {
	c := cpu.NewCPU()
	mem := cpu.NewMemory()
	require.NoError(t, mem.StoreByte(0xffff, byte(cpu.LDAImmediate)))
	require.NoError(t, mem.StoreByte(0x0000, 0x5a))
	c.SetPC(0xffff)

	require.NoError(t, c.Execute(mem, 2))
	expectACC(t, c, 0x5a)
	expectPC(t, c, 0x0001)
}
