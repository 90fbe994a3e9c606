// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package script_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/lite6502/cpu"
	"github.com/beevik/lite6502/script"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*script.Engine, *cpu.CPU, *cpu.Memory, *bytes.Buffer) {
	t.Helper()
	c := cpu.NewCPU()
	mem := cpu.NewMemory()
	var out bytes.Buffer
	e := script.New(c, mem, &out)
	t.Cleanup(e.Close)
	return e, c, mem, &out
}

func TestDemoScript(t *testing.T) {
	e, c, _, out := newEngine(t)

	err := e.RunString(`
		poke(0xFFFC, 0xA9)
		poke(0xFFFD, 0x42)
		reset()
		local n = execute(2)
		print(n, reg("a"), reg("pc"), flag("z"), flag("n"))
	`)
	require.NoError(t, err)

	assert.Equal(t, byte(0x42), c.Reg.A)
	assert.Equal(t, uint16(0xfffe), c.Reg.PC)
	assert.Equal(t, "2\t66\t65534\tfalse\tfalse\n", out.String())
}

func TestPeekPoke(t *testing.T) {
	e, _, mem, out := newEngine(t)
	require.NoError(t, mem.StoreByte(0x1234, 0x99))

	require.NoError(t, e.RunString(`print(peek(0x1234)); poke(0x10, 7)`))
	assert.Equal(t, "153\n", out.String())

	v, err := mem.LoadByte(0x10)
	require.NoError(t, err)
	assert.Equal(t, byte(7), v)
}

func TestRegistersAndFlags(t *testing.T) {
	e, c, _, _ := newEngine(t)

	require.NoError(t, e.RunString(`
		reg("X", 5)
		reg("pc", 0x2000)
		flag("carry", true)
		flag("V", true)
		flag("V", false)
	`))
	assert.Equal(t, byte(5), c.Reg.X)
	assert.Equal(t, uint16(0x2000), c.Reg.PC)
	assert.True(t, c.Reg.PS.Carry())
	assert.False(t, c.Reg.PS.Overflow())

	assert.Error(t, e.RunString(`reg("a", 256)`))
	assert.Error(t, e.RunString(`reg("q")`))
	assert.Error(t, e.RunString(`flag("q")`))
}

func TestStepAndCycles(t *testing.T) {
	e, c, mem, out := newEngine(t)
	require.NoError(t, mem.StoreBytes(0xfffc, []byte{0x20, 0x00, 0x20}))
	c.Reset()

	require.NoError(t, e.RunString(`print(step(), cycles(), reg("sp"))`))
	assert.Equal(t, "7\t7\t253\n", out.String())
}

func TestMemoryErrors(t *testing.T) {
	e, _, _, _ := newEngine(t)

	err := e.RunString(`poke(0x10000, 1)`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cpu.ErrAddressOutOfRange))

	err = e.RunString(`return peek(-1)`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cpu.ErrAddressOutOfRange))

	err = e.RunString(`poke(0, 300)`)
	require.Error(t, err)
	assert.False(t, errors.Is(err, cpu.ErrAddressOutOfRange))
}

func TestCaughtErrorIsNotReported(t *testing.T) {
	e, _, _, out := newEngine(t)

	err := e.RunString(`
		local ok = pcall(peek, 0x10000)
		print(ok)
		error("boom")
	`)
	require.Error(t, err)
	assert.False(t, errors.Is(err, cpu.ErrAddressOutOfRange))
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "false\n", out.String())

	require.NoError(t, e.RunString(`pcall(poke, -1, 0)`))
}

func TestExecuteBudgetRange(t *testing.T) {
	e, c, _, _ := newEngine(t)

	err := e.RunString(`execute(4294967296)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle budget out of range")

	err = e.RunString(`execute(-1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle budget out of range")
	assert.Equal(t, uint64(0), c.Cycles)
}

func TestSyntaxError(t *testing.T) {
	e, _, _, _ := newEngine(t)
	assert.Error(t, e.RunString(`this is not lua`))
}

func TestRunFile(t *testing.T) {
	e, c, _, _ := newEngine(t)

	path := filepath.Join(t.TempDir(), "prog.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
		poke(0xFFFC, 0x69)
		poke(0xFFFD, 0x01)
		reset()
		reg("a", 0xFF)
		execute(2)
	`), 0o600))

	require.NoError(t, e.RunFile(path))
	assert.Equal(t, byte(0), c.Reg.A)
	assert.True(t, c.Reg.PS.Carry())
	assert.True(t, c.Reg.PS.Zero())

	assert.Error(t, e.RunFile(filepath.Join(t.TempDir(), "missing.lua")))
}
