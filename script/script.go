// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package script drives an emulated CPU and its memory from Lua.
//
// The following global functions are available to scripts:
//
//	poke(addr, value)     store a byte
//	peek(addr)            load a byte
//	reset()               reset the CPU registers
//	execute(cycles)       run with a cycle budget; returns cycles charged
//	step()                run one instruction; returns cycles charged
//	cycles()              total cycles charged so far
//	reg(name [, value])   get or set A, X, Y, PC, SP or PS
//	flag(name [, value])  get or set a status flag (C, Z, I, D, B, U, V, N)
//	print(...)            write values to the engine's output
package script

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/beevik/lite6502/cpu"
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

// An Engine runs Lua scripts against a CPU and a memory it does not own.
type Engine struct {
	L   *lua.LState
	cpu *cpu.CPU
	mem *cpu.Memory
	out io.Writer
	err error // Go error behind the most recent Lua error
}

// New creates a scripting engine bound to 'c' and 'mem'. Script output
// is written to 'out'.
func New(c *cpu.CPU, mem *cpu.Memory, out io.Writer) *Engine {
	e := &Engine{
		L:   lua.NewState(),
		cpu: c,
		mem: mem,
		out: out,
	}

	for name, fn := range map[string]lua.LGFunction{
		"poke":    e.poke,
		"peek":    e.peek,
		"reset":   e.reset,
		"execute": e.execute,
		"step":    e.step,
		"cycles":  e.cycles,
		"reg":     e.reg,
		"flag":    e.flag,
		"print":   e.print,
	} {
		e.L.SetGlobal(name, e.L.NewFunction(fn))
	}
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.L.Close()
}

// RunString runs a Lua chunk.
func (e *Engine) RunString(src string) error {
	e.err = nil
	return e.wrap(e.L.DoString(src), "script")
}

// RunFile loads and runs a Lua file.
func (e *Engine) RunFile(filename string) error {
	e.err = nil
	return e.wrap(e.L.DoFile(filename), filename)
}

// Prefer the underlying Go error so that callers can match it with
// errors.Is. A recorded Go error is only used when it is the one that
// ended the script; one caught by pcall is ignored.
func (e *Engine) wrap(err error, name string) error {
	switch {
	case err == nil:
		return nil
	case e.err != nil && strings.Contains(err.Error(), e.err.Error()):
		return errors.Wrapf(e.err, "running %s", name)
	default:
		return errors.Wrapf(err, "running %s", name)
	}
}

// Record a Go error and raise it in Lua. RaiseError does not return.
func (e *Engine) raise(L *lua.LState, err error) int {
	e.err = err
	L.RaiseError("%v", err)
	return 0
}

func (e *Engine) poke(L *lua.LState) int {
	addr := L.CheckInt(1)
	v := L.CheckInt(2)
	if v < 0 || v > 0xff {
		L.ArgError(2, "byte value out of range")
	}
	if err := e.mem.StoreByte(addr, byte(v)); err != nil {
		return e.raise(L, err)
	}
	return 0
}

func (e *Engine) peek(L *lua.LState) int {
	v, err := e.mem.LoadByte(L.CheckInt(1))
	if err != nil {
		return e.raise(L, err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (e *Engine) reset(L *lua.LState) int {
	e.cpu.Reset()
	return 0
}

func (e *Engine) execute(L *lua.LState) int {
	n := L.CheckInt64(1)
	if n < 0 || n > math.MaxUint32 {
		L.ArgError(1, "cycle budget out of range")
	}
	before := e.cpu.Cycles
	if err := e.cpu.Execute(e.mem, uint32(n)); err != nil {
		return e.raise(L, err)
	}
	L.Push(lua.LNumber(e.cpu.Cycles - before))
	return 1
}

func (e *Engine) step(L *lua.LState) int {
	n, err := e.cpu.Step(e.mem)
	if err != nil {
		return e.raise(L, err)
	}
	L.Push(lua.LNumber(n))
	return 1
}

func (e *Engine) cycles(L *lua.LState) int {
	L.Push(lua.LNumber(e.cpu.Cycles))
	return 1
}

func (e *Engine) reg(L *lua.LState) int {
	name := strings.ToLower(L.CheckString(1))
	r := &e.cpu.Reg

	var size int
	var get func() int
	var set func(v int)
	switch name {
	case "a":
		size, get, set = 1, func() int { return int(r.A) }, func(v int) { r.A = byte(v) }
	case "x":
		size, get, set = 1, func() int { return int(r.X) }, func(v int) { r.X = byte(v) }
	case "y":
		size, get, set = 1, func() int { return int(r.Y) }, func(v int) { r.Y = byte(v) }
	case "ps":
		size, get, set = 1, func() int { return int(r.PS) }, func(v int) { r.PS = cpu.Status(v) }
	case "pc":
		size, get, set = 2, func() int { return int(r.PC) }, func(v int) { r.PC = uint16(v) }
	case "sp":
		size, get, set = 2, func() int { return int(r.SP) }, func(v int) { r.SP = uint16(v) }
	default:
		L.ArgError(1, fmt.Sprintf("unknown register '%s'", name))
		return 0
	}

	if L.GetTop() < 2 {
		L.Push(lua.LNumber(get()))
		return 1
	}

	v := L.CheckInt(2)
	if v < 0 || v >= 1<<(8*size) {
		L.ArgError(2, "register value out of range")
	}
	set(v)
	return 0
}

func (e *Engine) flag(L *lua.LState) int {
	name := L.CheckString(1)
	f, ok := cpu.FlagByName(name)
	if !ok {
		L.ArgError(1, fmt.Sprintf("unknown flag '%s'", name))
		return 0
	}

	if L.GetTop() < 2 {
		L.Push(lua.LBool(e.cpu.Reg.PS.Has(f)))
		return 1
	}
	e.cpu.Reg.PS.Set(f, L.CheckBool(2))
	return 0
}

func (e *Engine) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.Get(i).String()
	}
	fmt.Fprintln(e.out, strings.Join(parts, "\t"))
	return 0
}
