// Copyright 2018 Brett Vickers.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host allows you to create a "host" that emulates a computer system
// with a 6502 CPU subset, 64K of memory, a line assembler, a debugger and a
// Lua scripting harness.
//
// Within the host it is possible to store bytes in memory, reset the CPU,
// execute with a cycle budget, step through machine code, set address and
// data breakpoints, dump and disassemble memory, evaluate expressions, and
// inspect or change the CPU registers and status flags.
package host

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beevik/cmd"
	"github.com/beevik/lite6502/asm"
	"github.com/beevik/lite6502/cpu"
	"github.com/beevik/lite6502/disasm"
	"github.com/beevik/lite6502/expr"
	"github.com/beevik/lite6502/script"
	"github.com/pkg/errors"
)

// ErrQuit is returned by the quit command to end command processing.
var ErrQuit = errors.New("exiting program")

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displayCycles

	displayAll = displayRegisters | displayCycles
)

type state int32

const (
	stateProcessingCommands state = iota
	stateRunning
	stateBreakpoint
	stateInterrupted
)

// A Host represents a fully emulated 6502 system: a CPU, 64K of memory,
// a line assembler and a debugger.
type Host struct {
	input       *bufio.Scanner
	output      *syncWriter
	interactive atomic.Bool
	mem         *cpu.Memory
	cpu         *cpu.CPU
	debugger    *cpu.Debugger
	lastCmd     *selection
	state       atomic.Int32
	settings    *settings
}

// A syncWriter serializes output from the command loop and from Break,
// which may run on another goroutine. Every write is flushed.
type syncWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(p)
	if err == nil {
		err = s.w.Flush()
	}
	return n, err
}

func (s *syncWriter) reset(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	s.w = bufio.NewWriter(w)
}

// New creates a new 6502 host environment.
func New() *Host {
	h := &Host{
		settings: newSettings(),
		output:   &syncWriter{w: bufio.NewWriter(os.Stdout)},
	}

	// Create the emulated CPU and memory.
	h.mem = cpu.NewMemory()
	h.cpu = cpu.NewCPU()

	// Create a CPU debugger and attach it to the CPU.
	handler := newDebugHandler(h)
	h.debugger = cpu.NewDebugger(handler)
	h.cpu.AttachDebugger(h.debugger)
	h.cpu.AttachInvalidOpcodeHandler(handler)

	return h
}

// CPU returns the host's emulated CPU.
func (h *Host) CPU() *cpu.CPU {
	return h.cpu
}

// Memory returns the host's emulated memory.
func (h *Host) Memory() *cpu.Memory {
	return h.mem
}

// Demo stores LDA #$42 at the reset vector, resets the CPU and executes
// it with a budget of 2 cycles.
func Demo(c *cpu.CPU, mem *cpu.Memory) error {
	program := []byte{byte(cpu.LDAImmediate), 0x42}
	if err := mem.StoreBytes(cpu.ResetVector, program); err != nil {
		return err
	}
	c.Reset()
	return c.Execute(mem, 2)
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the next command to be entered. It returns nil when
// the input is exhausted or the quit command is issued.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) error {
	h.input = bufio.NewScanner(r)
	h.output.reset(w)
	h.interactive.Store(interactive)

	if interactive {
		h.println()
	}

	h.displayPC()

	for {
		h.prompt()

		line, err := h.getLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading commands")
		}

		var c selection
		if line = strings.TrimSpace(line); line != "" {
			n, args, err := cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}

			switch n := n.(type) {
			case *cmd.Command:
				c = selection{command: n, args: args}
			case *cmd.Tree:
				n.DisplayHelp(h.output)
				continue
			}
		} else if h.lastCmd != nil {
			c = *h.lastCmd
		}

		if c.command == nil {
			continue
		}
		h.lastCmd = &c

		handler := c.command.Data.(func(*Host, selection) error)
		err = handler(h, c)
		if err == ErrQuit {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Break interrupts a running CPU. It may be called from any goroutine,
// typically a signal handler. When the CPU is not running it displays a
// fresh prompt.
func (h *Host) Break() {
	if h.state.CompareAndSwap(int32(stateRunning), int32(stateInterrupted)) {
		h.cpu.Halt()
		return
	}

	h.println()
	h.prompt()
}

func (h *Host) getState() state {
	return state(h.state.Load())
}

func (h *Host) setState(s state) {
	h.state.Store(int32(s))
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return h.input.Text(), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive.Load() {
		h.printf("* ")
	}
}

func (h *Host) displayPC() {
	if h.interactive.Load() {
		d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
		h.println(d)
	}
}

func (h *Host) cmdAssemble(c selection) error {
	if len(c.args) < 2 {
		h.displayHelpText(c)
		return nil
	}

	addr, err := h.parseAddr(c.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	a, err := asm.AssembleString(strings.Join(c.args[1:], " "), addr)
	if err != nil {
		for _, e := range a.Errors {
			h.println(e)
		}
		return nil
	}
	if err := a.Load(h.mem); err != nil {
		h.printf("%v\n", err)
		return nil
	}

	for next := addr; int(next) < int(addr)+len(a.Code); {
		var d string
		d, next = h.disassemble(next, 0)
		h.println(d)
		if next < addr {
			break
		}
	}
	h.settings.NextDisasmAddr = a.Origin + uint16(len(a.Code))
	return nil
}

func (h *Host) cmdBreakpointList(c selection) error {
	h.println("Addr  Enabled")
	h.println("----- -------")
	for _, b := range h.debugger.GetBreakpoints() {
		h.printf("$%04X %v\n", b.Address, !b.Disabled)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c selection) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	h.debugger.AddBreakpoint(addr)
	h.printf("Breakpoint added at $%04X.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointRemove(c selection) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetBreakpoint(addr) == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return nil
	}

	h.debugger.RemoveBreakpoint(addr)
	h.printf("Breakpoint at $%04X removed.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointEnable(c selection) error {
	return h.enableBreakpoint(c, true)
}

func (h *Host) cmdBreakpointDisable(c selection) error {
	return h.enableBreakpoint(c, false)
}

func (h *Host) enableBreakpoint(c selection, enable bool) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return nil
	}

	b.Disabled = !enable
	h.printf("Breakpoint at $%04X %s.\n", addr, enabledString(enable))
	return nil
}

func (h *Host) cmdCompile(c selection) error {
	if len(c.args) < 2 {
		h.displayHelpText(c)
		return nil
	}

	if err := h.compile(c.args[0], c.args[1]); err != nil {
		h.printf("%v\n", err)
	}
	return nil
}

func (h *Host) cmdDataBreakpointList(c selection) error {
	h.println("Addr  Enabled  Value")
	h.println("----- -------  -----")
	for _, b := range h.debugger.GetDataBreakpoints() {
		if b.Conditional {
			h.printf("$%04X %-5v    $%02X\n", b.Address, !b.Disabled, b.Value)
		} else {
			h.printf("$%04X %-5v    <none>\n", b.Address, !b.Disabled)
		}
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(c selection) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	if len(c.args) > 1 {
		value, err := h.parseByte(c.args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.AddConditionalDataBreakpoint(addr, value)
		h.printf("Conditional data breakpoint added at $%04X for value $%02X.\n", addr, value)
	} else {
		h.debugger.AddDataBreakpoint(addr)
		h.printf("Data breakpoint added at $%04X.\n", addr)
	}
	return nil
}

func (h *Host) cmdDataBreakpointRemove(c selection) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetDataBreakpoint(addr) == nil {
		h.printf("No data breakpoint was set on $%04X.\n", addr)
		return nil
	}

	h.debugger.RemoveDataBreakpoint(addr)
	h.printf("Data breakpoint at $%04X removed.\n", addr)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c selection) error {
	return h.enableDataBreakpoint(c, true)
}

func (h *Host) cmdDataBreakpointDisable(c selection) error {
	return h.enableDataBreakpoint(c, false)
}

func (h *Host) enableDataBreakpoint(c selection, enable bool) error {
	addr, ok := h.addrArg(c)
	if !ok {
		return nil
	}

	b := h.debugger.GetDataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on $%04X.\n", addr)
		return nil
	}

	b.Disabled = !enable
	h.printf("Data breakpoint at $%04X %s.\n", addr, enabledString(enable))
	return nil
}

func (h *Host) cmdDemo(c selection) error {
	if err := Demo(h.cpu, h.mem); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.println("Stored LDA #$42 at $FFFC, reset and executed 2 cycles.")
	h.println(disasm.RegisterString(&h.cpu.Reg))
	return nil
}

func (h *Host) cmdDisassemble(c selection) error {
	if len(c.args) == 0 {
		c.args = []string{"$"}
	}

	var addr uint16
	switch c.args[0] {
	case "$":
		addr = h.settings.NextDisasmAddr
		if addr == 0 {
			addr = h.cpu.Reg.PC
		}
	default:
		a, err := h.parseAddr(c.args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.args) > 1 {
		l, err := h.parseCount(c.args[1], cpu.MemorySize)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = l
	}

	for i := 0; i < lines; i++ {
		d, next := h.disassemble(addr, 0)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.args = []string{"$", fmt.Sprintf("0d%d", lines)}
	return nil
}

func (h *Host) cmdEvaluate(c selection) error {
	if len(c.args) < 1 {
		h.displayHelpText(c)
		return nil
	}

	v, err := h.eval(strings.Join(c.args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	switch {
	case v >= -0x8000 && v <= 0xffff:
		h.printf("$%04X (%d)\n", uint16(v), v)
	default:
		h.printf("%d\n", v)
	}
	return nil
}

func (h *Host) cmdExecute(c selection) error {
	if len(c.args) < 1 {
		h.displayHelpText(c)
		return nil
	}

	cycles, err := h.parseCount(c.args[0], math.MaxUint32)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	before := h.cpu.Cycles
	err = h.cpu.Execute(h.mem, uint32(cycles))
	h.printf("Executed %d cycles.\n", h.cpu.Cycles-before)
	if err != nil {
		h.printf("ERROR: %v.\n", err)
	}
	d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
	h.println(d)

	h.settings.NextDisasmAddr = h.cpu.Reg.PC
	return nil
}

func (h *Host) cmdHelp(c selection) error {
	if err := cmds.GetHelp(h.output, c.args); err != nil {
		h.printf("%v.\n", err)
	}
	return nil
}

func (h *Host) cmdLoad(c selection) error {
	if len(c.args) < 1 {
		h.displayHelpText(c)
		return nil
	}

	filename := c.args[0]
	loadAddr := -1
	if len(c.args) >= 2 {
		addr, err := h.parseAddr(c.args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		loadAddr = int(addr)
	}

	if err := h.load(filename, loadAddr); err != nil {
		h.printf("%v\n", err)
	}
	return nil
}

func (h *Host) cmdMemoryCopy(c selection) error {
	if len(c.args) < 3 {
		h.displayHelpText(c)
		return nil
	}

	var addr [3]uint16
	for i := range addr {
		a, err := h.parseAddr(c.args[i])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr[i] = a
	}

	dst, begin, end := int(addr[0]), int(addr[1]), int(addr[2])
	if end < begin {
		h.printf("Source range $%04X..$%04X is empty.\n", begin, end)
		return nil
	}
	if dst+end-begin > 0xffff {
		h.println("Destination range overflows memory.")
		return nil
	}

	// Copy through a buffer so overlapping ranges are handled.
	b := make([]byte, end-begin+1)
	if err := h.mem.LoadBytes(begin, b); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	if err := h.mem.StoreBytes(dst, b); err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("Copied $%04X..$%04X to $%04X..$%04X.\n", begin, end, dst, dst+len(b)-1)
	return nil
}

func (h *Host) cmdMemoryDump(c selection) error {
	if len(c.args) == 0 {
		c.args = []string{"$"}
	}

	var addr uint16
	switch c.args[0] {
	case "$":
		addr = h.settings.NextMemDumpAddr
	default:
		a, err := h.parseAddr(c.args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	bytes := h.settings.MemDumpBytes
	if len(c.args) >= 2 {
		var err error
		bytes, err = h.parseCount(c.args[1], cpu.MemorySize)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + uint16(bytes)
	h.lastCmd.args = []string{"$", fmt.Sprintf("0d%d", bytes)}
	return nil
}

func (h *Host) cmdMemorySet(c selection) error {
	if len(c.args) < 2 {
		h.displayHelpText(c)
		return nil
	}

	addr, err := h.parseAddr(c.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := make([]byte, 0, len(c.args)-1)
	for _, s := range c.args[1:] {
		v, err := h.parseByte(s)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		b = append(b, v)
	}

	if err := h.mem.StoreBytes(int(addr), b); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.printf("Stored %d byte(s) at $%04X.\n", len(b), addr)
	return nil
}

func (h *Host) cmdQuit(c selection) error {
	return ErrQuit
}

func (h *Host) cmdRegister(c selection) error {
	if len(c.args) == 0 {
		d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
		h.println(d)
		return nil
	}
	if len(c.args) < 2 {
		h.displayHelpText(c)
		return nil
	}

	key, value := strings.ToLower(c.args[0]), strings.Join(c.args[1:], " ")
	if err := h.setRegister(key, value); err != nil {
		h.printf("%v\n", err)
	}
	return nil
}

func (h *Host) setRegister(key, value string) error {
	reg := &h.cpu.Reg
	switch key {
	case "a", "x", "y":
		v, err := h.parseByte(value)
		if err != nil {
			return err
		}
		switch key {
		case "a":
			reg.A = v
		case "x":
			reg.X = v
		case "y":
			reg.Y = v
		}
		h.printf("Register %s set to $%02X.\n", strings.ToUpper(key), v)

	case "pc", "sp":
		v, err := h.parseAddr(value)
		if err != nil {
			return err
		}
		if key == "pc" {
			reg.PC = v
		} else {
			reg.SP = v
		}
		h.printf("Register %s set to $%04X.\n", strings.ToUpper(key), v)

	default:
		f, ok := cpu.FlagByName(key)
		if !ok {
			return errors.Errorf("register '%s' not found", key)
		}
		v, err := stringToBool(value)
		if err != nil {
			return err
		}
		reg.PS.Set(f, v)
		h.printf("Flag %s set to %v.\n", strings.ToUpper(key), v)
	}
	return nil
}

func (h *Host) cmdReset(c selection) error {
	h.cpu.Reset()
	h.settings.NextDisasmAddr = h.cpu.Reg.PC
	h.println("CPU reset.")
	h.displayPC()
	return nil
}

func (h *Host) cmdRun(c selection) error {
	if len(c.args) > 0 {
		pc, err := h.parseAddr(c.args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.cpu.SetPC(pc)
	}

	h.printf("Running from $%04X. Press ctrl-C to break.\n", h.cpu.Reg.PC)

	budget := uint32(max(h.settings.RunBudget, 1))
	h.setState(stateRunning)
	for h.getState() == stateRunning {
		if err := h.cpu.Execute(h.mem, budget); err != nil {
			h.printf("ERROR: %v.\n", err)
			break
		}
	}
	h.stopRunning()
	return nil
}

func (h *Host) cmdScript(c selection) error {
	if len(c.args) < 1 {
		h.displayHelpText(c)
		return nil
	}

	e := script.New(h.cpu, h.mem, h.output)
	defer e.Close()

	if err := e.RunFile(c.args[0]); err != nil {
		h.printf("Script '%s' failed: %v\n", filepath.Base(c.args[0]), err)
	}
	return nil
}

func (h *Host) cmdSet(c selection) error {
	switch len(c.args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		return nil
	case 1:
		h.displayHelpText(c)
		return nil
	}

	key, value := c.args[0], strings.Join(c.args[1:], " ")

	var err error
	switch h.settings.Kind(key) {
	case reflect.Invalid:
		err = errors.Errorf("setting '%s' not found", key)
	case reflect.Bool:
		var v bool
		if v, err = stringToBool(value); err == nil {
			err = h.settings.Set(key, v)
		}
	default:
		var v int
		if v, err = h.parseCount(value, math.MaxInt32); err == nil {
			err = h.settings.Set(key, v)
		}
	}

	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.println("Setting updated.")
	return nil
}

func (h *Host) cmdStep(c selection) error {
	count := 1
	if len(c.args) > 0 {
		n, err := h.parseCount(c.args[0], math.MaxInt32)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		count = n
	}

	h.setState(stateRunning)
	for i := count - 1; i >= 0 && h.getState() == stateRunning; i-- {
		if _, err := h.cpu.Step(h.mem); err != nil {
			h.printf("ERROR: %v.\n", err)
			break
		}
		switch {
		case i == h.settings.StepLinesToDisplay:
			h.println("...")
		case i < h.settings.StepLinesToDisplay:
			d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
			h.println(d)
		}
	}
	h.stopRunning()
	return nil
}

// Return to command processing after run or step. An interrupt from Break
// is reported here, on the command goroutine.
func (h *Host) stopRunning() {
	if h.getState() == stateInterrupted {
		h.println()
		h.displayPC()
	}
	h.setState(stateProcessingCommands)
	h.settings.NextDisasmAddr = h.cpu.Reg.PC
}

// Load a file into memory and point the program counter at it. Source
// files (.asm) are assembled first; anything else is raw binary and
// requires a load address.
func (h *Host) load(filename string, addr int) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open '%s'", filepath.Base(filename))
	}
	defer file.Close()

	var a *asm.Assembly
	if strings.EqualFold(filepath.Ext(filename), ".asm") {
		a, err = asm.Assemble(file, filepath.Base(filename), uint16(max(addr, 0)))
		if err != nil {
			for _, e := range a.Errors {
				h.println(e)
			}
			return errors.Wrapf(err, "failed to assemble '%s'", filepath.Base(filename))
		}
	} else {
		if addr < 0 {
			return errors.Errorf("file '%s' requires a load address", filepath.Base(filename))
		}
		a = &asm.Assembly{Origin: uint16(addr)}
		if _, err := a.ReadFrom(file); err != nil {
			return errors.Wrapf(err, "failed to read '%s'", filepath.Base(filename))
		}
	}

	if err := a.Load(h.mem); err != nil {
		return errors.Wrapf(err, "failed to load '%s'", filepath.Base(filename))
	}
	h.printf("Loaded '%s' to $%04X..$%04X\n", filepath.Base(filename), a.Origin,
		int(a.Origin)+len(a.Code)-1)

	h.cpu.SetPC(a.Origin)
	h.settings.NextDisasmAddr = a.Origin
	return nil
}

// Assemble a source file and write its machine code to a binary file.
func (h *Host) compile(src, out string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open '%s'", filepath.Base(src))
	}
	defer in.Close()

	a, err := asm.Assemble(in, filepath.Base(src), 0)
	if err != nil {
		for _, e := range a.Errors {
			h.println(e)
		}
		return errors.Wrapf(err, "failed to assemble '%s'", filepath.Base(src))
	}

	file, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "failed to create '%s'", filepath.Base(out))
	}
	n, err := a.WriteTo(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write '%s'", filepath.Base(out))
	}

	h.printf("Assembled '%s' to '%s' (%d bytes, origin $%04X).\n",
		filepath.Base(src), filepath.Base(out), n, a.Origin)
	return nil
}

// Parse the first command argument as an address, displaying the
// command's help text if it is missing.
func (h *Host) addrArg(c selection) (uint16, bool) {
	if len(c.args) < 1 {
		h.displayHelpText(c)
		return 0, false
	}
	addr, err := h.parseAddr(c.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return 0, false
	}
	return addr, true
}

// Evaluate an expression argument. Unprefixed numbers are hexadecimal in
// hex mode.
func (h *Host) eval(s string) (int64, error) {
	p := expr.Parser{
		HexMode: h.settings.HexMode,
		Resolve: h.resolveIdentifier,
	}
	return p.Eval(s)
}

// Parse an address expression. Negative values wrap around the top of
// memory.
func (h *Host) parseAddr(s string) (uint16, error) {
	v, err := h.eval(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v += 0x10000
	}
	if v < 0 || v > 0xffff {
		return 0, errors.Errorf("address '%s' out of range", s)
	}
	return uint16(v), nil
}

func (h *Host) parseByte(s string) (byte, error) {
	v, err := h.eval(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v += 0x100
	}
	if v < 0 || v > 0xff {
		return 0, errors.Errorf("byte value '%s' out of range", s)
	}
	return byte(v), nil
}

// Parse a non-negative count no larger than 'limit'.
func (h *Host) parseCount(s string, limit int64) (int, error) {
	v, err := h.eval(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > limit {
		return 0, errors.Errorf("value '%s' out of range", s)
	}
	return int(v), nil
}

func (h *Host) resolveIdentifier(id string) (int64, error) {
	reg := &h.cpu.Reg
	switch strings.ToLower(id) {
	case "a":
		return int64(reg.A), nil
	case "x":
		return int64(reg.X), nil
	case "y":
		return int64(reg.Y), nil
	case "sp":
		return int64(reg.SP), nil
	case ".", "pc":
		return int64(reg.PC), nil
	}
	return 0, errors.Errorf("identifier '%s' not found", id)
}

func (h *Host) disassemble(addr uint16, flags displayFlags) (str string, next uint16) {
	var line string
	line, next = disasm.Disassemble(h.mem, addr)
	b := disasm.Bytes(h.mem, addr)

	str = fmt.Sprintf("%04X-   %-8s    %-15s", addr, codeString(b), line)

	if (flags & displayRegisters) != 0 {
		str += " " + disasm.RegisterString(&h.cpu.Reg)
	}

	if (flags & displayCycles) != 0 {
		str += fmt.Sprintf(" C=%d", h.cpu.Cycles)
	}

	return strings.TrimRight(str, " "), next
}

func (h *Host) dumpMemory(addr0 uint16, bytes int) {
	if bytes <= 0 {
		return
	}

	addr1 := int(addr0) + bytes - 1
	if addr1 > 0xffff {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-int(addr0) < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := int(addr0), 6, 32; a <= addr1; a, c1, c2 = a+1, c1+3, c2+1 {
			m, _ := h.mem.LoadByte(a)
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
		}
		h.println(strings.TrimRight(string(buf), " "))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := int(addr0) & 0xfff8
	stop := min((addr1+8)&0x1fff8, 0x10000)

	for r := start; r < stop; r += 8 {
		addrToBuf(uint16(r), buf[0:4])
		for a, c1, c2 := r, 6, 32; c1 < 29; a, c1, c2 = a+1, c1+3, c2+1 {
			if a >= int(addr0) && a <= addr1 {
				m, _ := h.mem.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
	}
}

func (h *Host) displayHelpText(c selection) {
	c.command.DisplayUsage(h.output)
}

func (h *Host) onBreakpoint(cpu *cpu.CPU, b *cpu.Breakpoint) {
	h.setState(stateBreakpoint)
	cpu.Halt()
	h.printf("Breakpoint hit at $%04X.\n", b.Address)
	h.displayPC()
}

func (h *Host) onDataBreakpoint(cpu *cpu.CPU, b *cpu.DataBreakpoint) {
	h.setState(stateBreakpoint)
	cpu.Halt()
	h.printf("Data breakpoint hit on address $%04X.\n", b.Address)

	if cpu.LastPC != cpu.Reg.PC {
		d, _ := h.disassemble(cpu.LastPC, displayAll)
		h.println(d)
	}
}

// Invalid opcodes stop run and step; execute reports them and carries on.
func (h *Host) onInvalidOpcode(cpu *cpu.CPU, addr uint16, value byte) {
	h.printf("Invalid opcode $%02X at $%04X.\n", value, addr)
	if h.state.CompareAndSwap(int32(stateRunning), int32(stateBreakpoint)) {
		cpu.Halt()
	}
}

func enabledString(enable bool) string {
	if enable {
		return "enabled"
	}
	return "disabled"
}
