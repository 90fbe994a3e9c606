// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "github.com/pkg/errors"

// MemorySize is the number of bytes addressable by the CPU.
const MemorySize = 64 * 1024

// Errors
var (
	ErrAddressOutOfRange = errors.New("memory address out of range")
)

// Memory represents an entire 16-bit address space as a singular 64K
// buffer. The caller owns it; the CPU only borrows it for the duration of
// a call to Execute or Step.
//
// Addresses are plain ints so that callers can express (and be refused)
// addresses outside the 16-bit space.
type Memory struct {
	b [MemorySize]byte
}

// NewMemory creates a new, zero-filled 16-bit memory space.
func NewMemory() *Memory {
	return &Memory{}
}

func checkAddress(addr int) error {
	if addr < 0 || addr >= MemorySize {
		return errors.Wrapf(ErrAddressOutOfRange, "address $%X", addr)
	}
	return nil
}

// LoadByte loads a single byte from the address and returns it.
func (m *Memory) LoadByte(addr int) (byte, error) {
	if err := checkAddress(addr); err != nil {
		return 0, err
	}
	return m.b[addr], nil
}

// StoreByte stores a byte at the requested address.
func (m *Memory) StoreByte(addr int, v byte) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	m.b[addr] = v
	return nil
}

// LoadWord loads a little-endian 16-bit value from the requested address.
//
// The high byte is read from the following address. When addr is $FFFF
// the high byte wraps around to $0000.
func (m *Memory) LoadWord(addr int) (uint16, error) {
	if err := checkAddress(addr); err != nil {
		return 0, err
	}
	lo := m.b[addr]
	hi := m.b[(addr+1)&0xffff]
	return uint16(lo) | uint16(hi)<<8, nil
}

// StoreWord stores a little-endian 16-bit value at the requested address,
// wrapping the high byte to $0000 when addr is $FFFF.
func (m *Memory) StoreWord(addr int, v uint16) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	m.b[addr] = byte(v)
	m.b[(addr+1)&0xffff] = byte(v >> 8)
	return nil
}

// LoadBytes loads len(b) bytes starting at addr into the buffer 'b'.
func (m *Memory) LoadBytes(addr int, b []byte) error {
	if err := checkSpan(addr, len(b)); err != nil {
		return err
	}
	copy(b, m.b[addr:])
	return nil
}

// StoreBytes stores the contents of 'b' starting at addr.
func (m *Memory) StoreBytes(addr int, b []byte) error {
	if err := checkSpan(addr, len(b)); err != nil {
		return err
	}
	copy(m.b[addr:], b)
	return nil
}

// Clear zeroes the entire address space.
func (m *Memory) Clear() {
	m.b = [MemorySize]byte{}
}

func checkSpan(addr, n int) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	if n > 0 {
		return checkAddress(addr + n - 1)
	}
	return nil
}

// Offset a zero-page address 'addr' by 'offset'. The result never leaves
// the zero page.
func offsetZeroPage(addr byte, offset byte) byte {
	return addr + offset
}
