// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryByte(t *testing.T) {
	m := NewMemory()
	for _, addr := range []int{0, 0x1234, 0xffff} {
		require.NoError(t, m.StoreByte(addr, 0xa5))
		v, err := m.LoadByte(addr)
		require.NoError(t, err)
		assert.Equal(t, byte(0xa5), v)
	}
}

func TestMemoryWord(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.StoreWord(0x2000, 0x1234))
	assert.Equal(t, byte(0x34), m.b[0x2000])
	assert.Equal(t, byte(0x12), m.b[0x2001])

	v, err := m.LoadWord(0x2000)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
}

func TestMemoryWordRoundTrip(t *testing.T) {
	m := NewMemory()
	for a := 0; a <= 0xfffe; a++ {
		w := uint16(a*31 + 7)
		require.NoError(t, m.StoreWord(a, w))
		v, err := m.LoadWord(a)
		require.NoError(t, err)
		if v != w {
			t.Fatalf("LoadWord($%04X) = $%04X, want $%04X", a, v, w)
		}
	}
}

func TestMemoryWordWraps(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.StoreWord(0xffff, 0xbeef))
	assert.Equal(t, byte(0xef), m.b[0xffff])
	assert.Equal(t, byte(0xbe), m.b[0x0000])

	v, err := m.LoadWord(0xffff)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), v)
}

func TestMemoryOutOfRange(t *testing.T) {
	m := NewMemory()
	for _, addr := range []int{-1, MemorySize, 0x7fffffff} {
		_, err := m.LoadByte(addr)
		assert.True(t, errors.Is(err, ErrAddressOutOfRange), "LoadByte(%d)", addr)
		err = m.StoreByte(addr, 1)
		assert.True(t, errors.Is(err, ErrAddressOutOfRange), "StoreByte(%d)", addr)
		_, err = m.LoadWord(addr)
		assert.True(t, errors.Is(err, ErrAddressOutOfRange), "LoadWord(%d)", addr)
		err = m.StoreWord(addr, 1)
		assert.True(t, errors.Is(err, ErrAddressOutOfRange), "StoreWord(%d)", addr)
	}
	assert.Equal(t, [MemorySize]byte{}, m.b)
}

func TestMemoryBytes(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.StoreBytes(0xfffd, []byte{1, 2, 3}))

	b := make([]byte, 3)
	require.NoError(t, m.LoadBytes(0xfffd, b))
	assert.Equal(t, []byte{1, 2, 3}, b)

	err := m.StoreBytes(0xfffe, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrAddressOutOfRange))
	assert.True(t, errors.Is(m.LoadBytes(0xffff, b), ErrAddressOutOfRange))
	assert.NoError(t, m.StoreBytes(0xffff, nil))
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.StoreByte(0x10, 1))
	m.Clear()
	v, err := m.LoadByte(0x10)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestOffsetZeroPage(t *testing.T) {
	assert.Equal(t, byte(0x8f), offsetZeroPage(0x80, 0x0f))
	assert.Equal(t, byte(0x7f), offsetZeroPage(0x80, 0xff))
}
