// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package bitstream implements a bit-addressable, seekable read/write buffer.
// Bits are stored MSB first: bit 0 of the stream is the most significant bit of byte 0.
// All positions and lengths are in bits.
package bitstream

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/exp/constraints"
)

var ErrShortBuffer = errors.New("bitstream: not enough bits")

type Buffer struct {
	data []byte
	bits int64
	pos  int64
}

func New() *Buffer {
	return &Buffer{}
}

// FromBytes returns a buffer positioned at bit 0 that takes ownership of data.
func FromBytes(data []byte) *Buffer {
	return &Buffer{data: data, bits: int64(len(data)) * 8}
}

// FromBits returns a buffer holding the first n bits of data.
func FromBits(data []byte, n int64) *Buffer {
	b := &Buffer{}
	b.WriteBitsFromBytes(data, n)
	b.pos = 0
	return b
}

func (b *Buffer) LengthBits() int64 {
	return b.bits
}

// Length returns the length in bytes, rounding a partial trailing byte up.
func (b *Buffer) Length() int64 {
	return (b.bits + 7) / 8
}

func (b *Buffer) TellBits() int64 {
	return b.pos
}

func (b *Buffer) Remaining() int64 {
	return b.bits - b.pos
}

// SetLengthBits truncates or zero-extends the buffer.
func (b *Buffer) SetLengthBits(n int64) {
	if n < 0 {
		panic(fmt.Sprintf("negative buffer length %v", n))
	}
	b.grow(n)
	if n < b.bits {
		// Clear the discarded bits so that a later extension reads zeroes.
		for i := n; i < b.bits && i%8 != 0; i++ {
			b.setBit(i, 0)
		}
		b.data = b.data[:(n+7)/8]
	}
	b.bits = n
	if b.pos > n {
		b.pos = n
	}
}

// SeekBits moves the cursor like io.Seeker, but in bits.
func (b *Buffer) SeekBits(off int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = off
	case io.SeekCurrent:
		pos = b.pos + off
	case io.SeekEnd:
		pos = b.bits + off
	default:
		return b.pos, fmt.Errorf("bitstream: bad whence %v", whence)
	}
	if pos < 0 || pos > b.bits {
		return b.pos, fmt.Errorf("bitstream: seek to %v outside of [0, %v]", pos, b.bits)
	}
	b.pos = pos
	return pos, nil
}

// ReadBits reads n <= 64 bits and returns them right-aligned.
func (b *Buffer) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		panic(fmt.Sprintf("bad bit count %v", n))
	}
	if int64(n) > b.Remaining() {
		return 0, fmt.Errorf("%w: want %v, have %v", ErrShortBuffer, n, b.Remaining())
	}
	var v uint64
	if b.pos%8 == 0 && n%8 == 0 {
		start := b.pos / 8
		for _, c := range b.data[start : start+int64(n/8)] {
			v = v<<8 | uint64(c)
		}
	} else {
		for i := 0; i < n; i++ {
			v = v<<1 | uint64(b.bit(b.pos+int64(i)))
		}
	}
	b.pos += int64(n)
	return v, nil
}

// WriteBits writes the low n <= 64 bits of v at the cursor, extending the buffer if needed.
func (b *Buffer) WriteBits(v uint64, n int) {
	if n < 0 || n > 64 {
		panic(fmt.Sprintf("bad bit count %v", n))
	}
	end := b.pos + int64(n)
	b.grow(end)
	for i := 0; i < n; i++ {
		b.setBit(b.pos+int64(i), byte(v>>(n-1-i))&1)
	}
	b.pos = end
	if end > b.bits {
		b.bits = end
	}
}

// ReadBitsToBytes reads n bits packed MSB first. A partial last byte is left aligned.
func (b *Buffer) ReadBitsToBytes(n int64) ([]byte, error) {
	if n > b.Remaining() {
		return nil, fmt.Errorf("%w: want %v, have %v", ErrShortBuffer, n, b.Remaining())
	}
	out := make([]byte, (n+7)/8)
	if b.pos%8 == 0 {
		copy(out, b.data[b.pos/8:])
		if n%8 != 0 {
			out[len(out)-1] &= ^byte(0) << (8 - n%8)
		}
	} else {
		for i := int64(0); i < n; i++ {
			out[i/8] |= b.bit(b.pos+i) << (7 - i%8)
		}
	}
	b.pos += n
	return out, nil
}

// WriteBitsFromBytes writes the first n bits of p at the cursor.
func (b *Buffer) WriteBitsFromBytes(p []byte, n int64) {
	if n > int64(len(p))*8 {
		panic(fmt.Sprintf("writing %v bits from %v bytes", n, len(p)))
	}
	end := b.pos + n
	b.grow(end)
	if b.pos%8 == 0 && n%8 == 0 {
		copy(b.data[b.pos/8:], p[:n/8])
	} else {
		for i := int64(0); i < n; i++ {
			b.setBit(b.pos+i, (p[i/8]>>(7-i%8))&1)
		}
	}
	b.pos = end
	if end > b.bits {
		b.bits = end
	}
}

func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	return b.ReadBitsToBytes(int64(n) * 8)
}

func (b *Buffer) WriteBytes(p []byte) {
	b.WriteBitsFromBytes(p, int64(len(p))*8)
}

// ReadUint reads an unsigned integer of the given width.
// Little endian applies only to widths that are a multiple of 8.
func (b *Buffer) ReadUint(bits int, bigEndian bool) (uint64, error) {
	v, err := b.ReadBits(bits)
	if err != nil {
		return 0, err
	}
	if !bigEndian && bits%8 == 0 {
		v = swap(v, bits)
	}
	return v, nil
}

func (b *Buffer) WriteUint(v uint64, bits int, bigEndian bool) {
	if bits < 64 {
		v &= 1<<bits - 1
	}
	if !bigEndian && bits%8 == 0 {
		v = swap(v, bits)
	}
	b.WriteBits(v, bits)
}

// ReadInt reads a fixed-width integer of type T, sign-extending signed types.
func ReadInt[T constraints.Integer](b *Buffer, bigEndian bool) (T, error) {
	var zero T
	bits := int(unsafe.Sizeof(zero)) * 8
	v, err := b.ReadUint(bits, bigEndian)
	if err != nil {
		return zero, err
	}
	return T(v), nil
}

func WriteInt[T constraints.Integer](b *Buffer, v T, bigEndian bool) {
	bits := int(unsafe.Sizeof(v)) * 8
	b.WriteUint(uint64(v), bits, bigEndian)
}

// Append writes all bits of o at the cursor.
func (b *Buffer) Append(o *Buffer) {
	if o == nil || o.bits == 0 {
		return
	}
	b.WriteBitsFromBytes(o.data, o.bits)
}

// Slice copies n bits starting at start into a new buffer; the cursor is unchanged.
func (b *Buffer) Slice(start, n int64) (*Buffer, error) {
	if start < 0 || n < 0 || start+n > b.bits {
		return nil, fmt.Errorf("%w: slice [%v, %v) of %v bits", ErrShortBuffer, start, start+n, b.bits)
	}
	saved := b.pos
	b.pos = start
	data, err := b.ReadBitsToBytes(n)
	b.pos = saved
	if err != nil {
		return nil, err
	}
	return &Buffer{data: data, bits: n}, nil
}

// Bytes returns a copy of the content; a partial last byte is zero padded.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.Length())
	copy(out, b.data)
	return out
}

func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	return &Buffer{data: b.Bytes(), bits: b.bits, pos: b.pos}
}

func (b *Buffer) Equal(o *Buffer) bool {
	if b.LengthBits() != o.LengthBits() {
		return false
	}
	return bytes.Equal(b.Bytes(), o.Bytes())
}

// IndexBytes returns the first bit position >= from, stepping by whole bytes,
// at which pattern occurs, or -1.
func (b *Buffer) IndexBytes(pattern []byte, from int64) int64 {
	need := int64(len(pattern)) * 8
	if need == 0 {
		return from
	}
	saved := b.pos
	defer func() { b.pos = saved }()
	for pos := from; pos+need <= b.bits; pos += 8 {
		b.pos = pos
		got, _ := b.ReadBitsToBytes(need)
		if bytes.Equal(got, pattern) {
			return pos
		}
	}
	return -1
}

func (b *Buffer) String() string {
	if b.bits%8 == 0 {
		return hex.EncodeToString(b.Bytes())
	}
	return fmt.Sprintf("%v (%v bits)", hex.EncodeToString(b.Bytes()), b.bits)
}

func (b *Buffer) bit(pos int64) byte {
	return (b.data[pos/8] >> (7 - pos%8)) & 1
}

func (b *Buffer) setBit(pos int64, v byte) {
	shift := 7 - pos%8
	b.data[pos/8] = b.data[pos/8]&^(1<<shift) | v<<shift
}

func (b *Buffer) grow(bits int64) {
	need := int((bits + 7) / 8)
	if need > len(b.data) {
		if need <= cap(b.data) {
			old := len(b.data)
			b.data = b.data[:need]
			clear(b.data[old:])
		} else {
			data := make([]byte, need, 2*need)
			copy(data, b.data)
			b.data = data
		}
	}
}

func swap(v uint64, bits int) uint64 {
	var r uint64
	for i := 0; i < bits/8; i++ {
		r = r<<8 | v&0xff
		v >>= 8
	}
	return r
}
