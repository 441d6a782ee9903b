// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/google/syzformat/pkg/bitstream"
)

// Flags is a fixed-width register split into Flag fields.
// Flag positions count from the most significant bit of the register.
type Flags struct {
	ElementCommon
	Bits      int
	BigEndian bool

	flags []*Flag
}

type Flag struct {
	ElementCommon
	Position int
	Bits     int

	val uint64
}

func NewFlags(name string, bits int, flags ...*Flag) *Flags {
	f := &Flags{
		ElementCommon: newCommon(name),
		Bits:          bits,
	}
	for _, flag := range flags {
		f.Add(flag)
	}
	return f
}

func NewFlag(name string, position, bits int) *Flag {
	return &Flag{
		ElementCommon: newCommon(name),
		Position:      position,
		Bits:          bits,
	}
}

func (f *Flags) Add(flag *Flag) {
	f.flags = append(f.flags, flag)
	setParent(flag, f)
	f.restructure()
}

func (f *Flags) Fields() []*Flag {
	return append([]*Flag{}, f.flags...)
}

func (f *Flags) FullName() string { return fullName(f) }

func (f *Flags) Value() (*bitstream.Buffer, error) { return elementValue(f) }

func (f *Flags) InternalValue() any { return int64(f.register()) }

func (f *Flags) register() uint64 {
	var v uint64
	for _, flag := range f.flags {
		shift := uint(f.Bits - flag.Position - flag.Bits)
		v |= (flag.val & mask(flag.Bits)) << shift
	}
	return v
}

func (f *Flags) setRegister(v uint64) bool {
	changed := false
	for _, flag := range f.flags {
		shift := uint(f.Bits - flag.Position - flag.Bits)
		val := v >> shift & mask(flag.Bits)
		if val != flag.val {
			changed = true
		}
		flag.val = val
	}
	return changed
}

// SetValue sets all fields from a register value.
func (f *Flags) SetValue(v any) error {
	if _, err := f.setInternal(v); err != nil {
		return err
	}
	f.invalidate()
	return nil
}

func (f *Flags) setInternal(v any) (bool, error) {
	x, err := toInt(v)
	if err != nil {
		return false, fmt.Errorf("%v: %w", describe(f), err)
	}
	if err := checkRange(x, f.Bits, false); err != nil {
		return false, fmt.Errorf("%v: %w", describe(f), err)
	}
	return f.setRegister(uint64(x)), nil
}

func (f *Flags) decode(buf *bitstream.Buffer, bits int64) error {
	if bits != int64(f.Bits) {
		return fmt.Errorf("reading %v bits into %v-bit flags", bits, f.Bits)
	}
	v, err := buf.ReadUint(f.Bits, f.BigEndian)
	if err != nil {
		return err
	}
	f.setRegister(v)
	return nil
}

func (f *Flags) encode() (*bitstream.Buffer, error) {
	b := bitstream.New()
	b.WriteUint(f.register(), f.Bits, f.BigEndian)
	return b, nil
}

func (f *Flags) fixedBits() (int64, bool) {
	return int64(f.Bits), true
}

func (f *Flags) validate() error {
	if f.Bits < 1 || f.Bits > 64 {
		return configErrorf(f, "bad width %v", f.Bits)
	}
	for i, a := range f.flags {
		if a.Bits < 1 || a.Position < 0 || a.Position+a.Bits > f.Bits {
			return configErrorf(a, "flag at bit %v with width %v does not fit into %v bits",
				a.Position, a.Bits, f.Bits)
		}
		for _, b := range f.flags[:i] {
			if a.Position < b.Position+b.Bits && b.Position < a.Position+a.Bits {
				return configErrorf(a, "overlaps with %v", describe(b))
			}
		}
	}
	return nil
}

func (f *Flag) FullName() string { return fullName(f) }

func (f *Flag) Value() (*bitstream.Buffer, error) { return elementValue(f) }

func (f *Flag) InternalValue() any { return int64(f.val) }

func (f *Flag) SetValue(v any) error {
	if _, err := f.setInternal(v); err != nil {
		return err
	}
	f.invalidate()
	return nil
}

func (f *Flag) setInternal(v any) (bool, error) {
	x, err := toInt(v)
	if err != nil {
		return false, fmt.Errorf("%v: %w", describe(f), err)
	}
	if err := checkRange(x, f.Bits, false); err != nil {
		return false, fmt.Errorf("%v: %w", describe(f), err)
	}
	changed := uint64(x) != f.val
	f.val = uint64(x)
	return changed, nil
}

func (f *Flag) decode(buf *bitstream.Buffer, bits int64) error {
	v, err := buf.ReadBits(int(bits))
	if err != nil {
		return err
	}
	f.val = v
	return nil
}

func (f *Flag) encode() (*bitstream.Buffer, error) {
	b := bitstream.New()
	b.WriteBits(f.val, f.Bits)
	return b, nil
}

func (f *Flag) fixedBits() (int64, bool) {
	return int64(f.Bits), true
}
