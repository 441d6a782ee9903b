// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strconv"

	"github.com/google/syzformat/pkg/bitstream"
)

// Number is an integer of 1 to 64 bits.
// Widths that are not a multiple of 8 are always written MSB first.
type Number struct {
	ElementCommon
	Bits      int
	Signed    bool
	BigEndian bool

	val uint64
}

func NewNumber(name string, bits int) *Number {
	return &Number{
		ElementCommon: newCommon(name),
		Bits:          bits,
	}
}

func (n *Number) FullName() string { return fullName(n) }

func (n *Number) Value() (*bitstream.Buffer, error) { return elementValue(n) }

func (n *Number) InternalValue() any { return n.Int() }

// Int returns the value, sign-extended for signed numbers.
func (n *Number) Int() int64 {
	return extend(n.val, n.Bits, n.Signed)
}

func (n *Number) Uint() uint64 {
	return n.val
}

// SetValue accepts Go integers and decimal or 0x-prefixed strings.
func (n *Number) SetValue(v any) error {
	if _, err := n.setInternal(v); err != nil {
		return err
	}
	n.invalidate()
	return nil
}

func (n *Number) setInternal(v any) (bool, error) {
	x, err := toInt(v)
	if err != nil {
		return false, fmt.Errorf("%v: %w", describe(n), err)
	}
	if err := checkRange(x, n.Bits, n.Signed); err != nil {
		return false, fmt.Errorf("%v: %w", describe(n), err)
	}
	val := uint64(x) & mask(n.Bits)
	changed := val != n.val
	n.val = val
	return changed, nil
}

func (n *Number) decode(buf *bitstream.Buffer, bits int64) error {
	if bits != int64(n.Bits) {
		return fmt.Errorf("reading %v bits into %v-bit number", bits, n.Bits)
	}
	v, err := buf.ReadUint(n.Bits, n.BigEndian)
	if err != nil {
		return err
	}
	n.val = v
	return nil
}

func (n *Number) encode() (*bitstream.Buffer, error) {
	b := bitstream.New()
	b.WriteUint(n.val, n.Bits, n.BigEndian)
	return b, nil
}

func (n *Number) fixedBits() (int64, bool) {
	return int64(n.Bits), true
}

func mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(bits) - 1
}

func extend(v uint64, bits int, signed bool) int64 {
	if !signed || bits >= 64 {
		return int64(v)
	}
	shift := uint(64 - bits)
	return int64(v<<shift) >> shift
}

func checkRange(v int64, bits int, signed bool) error {
	if bits >= 64 {
		return nil
	}
	if signed {
		lo, hi := -(int64(1) << uint(bits-1)), int64(1)<<uint(bits-1)-1
		if v < lo || v > hi {
			return fmt.Errorf("value %v does not fit into signed %v bits", v, bits)
		}
		return nil
	}
	if v < 0 || uint64(v) > mask(bits) {
		return fmt.Errorf("value %v does not fit into unsigned %v bits", v, bits)
	}
	return nil
}

func toInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		x, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(v, 0, 64)
			if uerr != nil {
				return 0, fmt.Errorf("bad number %q", v)
			}
			x = int64(u)
		}
		return x, nil
	case []byte:
		return toInt(string(v))
	}
	return 0, fmt.Errorf("can't convert %T to a number", v)
}
