// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"io"

	"github.com/google/syzformat/pkg/bitstream"
)

// Blob is an opaque run of bits.
type Blob struct {
	ElementCommon

	val *bitstream.Buffer
}

func NewBlob(name string) *Blob {
	return &Blob{
		ElementCommon: newCommon(name),
		val:           bitstream.New(),
	}
}

func (b *Blob) FullName() string { return fullName(b) }

func (b *Blob) Value() (*bitstream.Buffer, error) { return elementValue(b) }

func (b *Blob) InternalValue() any { return b.val.Bytes() }

// Data returns a copy of the current bits.
func (b *Blob) Data() *bitstream.Buffer {
	return b.val.Clone()
}

// SetValue accepts []byte, string or *bitstream.Buffer.
func (b *Blob) SetValue(v any) error {
	if _, err := b.setInternal(v); err != nil {
		return err
	}
	b.invalidate()
	return nil
}

func (b *Blob) setInternal(v any) (bool, error) {
	var val *bitstream.Buffer
	switch v := v.(type) {
	case []byte:
		val = bitstream.FromBytes(append([]byte{}, v...))
	case string:
		val = bitstream.FromBytes([]byte(v))
	case *bitstream.Buffer:
		val = v.Clone()
	default:
		return false, fmt.Errorf("%v: can't set value of type %T", describe(b), v)
	}
	changed := !val.Equal(b.val)
	b.val = val
	return changed, nil
}

func (b *Blob) decode(buf *bitstream.Buffer, bits int64) error {
	pos := buf.TellBits()
	val, err := buf.Slice(pos, bits)
	if err != nil {
		return err
	}
	if _, err := buf.SeekBits(pos+bits, io.SeekStart); err != nil {
		return err
	}
	b.val = val
	return nil
}

func (b *Blob) encode() (*bitstream.Buffer, error) {
	if b.Length < 0 {
		return b.val.Clone(), nil
	}
	res := b.val.Clone()
	res.SetLengthBits(b.Length)
	return res, nil
}

func (b *Blob) fixedBits() (int64, bool) {
	return b.Length, b.Length >= 0
}
