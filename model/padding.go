// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"github.com/google/syzformat/pkg/bitstream"
)

// Padding fills up to the next multiple of Alignment bits, measured from the
// start of AlignedTo or of the parent container.
type Padding struct {
	ElementCommon
	Alignment int64
	AlignedTo string

	alignedTo Element
	// Bits seen by the last crack, re-emitted while the padding width is unchanged.
	val *bitstream.Buffer
}

func NewPadding(name string, alignment int64) *Padding {
	return &Padding{
		ElementCommon: newCommon(name),
		Alignment:     alignment,
	}
}

func (p *Padding) FullName() string { return fullName(p) }

func (p *Padding) Value() (*bitstream.Buffer, error) { return elementValue(p) }

func (p *Padding) InternalValue() any { return generatedBytes(p) }

func (p *Padding) anchor() Element {
	if p.alignedTo != nil {
		return p.alignedTo
	}
	return p.parent
}

// padBits returns the padding width for an element placed at pos
// when the anchor starts at anchorPos.
func (p *Padding) padBits(pos, anchorPos int64) int64 {
	align := p.Alignment
	if align <= 0 {
		align = 8
	}
	off := pos - anchorPos
	return ((align - off%align) % align)
}

func (p *Padding) render(bits int64) *bitstream.Buffer {
	if p.val != nil && p.val.LengthBits() == bits {
		return p.val.Clone()
	}
	b := bitstream.New()
	b.SetLengthBits(bits)
	return b
}
