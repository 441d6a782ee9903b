// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"io"

	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/log"
)

// Generate serializes the model. Relations and fixups are re-evaluated until
// no value changes. The result is cached until the model is modified.
func (m *DataModel) Generate() (*bitstream.Buffer, error) {
	if !m.dirty && m.out != nil {
		return m.out.Clone(), nil
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	if !m.placed {
		if err := m.applyPlacement(); err != nil {
			return nil, err
		}
	}
	for iter := 0; ; iter++ {
		if iter == m.maxIterations() {
			return nil, configErrorf(m.root, "relations and fixups did not converge after %v iterations", iter)
		}
		out := bitstream.New()
		if err := render(m.root, out); err != nil {
			return nil, err
		}
		changed, err := m.resolve()
		if err != nil {
			return nil, err
		}
		if !changed {
			log.Logf(3, "%v: generated %v bits in %v passes", m.Name(), out.LengthBits(), iter+1)
			m.out = out
			m.dirty = false
			return out.Clone(), nil
		}
	}
}

// render appends the bits of e to out, recording positions and values of all active elements.
func render(e Element, out *bitstream.Buffer) error {
	c := e.common()
	if c.lead != nil {
		out.Append(c.lead)
	}
	c.pos = out.TellBits()
	var val *bitstream.Buffer
	var err error
	switch x := e.(type) {
	case *Padding:
		var anchorPos int64
		if anchor := x.anchor(); anchor != nil {
			anchorPos = anchor.common().pos
		}
		val = x.render(x.padBits(c.pos, anchorPos))
	case *Flags:
		if val, err = x.encode(); err != nil {
			return err
		}
		for _, f := range x.flags {
			fc := f.common()
			fc.pos = c.pos + int64(f.Position)
			if fc.value, err = f.encode(); err != nil {
				return err
			}
		}
	case Leaf:
		if val, err = x.encode(); err != nil {
			return fmt.Errorf("%v: %w", describe(e), err)
		}
	default:
		if ch, ok := e.(*Choice); ok {
			ch.selectDefault()
		}
		dst := out
		if c.Transformer != nil {
			dst = bitstream.New()
		}
		start := dst.TellBits()
		for _, child := range activeChildren(e) {
			if err := render(child, dst); err != nil {
				return err
			}
		}
		if val, err = dst.Slice(start, dst.TellBits()-start); err != nil {
			return err
		}
		if c.Transformer == nil {
			c.value = val
			return nil
		}
	}
	if c.Transformer != nil {
		if val, err = c.Transformer.Encode(val); err != nil {
			return fmt.Errorf("%v: %w", describe(e), err)
		}
	}
	c.value = val
	out.Append(val)
	return nil
}

// resolve recomputes relation sources and fixups from the last rendered tree.
// It reports whether any value changed.
func (m *DataModel) resolve() (bool, error) {
	changed := false
	assigned := make(map[Element]bool)
	for _, r := range m.rels {
		if assigned[r.from] || !r.live() {
			continue
		}
		assigned[r.from] = true
		measured := generatedMeasure(r)
		v, err := r.toFrom(measured)
		if err != nil {
			return false, configErrorf(r.from, "%v: %v", r, err)
		}
		ch, err := assign(r.from, v)
		if err != nil {
			return false, configErrorf(r.from, "%v: %v", r, err)
		}
		changed = changed || ch
	}
	var err error
	ForEach(m.root, func(e Element) {
		if err != nil || e.common().Fixup == nil {
			return
		}
		var ch bool
		ch, err = applyFixup(e)
		changed = changed || ch
	})
	return changed, err
}

func generatedMeasure(r *Relation) int64 {
	switch r.Kind {
	case Size:
		return valueBits(r.of) / r.unit()
	case Count:
		return int64(r.of.(*Array).Len())
	case Offset:
		return (r.of.common().pos - generatedAnchor(r)) / r.unit()
	}
	panic(fmt.Sprintf("unknown relation kind %v", r.Kind))
}

func generatedAnchor(r *Relation) int64 {
	switch {
	case !r.Relative:
		return 0
	case r.relativeTo != nil && (r.relativeTo == r.of || isAncestor(r.relativeTo, r.of)):
		return r.relativeTo.common().pos
	case r.relativeTo != nil:
		return r.relativeTo.common().pos + valueBits(r.relativeTo)
	case r.from.Parent() != nil:
		return r.from.Parent().common().pos
	}
	return 0
}

func valueBits(e Element) int64 {
	if v := e.common().value; v != nil {
		return v.LengthBits()
	}
	return 0
}

// assign stores a computed relation value, wrapping it to the width of the source.
func assign(e Element, v int64) (bool, error) {
	switch x := e.(type) {
	case *Number:
		return x.setInternal(extend(uint64(v)&mask(x.Bits), x.Bits, x.Signed))
	case *Flag:
		return x.setInternal(int64(uint64(v) & mask(x.Bits)))
	case *String:
		return x.setInternal(v)
	}
	return false, fmt.Errorf("%v can't hold a relation value", describe(e))
}

func applyFixup(e Element) (bool, error) {
	c := e.common()
	ref := c.fixupRef
	if ref == nil || !attached(ref) {
		return false, nil
	}
	data := ref.common().value.Clone()
	if data == nil {
		data = bitstream.New()
	}
	if ref == e || isAncestor(ref, e) {
		// The field does not take part in its own computation.
		if off := c.pos - ref.common().pos; off >= 0 && off+valueBits(e) <= data.LengthBits() {
			zero := bitstream.New()
			zero.SetLengthBits(valueBits(e))
			data.SeekBits(off, io.SeekStart)
			data.Append(zero)
		}
	}
	v, err := c.Fixup.Compute(ref, data)
	if err != nil {
		return false, configErrorf(e, "fixup: %v", err)
	}
	var ch bool
	switch e.(type) {
	case *Number, *Flag:
		var iv int64
		if iv, err = toInt(v); err == nil {
			ch, err = assign(e, iv)
		}
	default:
		ch, err = e.(Leaf).setInternal(v)
	}
	if err != nil {
		return false, configErrorf(e, "fixup: %v", err)
	}
	return ch, nil
}
