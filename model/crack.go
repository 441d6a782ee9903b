// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/expr"
	"github.com/google/syzformat/pkg/log"
)

// CrackBytes is a shortcut for Crack of a byte slice.
func (m *DataModel) CrackBytes(data []byte) error {
	return m.Crack(bitstream.FromBytes(data))
}

// Crack parses buf into the model starting at the current cursor.
// On success all live relations hold and placement is applied.
// On failure the model is left exactly as it was before the call.
func (m *DataModel) Crack(buf *bitstream.Buffer) error {
	if err := m.init(); err != nil {
		return err
	}
	st := m.snapshot(m.root)
	moves, placed := m.moves, m.placed
	m.undoPlacement()
	m.compact()
	forEachAll(m.root, func(e Element) {
		c := e.common()
		c.cracked = false
		c.relocated = false
		c.lead = nil
	})
	c := &cracker{
		m:   m,
		buf: buf,
	}
	err := c.crack(m.root, scope{end: buf.LengthBits()})
	if err == nil {
		err = c.verify()
	}
	if err == nil {
		m.orderRelocated()
		err = m.applyPlacement()
	}
	if err != nil {
		m.undoPlacement()
		m.restore(st)
		m.moves, m.placed = moves, placed
		m.invalidate()
		return err
	}
	m.out = nil
	m.invalidate()
	return nil
}

type cracker struct {
	m   *DataModel
	buf *bitstream.Buffer
	// decoded is the element whose body is being cracked from transformer output.
	decoded Element
	depth   int
}

// scope bounds cracking of an element: end is the bit where the innermost
// sized container (owner) or the buffer ends.
type scope struct {
	end   int64
	owner Element
}

func (c *cracker) crack(e Element, sc scope) error {
	cm := e.common()
	if h := c.m.Hooks.OnCrackEnter; h != nil {
		h(e.FullName(), c.buf.TellBits(), c.buf)
	}
	c.depth++
	defer func() { c.depth-- }()
	resume, relocated, err := c.seekOffset(e)
	if err != nil {
		return err
	}
	if relocated {
		sc = scope{end: c.buf.LengthBits()}
	}
	cm.start = c.buf.TellBits()
	cm.relocated = relocated
	if cm.Transformer != nil {
		err = c.crackTransformed(e, sc)
	} else {
		err = c.crackBody(e, sc)
	}
	if err != nil {
		log.Logf(3, "%*v%v failed at bit %v: %v", c.depth, "", describe(e), cm.start, err)
		return err
	}
	cm.end = c.buf.TellBits()
	cm.cracked = true
	if relocated {
		if _, err := c.buf.SeekBits(resume, io.SeekStart); err != nil {
			return err
		}
	}
	if err := checkConstraint(e); err != nil {
		return err
	}
	log.Logf(4, "%*v%v: bits [%v, %v)", c.depth, "", describe(e), cm.start, cm.end)
	if h := c.m.Hooks.OnCrackExit; h != nil {
		h(e.FullName(), cm.start, cm.end, c.buf)
	}
	return nil
}

func (c *cracker) crackBody(e Element, sc scope) error {
	length, sized, err := c.lengthOf(e)
	if err != nil {
		return err
	}
	switch x := e.(type) {
	case *Padding:
		return c.crackPadding(x, sc)
	case Leaf:
		return c.crackLeaf(x, length, sized, sc)
	case *Block:
		return c.crackBlock(x, length, sized, sc)
	case *Choice:
		return c.crackSized(e, length, sized, sc, func(inner scope) error {
			return c.crackChoice(x, inner)
		})
	case *Array:
		return c.crackSized(e, length, sized, sc, func(inner scope) error {
			return c.crackArray(x, inner)
		})
	default:
		panic(fmt.Sprintf("unknown element type %T", e))
	}
}

func (c *cracker) crackLeaf(e Leaf, length int64, sized bool, sc scope) error {
	pos := c.buf.TellBits()
	if !sized {
		var err error
		if length, err = c.lookahead(e, sc); err != nil {
			return err
		}
	}
	if length < 0 || pos+length > sc.end {
		return crackShort(e, pos, length, sc.end)
	}
	if err := e.decode(c.buf, length); err != nil {
		return crackFailuref(e, "%v: %v", describe(e), err)
	}
	if _, err := c.buf.SeekBits(pos+length, io.SeekStart); err != nil {
		return crackFailuref(e, "%v: %v", describe(e), err)
	}
	cm := e.common()
	if cm.Token {
		got, err := c.buf.Slice(pos, length)
		if err != nil {
			return crackFailuref(e, "%v: %v", describe(e), err)
		}
		if !got.Equal(cm.token) {
			return crackMismatch(e, cm.token, got, "%v: token mismatch: expected %v but got %v",
				describe(e), cm.token, got)
		}
	}
	if flags, ok := e.(*Flags); ok {
		for _, f := range flags.flags {
			fc := f.common()
			fc.start = pos + int64(f.Position)
			fc.end = fc.start + int64(f.Bits)
			fc.cracked = true
		}
	}
	return nil
}

func (c *cracker) crackPadding(p *Padding, sc scope) error {
	pos := c.buf.TellBits()
	anchor := p.anchor()
	var anchorPos int64
	if anchor != nil {
		anchorPos = anchor.common().start
	}
	bits := p.padBits(pos, anchorPos)
	if pos+bits > sc.end {
		return crackShort(p, pos, bits, sc.end)
	}
	val, err := c.buf.Slice(pos, bits)
	if err != nil {
		return crackFailuref(p, "%v: %v", describe(p), err)
	}
	p.val = val
	_, err = c.buf.SeekBits(pos+bits, io.SeekStart)
	return err
}

func (c *cracker) crackBlock(b *Block, length int64, sized bool, sc scope) error {
	start := c.buf.TellBits()
	inner := sc
	if sized {
		if start+length > sc.end {
			return tooLong(b, length, sc.end-start)
		}
		inner = scope{end: start + length, owner: b}
	}
	// Set once a size field inside the block has been cracked.
	bounded := false
	for _, ch := range b.children {
		if err := c.crack(ch, inner); err != nil {
			var cf *CrackingFailure
			if bounded && errors.As(err, &cf) && cf.need > inner.end && !relocatedWithin(cf.Element, b) {
				return overrun(b, length, cf.need-start)
			}
			return err
		}
		if sized {
			continue
		}
		// A size field inside the block bounds the rest of it.
		n, ok, err := sizeFromRelation(b, true)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		sized, bounded, length = true, true, n
		if read := c.buf.TellBits() - start; read > length {
			return overrun(b, length, read)
		}
		if start+length > sc.end {
			return tooLong(b, length, sc.end-start)
		}
		inner = scope{end: start + length, owner: b}
	}
	if read := c.buf.TellBits() - start; sized && read != length {
		return overrun(b, length, read)
	}
	return c.relocatedLeads(b, start)
}

// relocatedLeads keeps the bits between a child cracked at an offset and
// whatever precedes it in the data, so that generation reproduces them.
func (c *cracker) relocatedLeads(b *Block, start int64) error {
	if !hasRelocated(b) {
		return nil
	}
	prev := start
	for _, ch := range dataOrder(b.children) {
		cm := ch.common()
		if cm.relocated && cm.start > prev {
			lead, err := c.buf.Slice(prev, cm.start-prev)
			if err != nil {
				return crackFailuref(ch, "%v: %v", describe(ch), err)
			}
			cm.lead = lead
		}
		prev = max(prev, extent(ch))
	}
	return nil
}

func relocatedWithin(e, b Element) bool {
	for ; e != nil && e != b; e = e.Parent() {
		if e.common().relocated {
			return true
		}
	}
	return false
}

func tooLong(e Element, length, left int64) *CrackingFailure {
	return crackMismatch(e, length, left, "%v has length of %v bits but buffer only has %v bits",
		describe(e), length, left)
}

func overrun(e Element, length, read int64) *CrackingFailure {
	return crackMismatch(e, length, read, "%v has length of %v bits but already read %v bits",
		describe(e), length, read)
}

func (c *cracker) crackSized(e Element, length int64, sized bool, sc scope, body func(scope) error) error {
	start := c.buf.TellBits()
	inner := sc
	if sized {
		if start+length > sc.end {
			return tooLong(e, length, sc.end-start)
		}
		inner = scope{end: start + length, owner: e}
	}
	if err := body(inner); err != nil {
		return err
	}
	if read := c.buf.TellBits() - start; sized && read != length {
		return overrun(e, length, read)
	}
	return nil
}

func (c *cracker) crackChoice(ch *Choice, sc scope) error {
	pos := c.buf.TellBits()
	ch.selected = nil
	for _, cand := range ch.candidates {
		st := c.m.snapshot(cand)
		ch.selected = cand
		err := c.crack(cand, sc)
		if err == nil {
			log.Logf(2, "%v: selected %v", describe(ch), cand.Name())
			return nil
		}
		if !isCrackingFailure(err) {
			return err
		}
		c.m.restore(st)
		ch.selected = nil
		if _, err := c.buf.SeekBits(pos, io.SeekStart); err != nil {
			return err
		}
	}
	return crackFailuref(ch, "%v: no candidate matched at bit %v", describe(ch), pos)
}

func (c *cracker) crackArray(a *Array, sc scope) error {
	a.items = nil
	a.expanded = true
	count, counted, err := countFromRelation(a)
	if err != nil {
		return err
	}
	if counted {
		if count < int64(a.MinOccurs) || a.MaxOccurs >= 0 && count > int64(a.MaxOccurs) {
			return crackFailuref(a, "%v has count of %v outside of [%v, %v]",
				describe(a), count, a.MinOccurs, a.MaxOccurs)
		}
		for i := 0; i < int(count); i++ {
			item := a.instance(i)
			a.items = append(a.items, item)
			if err := c.crack(item, sc); err != nil {
				return err
			}
		}
		return nil
	}
	reserve, _ := c.followingBits(a, sc)
	for i := 0; a.MaxOccurs < 0 || i < a.MaxOccurs; i++ {
		pos := c.buf.TellBits()
		if i >= a.MinOccurs && (pos >= sc.end || reserve > 0 && sc.end-pos <= reserve) {
			break
		}
		mark := len(c.m.rels)
		item := a.instance(i)
		a.items = append(a.items, item)
		err := c.crack(item, sc)
		if err == nil && c.buf.TellBits() == pos && i >= a.MinOccurs && !item.common().relocated {
			err = crackFailuref(item, "%v consumed no data", describe(item))
		}
		if err == nil {
			continue
		}
		if !isCrackingFailure(err) {
			return err
		}
		if i < a.MinOccurs {
			return crackFailuref(a, "%v has %v items but needs at least %v: %v",
				describe(a), i, a.MinOccurs, err)
		}
		log.Logf(3, "%v: stopping after %v items: %v", describe(a), i, err)
		a.items = a.items[:i]
		item.common().parent = nil
		c.m.truncateRelations(mark)
		if _, err := c.buf.SeekBits(pos, io.SeekStart); err != nil {
			return err
		}
		break
	}
	return nil
}

func (c *cracker) crackTransformed(e Element, sc scope) error {
	cm := e.common()
	pos := c.buf.TellBits()
	length, sized, err := c.lengthOf(e)
	if err != nil {
		return err
	}
	if !sized {
		if length, err = c.lookahead(e, sc); err != nil {
			return err
		}
	}
	if pos+length > sc.end {
		return crackShort(e, pos, length, sc.end)
	}
	raw, err := c.buf.Slice(pos, length)
	if err != nil {
		return crackFailuref(e, "%v: %v", describe(e), err)
	}
	decoded, err := cm.Transformer.Decode(raw)
	if err != nil {
		return crackFailuref(e, "%v: %v", describe(e), err)
	}
	outer, prev := c.buf, c.decoded
	c.buf, c.decoded = decoded, e
	err = c.crackBody(e, scope{end: decoded.LengthBits(), owner: e})
	c.buf, c.decoded = outer, prev
	if err != nil {
		return err
	}
	c.buf = outer
	_, err = c.buf.SeekBits(pos+length, io.SeekStart)
	return err
}

// seekOffset moves the cursor to the position given by an inbound offset relation.
// It returns the position to continue from once e is cracked. An element found
// right at the cursor is cracked in sequence.
func (c *cracker) seekOffset(e Element) (int64, bool, error) {
	target, ok, err := offsetTarget(e)
	if err != nil || !ok {
		return 0, false, err
	}
	size := c.buf.LengthBits()
	if target < 0 {
		return 0, false, crackMismatch(e, int64(0), target, "%v has negative offset of %v bits",
			describe(e), target)
	}
	if target > size {
		return 0, false, crackMismatch(e, target, size, "%v has offset of %v bits but buffer only has %v bits",
			describe(e), target, size)
	}
	pos := c.buf.TellBits()
	if target == pos {
		return 0, false, nil
	}
	if _, err := c.buf.SeekBits(target, io.SeekStart); err != nil {
		return 0, false, err
	}
	log.Logf(4, "%*v%v: at offset %v, resuming at %v", c.depth, "", describe(e), target, pos)
	return pos, true, nil
}

// verify checks that every live relation holds for the cracked data.
func (c *cracker) verify() error {
	for _, r := range c.m.rels {
		if !r.live() || !r.from.common().cracked || !r.of.common().cracked {
			continue
		}
		measured, err := crackedMeasure(r)
		if err != nil {
			return err
		}
		want, err := r.toFrom(measured)
		if err != nil {
			return crackFailuref(r.from, "%v: %v", r, err)
		}
		got, err := intValue(r.from)
		if err != nil {
			return err
		}
		if want != got {
			return crackMismatch(r.from, want, got, "%v: %v has value %v but the data requires %v",
				r, describe(r.from), got, want)
		}
	}
	return nil
}

func crackedMeasure(r *Relation) (int64, error) {
	oc := r.of.common()
	switch r.Kind {
	case Size:
		return (oc.end - oc.start) / r.unit(), nil
	case Count:
		return int64(r.of.(*Array).Len()), nil
	case Offset:
		anchor, err := crackAnchor(r)
		if err != nil {
			return 0, err
		}
		return (oc.start - anchor) / r.unit(), nil
	}
	panic(fmt.Sprintf("unknown relation kind %v", r.Kind))
}

func checkConstraint(e Element) error {
	cm := e.common()
	if cm.Constraint == nil {
		return nil
	}
	env := expr.Chain{expr.Vars{"value": e.InternalValue()}, scopeEnv{e}}
	ok, err := cm.Constraint.EvalBool(env)
	if err != nil {
		return crackFailuref(e, "%v: constraint %v: %v", describe(e), cm.Constraint, err)
	}
	if !ok {
		return crackMismatch(e, cm.Constraint.String(), e.InternalValue(),
			"%v: constraint %v does not hold for %v", describe(e), cm.Constraint, e.InternalValue())
	}
	return nil
}

func isCrackingFailure(err error) bool {
	var cf *CrackingFailure
	return errors.As(err, &cf)
}

func intValue(e Element) (int64, error) {
	switch v := e.InternalValue().(type) {
	case int64:
		return v, nil
	default:
		return 0, crackFailuref(e, "%v: value %q is not a number", describe(e), v)
	}
}
