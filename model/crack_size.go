// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/expr"
)

// lengthOf returns the length of e in bits if it is known before reading e:
// the declared length, lengthCalc, the fixed width or an inbound size relation.
func (c *cracker) lengthOf(e Element) (int64, bool, error) {
	cm := e.common()
	if e == c.decoded {
		if leaf, ok := e.(Leaf); ok {
			if n, fixed := leaf.fixedBits(); fixed && cm.Length < 0 {
				return n, true, nil
			}
			return c.buf.LengthBits(), true, nil
		}
		return 0, false, nil
	}
	if cm.LengthCalc != nil {
		n, err := cm.LengthCalc.EvalInt(expr.Chain{scopeEnv{e}})
		if err != nil {
			return 0, false, crackFailuref(e, "%v: lengthCalc %v: %v", describe(e), cm.LengthCalc, err)
		}
		if n < 0 {
			return 0, false, crackFailuref(e, "%v: negative lengthCalc %v", describe(e), n)
		}
		return n * int64(Bytes), true, nil
	}
	if cm.Length >= 0 {
		return cm.Length, true, nil
	}
	if leaf, ok := e.(Leaf); ok {
		if n, fixed := leaf.fixedBits(); fixed {
			return n, true, nil
		}
		if cm.Token && cm.token != nil {
			return cm.token.LengthBits(), true, nil
		}
	}
	return sizeFromRelation(e, false)
}

// sizeFromRelation returns the length of e given by a size relation whose source
// was already cracked. inner selects sources inside e or outside of it.
func sizeFromRelation(e Element, inner bool) (int64, bool, error) {
	for _, r := range inbound(e, Size) {
		fc := r.from.common()
		if !fc.cracked || isAncestor(e, r.from) != inner || !attached(r.from) {
			continue
		}
		v, err := intValue(r.from)
		if err != nil {
			return 0, false, err
		}
		n, err := r.fromValue(v)
		if err != nil {
			return 0, false, crackFailuref(e, "%v: %v", r, err)
		}
		bits := n * r.unit()
		if bits < 0 {
			return 0, false, crackMismatch(e, int64(0), bits, "%v has negative size of %v bits", describe(e), bits)
		}
		return bits, true, nil
	}
	return 0, false, nil
}

func countFromRelation(a *Array) (int64, bool, error) {
	for _, r := range inbound(a, Count) {
		if !r.from.common().cracked || !attached(r.from) {
			continue
		}
		v, err := intValue(r.from)
		if err != nil {
			return 0, false, err
		}
		n, err := r.fromValue(v)
		if err != nil {
			return 0, false, crackFailuref(a, "%v: %v", r, err)
		}
		if n < 0 {
			return 0, false, crackFailuref(a, "%v has negative count %v", describe(a), n)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// offsetTarget returns the absolute bit position of e given by a cracked offset relation.
func offsetTarget(e Element) (int64, bool, error) {
	for _, r := range inbound(e, Offset) {
		if !r.from.common().cracked || !attached(r.from) {
			continue
		}
		v, err := intValue(r.from)
		if err != nil {
			return 0, false, err
		}
		n, err := r.fromValue(v)
		if err != nil {
			return 0, false, crackFailuref(e, "%v: %v", r, err)
		}
		anchor, err := crackAnchor(r)
		if err != nil {
			return 0, false, err
		}
		return anchor + n*r.unit(), true, nil
	}
	return 0, false, nil
}

// crackAnchor returns the position offsets of r are measured from in the cracked data.
func crackAnchor(r *Relation) (int64, error) {
	switch {
	case !r.Relative:
		return 0, nil
	case r.relativeTo != nil && (r.relativeTo == r.of || isAncestor(r.relativeTo, r.of)):
		return r.relativeTo.common().start, nil
	case r.relativeTo != nil:
		rc := r.relativeTo.common()
		if !rc.cracked {
			return 0, crackFailuref(r.of, "%v: %v is not cracked yet", r, describe(r.relativeTo))
		}
		return rc.end, nil
	case r.from.Parent() != nil:
		return r.from.Parent().common().start, nil
	}
	return 0, nil
}

// lookahead determines the length of an unsized leaf from what follows it.
func (c *cracker) lookahead(e Element, sc scope) (int64, error) {
	pos := c.buf.TellBits()
	if s, ok := e.(*String); ok && s.NullTerminated {
		unit := int64(s.Encoding.unitBytes()) * 8
		for p := pos; p+unit <= sc.end; p += unit {
			v, err := c.buf.Slice(p, unit)
			if err != nil {
				break
			}
			if allZero(v.Bytes()) {
				return p + unit - pos, nil
			}
		}
		return 0, crackFailuref(e, "%v: missing null terminator", describe(e))
	}
	// What follows a relocated element in the data is not known from the declaration,
	// only elements at a known offset after it bound it.
	relocated := e.common().relocated
	var sum int64
	for _, f := range following(e, sc) {
		target, ok, err := offsetTarget(f)
		if err != nil {
			return 0, err
		}
		if ok {
			if target >= pos+sum {
				return target - pos - sum, nil
			}
			continue
		}
		if relocated {
			continue
		}
		if tok := leadingToken(f); tok != nil && tok.LengthBits()%8 == 0 {
			if idx := c.buf.IndexBytes(tok.Bytes(), pos+sum); idx >= 0 && idx+tok.LengthBits() <= sc.end {
				return idx - pos - sum, nil
			}
		}
		n, ok, err := c.staticBits(f)
		if err != nil {
			return 0, err
		}
		if !ok {
			return sc.end - pos, nil
		}
		sum += n
	}
	if pos+sum > sc.end {
		return 0, crackMismatch(e, sum, sc.end-pos, "%v: following elements need %v bits but only %v bits are left",
			describe(e), sum, sc.end-pos)
	}
	return sc.end - pos - sum, nil
}

// followingBits returns the static size of everything that follows e in its scope.
func (c *cracker) followingBits(e Element, sc scope) (int64, bool) {
	var sum int64
	for _, f := range following(e, sc) {
		_, located, err := offsetTarget(f)
		if err != nil {
			return 0, false
		}
		if located {
			continue
		}
		n, ok, err := c.staticBits(f)
		if err != nil || !ok {
			return 0, false
		}
		sum += n
	}
	return sum, true
}

// following returns the elements cracked after e up to the end of the scope.
func following(e Element, sc scope) []Element {
	var res []Element
	for x := e; x != sc.owner && x.Parent() != nil; x = x.Parent() {
		b, ok := x.Parent().(*Block)
		if !ok {
			continue
		}
		for i, ch := range b.children {
			if ch == x {
				res = append(res, b.children[i+1:]...)
				break
			}
		}
	}
	return res
}

// staticBits returns the size of e if it can be known before e is cracked.
func (c *cracker) staticBits(e Element) (int64, bool, error) {
	cm := e.common()
	if cm.Length >= 0 {
		return cm.Length, true, nil
	}
	if cm.LengthCalc != nil || cm.Transformer != nil {
		return 0, false, nil
	}
	if n, ok, err := sizeFromRelation(e, false); err != nil || ok {
		return n, ok, err
	}
	switch x := e.(type) {
	case *Padding:
		return 0, false, nil
	case Leaf:
		if n, ok := x.fixedBits(); ok {
			return n, true, nil
		}
		if cm.Token && cm.token != nil {
			return cm.token.LengthBits(), true, nil
		}
		return 0, false, nil
	case *Block:
		var sum int64
		for _, ch := range x.children {
			n, ok, err := c.staticBits(ch)
			if err != nil || !ok {
				return 0, false, err
			}
			sum += n
		}
		return sum, true, nil
	case *Choice:
		return 0, false, nil
	case *Array:
		n, ok, err := countFromRelation(x)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			if x.MaxOccurs != x.MinOccurs {
				return 0, false, nil
			}
			n = int64(x.MinOccurs)
		}
		item, ok, err := c.staticBits(x.Template)
		if err != nil || !ok {
			return 0, false, err
		}
		return n * item, true, nil
	}
	return 0, false, nil
}

// leadingToken returns the token bits that e starts with, if any.
func leadingToken(e Element) *bitstream.Buffer {
	for {
		cm := e.common()
		if cm.Transformer != nil {
			return nil
		}
		if cm.Token && cm.token != nil {
			return cm.token
		}
		b, ok := e.(*Block)
		if !ok || len(b.children) == 0 {
			return nil
		}
		e = b.children[0]
	}
}
