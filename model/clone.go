// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"sort"
)

// Clone returns a deep copy of the model including array templates, unselected
// choice candidates, relations and the cracked state.
func (m *DataModel) Clone() *DataModel {
	mapping := make(map[Element]Element)
	nm := &DataModel{
		Options: m.Options,
		Hooks:   m.Hooks,
		root:    cloneTree(m.root, mapping).(*Block),
		dirty:   true,
		inited:  m.inited,
		placed:  m.placed,
	}
	forEachAll(nm.root, func(e Element) {
		e.common().model = nm
	})
	remapRefs(mapping)
	for _, r := range m.rels {
		nr := *r
		ok := true
		nr.from, ok = remap(mapping, r.from, ok)
		nr.of, ok = remap(mapping, r.of, ok)
		if r.relativeTo != nil {
			nr.relativeTo, ok = remap(mapping, r.relativeTo, ok)
		}
		if ok {
			nm.bind(&nr)
		}
	}
	for _, mv := range m.moves {
		nm.moves = append(nm.moves, move{
			elem:   mapping[mv.elem],
			parent: mapping[mv.parent].(*Block),
			index:  mv.index,
			name:   mv.name,
		})
	}
	return nm
}

func remap(mapping map[Element]Element, e Element, ok bool) (Element, bool) {
	res, found := mapping[e]
	return res, ok && found
}

// cloneSubtree copies e with its relations for use as a new sibling named name.
// Relations with one endpoint outside of e are shared with the copy.
func (m *DataModel) cloneSubtree(e Element, name string) Element {
	mapping := make(map[Element]Element)
	res := cloneTree(e, mapping)
	res.common().name = name
	res.common().parent = e.Parent()
	remapRefs(mapping)
	seen := make(map[int]bool)
	var idxs []int
	forEachAll(e, func(x Element) {
		for _, idx := range x.common().rels {
			if !seen[idx] {
				seen[idx] = true
				idxs = append(idxs, idx)
			}
		}
	})
	sort.Ints(idxs)
	for _, idx := range idxs {
		r := m.rels[idx]
		nr := *r
		nr.from = mapOr(mapping, r.from)
		nr.of = mapOr(mapping, r.of)
		if r.relativeTo != nil {
			nr.relativeTo = mapOr(mapping, r.relativeTo)
		}
		m.bind(&nr)
	}
	return res
}

func cloneDetached(e Element, name string, parent Element) Element {
	mapping := make(map[Element]Element)
	res := cloneTree(e, mapping)
	res.common().name = name
	res.common().parent = parent
	remapRefs(mapping)
	return res
}

func mapOr(mapping map[Element]Element, e Element) Element {
	if res, ok := mapping[e]; ok {
		return res
	}
	return e
}

func cloneTree(e Element, mapping map[Element]Element) Element {
	var res Element
	switch e := e.(type) {
	case *Number:
		c := new(Number)
		*c = *e
		res = c
	case *String:
		c := new(String)
		*c = *e
		res = c
	case *Blob:
		c := new(Blob)
		*c = *e
		c.val = e.val.Clone()
		res = c
	case *Flag:
		c := new(Flag)
		*c = *e
		res = c
	case *Flags:
		c := new(Flags)
		*c = *e
		c.flags = make([]*Flag, len(e.flags))
		for i, f := range e.flags {
			c.flags[i] = cloneChild(f, c, mapping).(*Flag)
		}
		res = c
	case *Padding:
		c := new(Padding)
		*c = *e
		c.val = e.val.Clone()
		res = c
	case *Block:
		c := new(Block)
		*c = *e
		c.children = make([]Element, len(e.children))
		for i, ch := range e.children {
			c.children[i] = cloneChild(ch, c, mapping)
		}
		res = c
	case *Choice:
		c := new(Choice)
		*c = *e
		c.candidates = make([]Element, len(e.candidates))
		for i, ch := range e.candidates {
			c.candidates[i] = cloneChild(ch, c, mapping)
		}
		if e.selected != nil {
			c.selected = mapping[e.selected]
		}
		res = c
	case *Array:
		c := new(Array)
		*c = *e
		c.Template = cloneChild(e.Template, c, mapping)
		c.items = make([]Element, len(e.items))
		for i, item := range e.items {
			if item == e.Template {
				c.items[i] = c.Template
			} else {
				c.items[i] = cloneChild(item, c, mapping)
			}
		}
		res = c
	default:
		panic(fmt.Sprintf("unknown element type %T", e))
	}
	c := res.common()
	c.rels = nil
	c.value = c.value.Clone()
	c.lead = c.lead.Clone()
	mapping[e] = res
	return res
}

func cloneChild(e, parent Element, mapping map[Element]Element) Element {
	res := cloneTree(e, mapping)
	res.common().parent = parent
	return res
}

// remapRefs points fixup and alignment references that stayed inside
// the copied subtree to their copies.
func remapRefs(mapping map[Element]Element) {
	for _, e := range mapping {
		c := e.common()
		if c.fixupRef != nil {
			c.fixupRef = mapOr(mapping, c.fixupRef)
		}
		if p, ok := e.(*Padding); ok && p.alignedTo != nil {
			p.alignedTo = mapOr(mapping, p.alignedTo)
		}
	}
}
