// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"github.com/google/syzformat/pkg/bitstream"
)

// state is a restorable copy of the mutable state of a subtree.
// Cracking takes one before every Choice candidate and the whole crack,
// and restores it when the attempt fails.
type state struct {
	elems []elemState
	rels  []*Relation
}

type elemState struct {
	e        Element
	common   ElementCommon
	elems    []Element
	selected Element
	expanded bool
	num      uint64
	str      string
	buf      *bitstream.Buffer
}

func (m *DataModel) snapshot(root Element) *state {
	st := &state{
		rels: m.rels[:len(m.rels):len(m.rels)],
	}
	forEachAll(root, func(e Element) {
		es := elemState{
			e:      e,
			common: *e.common(),
		}
		switch x := e.(type) {
		case *Number:
			es.num = x.val
		case *Flag:
			es.num = x.val
		case *String:
			es.str = x.val
		case *Blob:
			es.buf = x.val
		case *Padding:
			es.buf = x.val
		case *Block:
			es.elems = append([]Element{}, x.children...)
		case *Choice:
			es.selected = x.selected
		case *Array:
			es.elems = append([]Element{}, x.items...)
			es.expanded = x.expanded
		}
		st.elems = append(st.elems, es)
	})
	return st
}

// restore reverts the subtree and drops relations created since the snapshot.
func (m *DataModel) restore(st *state) {
	m.truncateRelations(len(st.rels))
	m.rels = st.rels
	for _, es := range st.elems {
		*es.e.common() = es.common
		switch x := es.e.(type) {
		case *Number:
			x.val = es.num
		case *Flag:
			x.val = es.num
		case *String:
			x.val = es.str
		case *Blob:
			x.val = es.buf
		case *Padding:
			x.val = es.buf
		case *Block:
			x.children = es.elems
		case *Choice:
			x.selected = es.selected
		case *Array:
			x.items = es.elems
			x.expanded = es.expanded
		}
	}
}

// truncateRelations unbinds relations with arena index >= n from their endpoints.
func (m *DataModel) truncateRelations(n int) {
	if n > len(m.rels) {
		return
	}
	for _, r := range m.rels[n:] {
		for _, e := range r.endpoints() {
			c := e.common()
			i := len(c.rels)
			for i > 0 && c.rels[i-1] >= n {
				i--
			}
			c.rels = c.rels[:i]
		}
	}
	m.rels = m.rels[:n]
}
