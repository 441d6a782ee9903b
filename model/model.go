// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package model implements a declarative, bidirectional description of binary formats.
// A DataModel is a tree of elements bound together by size, count and offset relations.
// Crack parses concrete bits into the tree, Generate serializes the (possibly mutated)
// tree back while re-resolving all relations and fixups.
package model

import (
	"github.com/google/syzformat/pkg/bitstream"
)

const DefaultMaxIterations = 16

type Options struct {
	// MaxIterations bounds the number of generation passes spent waiting
	// for relations and fixups to converge.
	MaxIterations int
}

// Hooks are called for every element visited by Crack.
type Hooks struct {
	OnCrackEnter func(fullName string, pos int64, buf *bitstream.Buffer)
	OnCrackExit  func(fullName string, start, end int64, buf *bitstream.Buffer)
}

// DataModel is the root of an element tree. It owns the relation arena.
// A DataModel must not be used from several goroutines concurrently; use Clone instead.
type DataModel struct {
	Options Options
	Hooks   Hooks

	root *Block
	rels []*Relation

	out    *bitstream.Buffer
	dirty  bool
	inited bool
	placed bool
	moves  []move
}

func NewDataModel(name string, children ...Element) *DataModel {
	m := &DataModel{
		root:  NewBlock(name),
		dirty: true,
	}
	m.root.model = m
	for _, c := range children {
		m.root.Add(c)
	}
	return m
}

func (m *DataModel) Name() string {
	return m.root.Name()
}

func (m *DataModel) Root() *Block {
	return m.root
}

// Relations returns the relation arena, including relations that are currently dead.
func (m *DataModel) Relations() []*Relation {
	return append([]*Relation{}, m.rels...)
}

// LiveRelations returns relations whose endpoints are all part of the current tree.
func (m *DataModel) LiveRelations() []*Relation {
	var res []*Relation
	for _, r := range m.rels {
		if r.live() {
			res = append(res, r)
		}
	}
	return res
}

// Bytes generates the model and returns the bytes; a partial last byte is zero padded.
func (m *DataModel) Bytes() ([]byte, error) {
	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (m *DataModel) invalidate() {
	m.dirty = true
}

func (m *DataModel) restructure() {
	m.dirty = true
	m.inited = false
}

func (m *DataModel) maxIterations() int {
	if m.Options.MaxIterations > 0 {
		return m.Options.MaxIterations
	}
	return DefaultMaxIterations
}

// compact drops relations with endpoints that are no longer reachable from the root.
func (m *DataModel) compact() {
	reachable := make(map[Element]bool)
	forEachAll(m.root, func(e Element) {
		reachable[e] = true
		e.common().rels = nil
	})
	old := m.rels
	m.rels = nil
	for _, r := range old {
		keep := true
		for _, e := range r.endpoints() {
			keep = keep && reachable[e]
		}
		if keep {
			m.bind(r)
		}
	}
}
