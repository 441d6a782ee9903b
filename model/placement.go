// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"sort"

	"github.com/google/syzformat/pkg/log"
)

// move records where a placed element was declared.
type move struct {
	elem   Element
	parent *Block
	index  int
	name   string
}

// applyPlacement moves every active element with a Placement next to its target.
func (m *DataModel) applyPlacement() error {
	var todo []Element
	ForEach(m.root, func(e Element) {
		if e.common().Placement != nil {
			todo = append(todo, e)
		}
	})
	for _, e := range todo {
		p := e.common().Placement
		if p.After != "" && p.Before != "" {
			return configErrorf(e, "placement can't be both after %q and before %q", p.After, p.Before)
		}
		targetName := p.After + p.Before
		target := Find(e, targetName)
		if target == nil {
			return configErrorf(e, "unknown placement target %q", targetName)
		}
		src, ok := e.Parent().(*Block)
		if !ok {
			return configErrorf(e, "only block children can be placed")
		}
		dst, ok := target.Parent().(*Block)
		if !ok {
			return configErrorf(e, "placement target %v is not a block child", describe(target))
		}
		if target == e || isAncestor(e, target) {
			return configErrorf(e, "can't be placed relative to itself")
		}
		oldName := e.Name()
		idx := src.Remove(e)
		m.moves = append(m.moves, move{
			elem:   e,
			parent: src,
			index:  idx,
			name:   oldName,
		})
		e.common().name = uniqueName(dst, oldName)
		pos := indexOf(dst.children, target)
		if p.After != "" {
			pos++
		}
		dst.Insert(pos, e)
		log.Logf(3, "placed %v %v", describe(e), describe(target))
	}
	m.placed = true
	return nil
}

// undoPlacement returns moved elements to their declared positions and names.
func (m *DataModel) undoPlacement() {
	for i := len(m.moves) - 1; i >= 0; i-- {
		mv := m.moves[i]
		if b, ok := mv.elem.Parent().(*Block); ok {
			b.Remove(mv.elem)
		}
		mv.elem.common().name = mv.name
		mv.parent.Insert(mv.index, mv.elem)
	}
	m.moves = nil
	m.placed = false
}

func uniqueName(b *Block, name string) string {
	if b.Child(name) == nil {
		return name
	}
	for i := 0; ; i++ {
		cand := fmt.Sprintf("%v_%v", name, i)
		if b.Child(cand) == nil {
			return cand
		}
	}
}

func indexOf(list []Element, e Element) int {
	for i, x := range list {
		if x == e {
			return i
		}
	}
	panic(fmt.Sprintf("%v is not in the list", describe(e)))
}

// ApplyPlacement moves placed elements next to their targets the way Crack and
// Generate do. Placed elements of a fresh model can be found by their new names after it.
func (m *DataModel) ApplyPlacement() error {
	if err := m.init(); err != nil {
		return err
	}
	if m.placed {
		return nil
	}
	return m.applyPlacement()
}

// orderRelocated moves children cracked at an offset to where they were found in the data.
func (m *DataModel) orderRelocated() {
	var blocks []*Block
	ForEach(m.root, func(e Element) {
		if b, ok := e.(*Block); ok && hasRelocated(b) {
			blocks = append(blocks, b)
		}
	})
	for _, b := range blocks {
		m.reorder(b, dataOrder(b.children))
	}
}

// reorder arranges the children of b as in order. Moves are recorded when m is not nil
// so that undoPlacement restores the declared order.
func (m *DataModel) reorder(b *Block, order []Element) {
	for i, e := range order {
		if b.children[i] == e {
			continue
		}
		idx := b.Remove(e)
		if m != nil {
			m.moves = append(m.moves, move{
				elem:   e,
				parent: b,
				index:  idx,
				name:   e.Name(),
			})
		}
		b.Insert(i, e)
	}
}

// Reorder arranges the children of b in the order of names.
func (b *Block) Reorder(names []string) error {
	if len(names) != len(b.children) {
		return fmt.Errorf("%v has %v children, got %v names", describe(b), len(b.children), len(names))
	}
	order := make([]Element, len(names))
	seen := make(map[string]bool)
	for i, name := range names {
		ch := b.Child(name)
		if ch == nil || seen[name] {
			return fmt.Errorf("%v: bad child %q in order", describe(b), name)
		}
		seen[name] = true
		order[i] = ch
	}
	b.model.reorder(b, order)
	return nil
}

func hasRelocated(b *Block) bool {
	for _, ch := range b.children {
		if ch.common().relocated {
			return true
		}
	}
	return false
}

// dataOrder sorts elements by their position in the cracked data.
func dataOrder(elems []Element) []Element {
	res := append([]Element{}, elems...)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].common().start < res[j].common().start
	})
	return res
}

// extent returns where e ends in the cracked data including relocated descendants.
func extent(e Element) int64 {
	cm := e.common()
	end := cm.end
	if b, ok := e.(*Block); ok && cm.Transformer == nil {
		for _, ch := range b.children {
			end = max(end, extent(ch))
		}
	}
	return end
}
