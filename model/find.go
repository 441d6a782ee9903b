// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"strings"
)

// Find resolves a possibly dotted name relative to e.
// Each enclosing scope, starting from e itself, is searched first for a direct
// path and then breadth-first for the first path component.
// Unselected choice candidates are visible only until a candidate is selected.
func Find(e Element, name string) Element {
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	for scope := e; scope != nil; scope = scope.Parent() {
		if res := findIn(scope, parts); res != nil {
			return res
		}
	}
	return nil
}

func findIn(scope Element, parts []string) Element {
	if scope.Name() == parts[0] {
		if res := walkPath(scope, parts[1:]); res != nil {
			return res
		}
	}
	if res := walkPath(scope, parts); res != nil {
		return res
	}
	queue := visibleChildren(scope)
	for len(queue) != 0 {
		e := queue[0]
		queue = queue[1:]
		if e.Name() == parts[0] {
			if res := walkPath(e, parts[1:]); res != nil {
				return res
			}
		}
		queue = append(queue, visibleChildren(e)...)
	}
	return nil
}

func walkPath(e Element, parts []string) Element {
	for _, part := range parts {
		var next Element
		for _, c := range visibleChildren(e) {
			if c.Name() == part {
				next = c
				break
			}
		}
		if next == nil {
			if a, ok := e.(*Array); ok && len(a.items) != 0 {
				// Paths may step through an array into its first item.
				if res := walkPath(a.items[0], []string{part}); res != nil {
					next = res
				}
			}
		}
		if next == nil {
			return nil
		}
		e = next
	}
	return e
}

func visibleChildren(e Element) []Element {
	if c, ok := e.(*Choice); ok && c.selected == nil {
		return c.candidates
	}
	return activeChildren(e)
}

// Find resolves a name relative to the model root.
func (m *DataModel) Find(name string) Element {
	return Find(m.root, name)
}
