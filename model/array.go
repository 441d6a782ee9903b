// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/google/syzformat/pkg/bitstream"
)

// Array repeats a template element between MinOccurs and MaxOccurs times.
// Until the array is expanded (by crack or Append) the template itself is the only item.
// Expanded arrays hold clones of the template named name_N.
type Array struct {
	ElementCommon
	Template  Element
	MinOccurs int
	// MaxOccurs is -1 for unbounded arrays.
	MaxOccurs int

	items    []Element
	expanded bool
}

func NewArray(name string, template Element, minOccurs, maxOccurs int) *Array {
	a := &Array{
		ElementCommon: newCommon(name),
		Template:      template,
		MinOccurs:     minOccurs,
		MaxOccurs:     maxOccurs,
		items:         []Element{template},
	}
	setParent(template, a)
	return a
}

func (a *Array) FullName() string { return fullName(a) }

func (a *Array) Value() (*bitstream.Buffer, error) { return elementValue(a) }

func (a *Array) InternalValue() any { return generatedBytes(a) }

func (a *Array) Len() int {
	return len(a.items)
}

func (a *Array) Item(i int) Element {
	return a.items[i]
}

func (a *Array) Items() []Element {
	return append([]Element{}, a.items...)
}

func (a *Array) Expanded() bool {
	return a.expanded
}

// Append adds a new instance of the template and returns it.
func (a *Array) Append() (Element, error) {
	if a.MaxOccurs >= 0 && len(a.items) >= a.MaxOccurs {
		return nil, fmt.Errorf("%v already has %v items (max %v)", describe(a), len(a.items), a.MaxOccurs)
	}
	a.expand()
	item := a.instance(len(a.items))
	a.items = append(a.items, item)
	a.invalidate()
	return item, nil
}

// Remove deletes the i-th item.
func (a *Array) Remove(i int) error {
	if i < 0 || i >= len(a.items) {
		return fmt.Errorf("%v: no item %v", describe(a), i)
	}
	if len(a.items) <= a.MinOccurs {
		return fmt.Errorf("%v: can't go below %v items", describe(a), a.MinOccurs)
	}
	a.expand()
	item := a.items[i]
	a.items = append(a.items[:i:i], a.items[i+1:]...)
	item.common().parent = nil
	a.invalidate()
	return nil
}

// Expand turns the template item into a named instance without changing the item count.
func (a *Array) Expand() {
	a.expand()
}

// expand replaces the template item with its first instance.
func (a *Array) expand() {
	if a.expanded {
		return
	}
	a.expanded = true
	if len(a.items) == 1 && a.items[0] == a.Template {
		a.items[0] = a.instance(0)
	}
}

func (a *Array) instance(i int) Element {
	name := fmt.Sprintf("%v_%v", a.Template.Name(), i)
	if a.model != nil {
		return a.model.cloneSubtree(a.Template, name)
	}
	return cloneDetached(a.Template, name, a)
}
