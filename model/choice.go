// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/google/syzformat/pkg/bitstream"
)

// Choice holds alternative candidates of which exactly one is selected
// after a crack or an explicit Select.
type Choice struct {
	ElementCommon

	candidates []Element
	selected   Element
}

func NewChoice(name string, candidates ...Element) *Choice {
	c := &Choice{ElementCommon: newCommon(name)}
	for _, cand := range candidates {
		c.Add(cand)
	}
	return c
}

func (c *Choice) FullName() string { return fullName(c) }

func (c *Choice) Value() (*bitstream.Buffer, error) { return elementValue(c) }

func (c *Choice) InternalValue() any { return generatedBytes(c) }

func (c *Choice) Add(e Element) {
	if e.Parent() != nil {
		panic(fmt.Sprintf("%v already has a parent", describe(e)))
	}
	c.candidates = append(c.candidates, e)
	setParent(e, c)
	c.restructure()
}

func (c *Choice) Candidates() []Element {
	return append([]Element{}, c.candidates...)
}

// Selected returns the selected candidate or nil.
func (c *Choice) Selected() Element {
	return c.selected
}

// Select selects the candidate with the given name.
func (c *Choice) Select(name string) error {
	for _, cand := range c.candidates {
		if cand.Name() == name {
			c.selected = cand
			c.invalidate()
			return nil
		}
	}
	return fmt.Errorf("%v has no candidate %q", describe(c), name)
}

// selectDefault picks the first candidate for models that were never cracked.
func (c *Choice) selectDefault() {
	if c.selected == nil && len(c.candidates) != 0 {
		c.selected = c.candidates[0]
	}
}
