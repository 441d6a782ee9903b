// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

// Validate checks the model for configuration errors and resolves name references.
func (m *DataModel) Validate() error {
	m.inited = false
	return m.init()
}

func (m *DataModel) init() error {
	if m.inited {
		return nil
	}
	var err error
	forEachAll(m.root, func(e Element) {
		if err == nil {
			err = validateElement(m, e)
		}
	})
	if err != nil {
		return err
	}
	for _, r := range m.rels {
		for _, e := range r.endpoints() {
			if e.Model() != m {
				return configErrorf(e, "%v relation endpoint is not part of model %v", r.Kind, m.Name())
			}
		}
	}
	m.inited = true
	return nil
}

func validateElement(m *DataModel, e Element) error {
	c := e.common()
	if c.model != m {
		return configErrorf(e, "belongs to another model")
	}
	if err := validateNames(e); err != nil {
		return err
	}
	if p := c.Placement; p != nil {
		if p.After != "" && p.Before != "" {
			return configErrorf(e, "placement can't be both after %q and before %q", p.After, p.Before)
		}
		target := p.After + p.Before
		if target == "" {
			return configErrorf(e, "placement without a target")
		}
		if Find(e, target) == nil {
			return configErrorf(e, "unknown placement target %q", target)
		}
		if _, ok := e.Parent().(*Block); !ok {
			return configErrorf(e, "only block children can be placed")
		}
	}
	switch x := e.(type) {
	case *Number:
		if x.Bits < 1 || x.Bits > 64 {
			return configErrorf(e, "bad width %v", x.Bits)
		}
	case *String:
		if !x.Encoding.valid() {
			return configErrorf(e, "unknown encoding %q", x.Encoding)
		}
	case *Flags:
		if err := x.validate(); err != nil {
			return err
		}
	case *Flag:
		if c.Transformer != nil || c.Fixup != nil || c.Placement != nil {
			return configErrorf(e, "flags fields can't have transformers, fixups or placement")
		}
	case *Array:
		if x.Template == nil {
			return configErrorf(e, "no template")
		}
		if x.MinOccurs < 0 || x.MaxOccurs >= 0 && x.MaxOccurs < x.MinOccurs {
			return configErrorf(e, "bad occurrence bounds [%v, %v]", x.MinOccurs, x.MaxOccurs)
		}
	case *Choice:
		if len(x.candidates) == 0 {
			return configErrorf(e, "no candidates")
		}
	case *Padding:
		if x.Alignment < 0 {
			return configErrorf(e, "negative alignment %v", x.Alignment)
		}
		x.alignedTo = nil
		if x.AlignedTo != "" {
			if x.alignedTo = Find(e, x.AlignedTo); x.alignedTo == nil {
				return configErrorf(e, "unknown alignedTo element %q", x.AlignedTo)
			}
		}
	}
	if c.Fixup != nil {
		if !isLeaf(e) {
			return configErrorf(e, "fixups apply only to leaf elements")
		}
		if c.fixupRef = Find(e, c.Fixup.Ref()); c.fixupRef == nil {
			return configErrorf(e, "unknown fixup reference %q", c.Fixup.Ref())
		}
	}
	if c.Token {
		leaf, ok := e.(Leaf)
		if !ok {
			return configErrorf(e, "only leaf elements can be tokens")
		}
		if c.token == nil {
			tok, err := leaf.encode()
			if err != nil {
				return configErrorf(e, "bad token value: %v", err)
			}
			c.token = tok
		}
	}
	return nil
}

func validateNames(e Element) error {
	var children []Element
	switch x := e.(type) {
	case *Block, *Flags:
		children = activeChildren(x)
	case *Choice:
		children = x.candidates
	default:
		return nil
	}
	seen := make(map[string]bool)
	for _, ch := range children {
		if ch.Name() == "" {
			return configErrorf(e, "unnamed child")
		}
		if seen[ch.Name()] {
			return configErrorf(e, "duplicate child name %q", ch.Name())
		}
		seen[ch.Name()] = true
	}
	return nil
}
