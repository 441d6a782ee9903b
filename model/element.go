// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strings"

	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/expr"
)

// Element is a node of the data model tree.
// The set of implementations is closed: Number, String, Blob, Flags, Flag,
// Block, Choice, Array and Padding.
type Element interface {
	Name() string
	FullName() string
	Parent() Element
	Model() *DataModel
	// Value returns the generated bits of the element, generating the model if needed.
	Value() (*bitstream.Buffer, error)
	// InternalValue returns the value used in relation arithmetic and fixups.
	InternalValue() any
	common() *ElementCommon
}

// Leaf is an element that carries its own value.
type Leaf interface {
	Element
	SetValue(v any) error
	// decode parses exactly n bits at the cursor of buf.
	decode(buf *bitstream.Buffer, n int64) error
	encode() (*bitstream.Buffer, error)
	// fixedBits returns the width of the element if it does not depend on the value.
	fixedBits() (int64, bool)
	setInternal(v any) (bool, error)
}

// Unit is the unit of declared lengths and relation values, in bits.
type Unit int64

const (
	Bits  Unit = 1
	Bytes Unit = 8
)

func (u Unit) String() string {
	if u == Bits {
		return "bits"
	}
	return "bytes"
}

type Placement struct {
	After  string
	Before string
}

type ElementCommon struct {
	// Length is the declared length in bits, or -1.
	Length     int64
	LengthCalc *expr.Expr
	Token      bool
	Mutable    bool
	Constraint *expr.Expr
	Placement  *Placement
	Fixup      Fixup
	// Transformer encodes the element bits on generation and decodes them on crack.
	Transformer Transformer

	name   string
	parent Element
	model  *DataModel
	rels   []int

	fixupRef Element
	token    *bitstream.Buffer

	cracked bool
	start   int64
	end     int64

	// relocated is set when the element was cracked at an offset.
	relocated bool
	lead      *bitstream.Buffer

	pos   int64
	value *bitstream.Buffer
}

func newCommon(name string) ElementCommon {
	return ElementCommon{
		Length:  -1,
		Mutable: true,
		name:    name,
	}
}

func (c *ElementCommon) common() *ElementCommon {
	return c
}

// Common returns the attributes shared by all element kinds.
func Common(e Element) *ElementCommon {
	return e.common()
}

func (c *ElementCommon) Name() string {
	return c.name
}

func (c *ElementCommon) Parent() Element {
	return c.parent
}

func (c *ElementCommon) Model() *DataModel {
	return c.model
}

// SetLength declares a fixed length of n units.
func (c *ElementCommon) SetLength(n int64, unit Unit) {
	c.Length = n * int64(unit)
}

// CrackSpan returns the bit range the element occupied in the last cracked input.
func (c *ElementCommon) CrackSpan() (start, end int64, ok bool) {
	return c.start, c.end, c.cracked
}

// Relocated reports whether the element was cracked at the position given by an offset relation.
func (c *ElementCommon) Relocated() bool {
	return c.relocated
}

// Lead returns the bits emitted before the element, if any.
func (c *ElementCommon) Lead() *bitstream.Buffer {
	return c.lead
}

func (c *ElementCommon) SetLead(lead *bitstream.Buffer) {
	c.lead = lead
	c.invalidate()
}

func (c *ElementCommon) invalidate() {
	if c.model != nil {
		c.model.invalidate()
	}
}

func (c *ElementCommon) restructure() {
	if c.model != nil {
		c.model.restructure()
	}
}

func fullName(e Element) string {
	var parts []string
	for ; e != nil; e = e.Parent() {
		parts = append(parts, e.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func elementValue(e Element) (*bitstream.Buffer, error) {
	c := e.common()
	if c.model == nil {
		return nil, fmt.Errorf("%v is not attached to a data model", describe(e))
	}
	if _, err := c.model.Generate(); err != nil {
		return nil, err
	}
	if c.value == nil {
		return bitstream.New(), nil
	}
	return c.value.Clone(), nil
}

// Kind returns a short human-readable element kind.
func Kind(e Element) string {
	switch e.(type) {
	case *Number:
		return "Number"
	case *String:
		return "String"
	case *Blob:
		return "Blob"
	case *Flags:
		return "Flags"
	case *Flag:
		return "Flag"
	case *Block:
		return "Block"
	case *Choice:
		return "Choice"
	case *Array:
		return "Array"
	case *Padding:
		return "Padding"
	default:
		panic(fmt.Sprintf("unknown element type %T", e))
	}
}

func describe(e Element) string {
	return fmt.Sprintf("%v '%v'", Kind(e), fullName(e))
}

// activeChildren returns the children that take part in generation.
func activeChildren(e Element) []Element {
	switch e := e.(type) {
	case *Block:
		return e.children
	case *Choice:
		if e.selected == nil {
			return nil
		}
		return []Element{e.selected}
	case *Array:
		return e.items
	case *Flags:
		res := make([]Element, len(e.flags))
		for i, f := range e.flags {
			res[i] = f
		}
		return res
	}
	return nil
}

// allChildren additionally returns array templates and unselected choice candidates.
func allChildren(e Element) []Element {
	switch e := e.(type) {
	case *Choice:
		return e.candidates
	case *Array:
		for _, item := range e.items {
			if item == e.Template {
				return e.items
			}
		}
		return append([]Element{e.Template}, e.items...)
	}
	return activeChildren(e)
}

// ForEach calls cb for e and every active descendant in emission order.
func ForEach(e Element, cb func(Element)) {
	cb(e)
	for _, c := range activeChildren(e) {
		ForEach(c, cb)
	}
}

func forEachAll(e Element, cb func(Element)) {
	cb(e)
	for _, c := range allChildren(e) {
		forEachAll(c, cb)
	}
}

func isAncestor(anc, e Element) bool {
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p == anc {
			return true
		}
	}
	return false
}

// attached reports whether e is reachable from the model root through active children.
func attached(e Element) bool {
	c := e.common()
	if c.model == nil {
		return false
	}
	for ; e.Parent() != nil; e = e.Parent() {
		found := false
		for _, ch := range activeChildren(e.Parent()) {
			if ch == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return e == Element(c.model.root)
}

func setParent(e, parent Element) {
	e.common().parent = parent
	var m *DataModel
	if parent != nil {
		m = parent.common().model
	}
	forEachAll(e, func(x Element) {
		x.common().model = m
	})
}

func isLeaf(e Element) bool {
	_, ok := e.(Leaf)
	return ok
}
