// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/google/syzformat/pkg/bitstream"
)

// Block is the concatenation of its children.
type Block struct {
	ElementCommon

	children []Element
}

func NewBlock(name string, children ...Element) *Block {
	b := &Block{ElementCommon: newCommon(name)}
	for _, c := range children {
		b.Add(c)
	}
	return b
}

func (b *Block) FullName() string { return fullName(b) }

func (b *Block) Value() (*bitstream.Buffer, error) { return elementValue(b) }

func (b *Block) InternalValue() any { return generatedBytes(b) }

func (b *Block) Children() []Element {
	return append([]Element{}, b.children...)
}

// Child returns the direct child with the given name.
func (b *Block) Child(name string) Element {
	for _, c := range b.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (b *Block) Add(e Element) {
	b.Insert(len(b.children), e)
}

func (b *Block) Insert(idx int, e Element) {
	if e.Parent() != nil {
		panic(fmt.Sprintf("%v already has a parent", describe(e)))
	}
	b.children = append(b.children, nil)
	copy(b.children[idx+1:], b.children[idx:])
	b.children[idx] = e
	setParent(e, b)
	b.restructure()
}

// Remove detaches the child and returns its former index, or -1.
func (b *Block) Remove(e Element) int {
	for i, c := range b.children {
		if c == e {
			b.children = append(b.children[:i:i], b.children[i+1:]...)
			e.common().parent = nil
			b.restructure()
			return i
		}
	}
	return -1
}

func generatedBytes(e Element) any {
	if v := e.common().value; v != nil {
		return v.Bytes()
	}
	return []byte(nil)
}
