// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package snapshot exports the state of a cracked data model (leaf values,
// array lengths, choice selections and the layout of elements found at offsets) into a compact CBOR document and
// imports it back into a fresh model of the same definition.
// It is the hand-off format between the engine and an external mutation layer:
// the mutator edits leaf values and the generator recomputes all relations.
package snapshot

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/uuid"
)

type Snapshot struct {
	ID      uuid.UUID `cbor:"1,keyasint"`
	Model   string    `cbor:"2,keyasint"`
	Created time.Time `cbor:"3,keyasint"`
	// Values are in tree pre-order, containers before their children.
	Values []Value `cbor:"4,keyasint"`
}

type Kind int

const (
	KindInt Kind = iota
	KindString
	KindBytes
	KindArray
	KindChoice
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindChoice:
		return "choice"
	case KindBlock:
		return "block"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Value struct {
	Path    string `cbor:"1,keyasint"`
	Kind    Kind   `cbor:"2,keyasint"`
	Mutable bool   `cbor:"3,keyasint,omitempty"`
	// Int holds numeric values and 1 for expanded arrays.
	Int int64 `cbor:"4,keyasint,omitempty"`
	// Str holds string values and the selected candidate of choices.
	Str  string `cbor:"5,keyasint,omitempty"`
	Data []byte `cbor:"6,keyasint,omitempty"`
	// Bits is the exact bit length of Data, or the item count of arrays.
	Bits int64 `cbor:"7,keyasint,omitempty"`
	// Order lists the children of blocks that were rearranged by offsets.
	Order []string `cbor:"8,keyasint,omitempty"`
	// Lead holds the bits emitted before an element found at an offset.
	Lead     []byte `cbor:"9,keyasint,omitempty"`
	LeadBits int64  `cbor:"10,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Take records the current state of m.
func Take(m *model.DataModel) *Snapshot {
	snap := &Snapshot{
		ID:      uuid.New(),
		Model:   m.Name(),
		Created: time.Now().UTC(),
	}
	model.ForEach(m.Root(), func(e model.Element) {
		v := Value{
			Path:    e.FullName(),
			Mutable: model.Common(e).Mutable,
		}
		switch x := e.(type) {
		case *model.Number:
			v.Kind, v.Int = KindInt, x.Int()
		case *model.Flag:
			v.Kind, v.Int = KindInt, x.InternalValue().(int64)
		case *model.String:
			v.Kind, v.Str = KindString, x.Str()
		case *model.Blob:
			data := x.Data()
			v.Kind, v.Data, v.Bits = KindBytes, data.Bytes(), data.LengthBits()
		case *model.Array:
			v.Kind, v.Bits = KindArray, int64(x.Len())
			if x.Expanded() {
				v.Int = 1
			}
		case *model.Choice:
			sel := x.Selected()
			if sel == nil {
				return
			}
			v.Kind, v.Str = KindChoice, sel.Name()
		case *model.Block:
			v.Kind = KindBlock
			if rearranged(x) {
				for _, ch := range x.Children() {
					v.Order = append(v.Order, ch.Name())
				}
			}
		default:
			return
		}
		if lead := model.Common(e).Lead(); lead != nil {
			v.Lead, v.LeadBits = lead.Bytes(), lead.LengthBits()
		}
		if v.Kind == KindBlock && v.Order == nil && v.Lead == nil {
			return
		}
		snap.Values = append(snap.Values, v)
	})
	return snap
}

func rearranged(b *model.Block) bool {
	for _, ch := range b.Children() {
		if model.Common(ch).Relocated() {
			return true
		}
	}
	return false
}

// Apply restores the recorded state into m, which must be built from the same definition.
// Placement is applied to m first since values of placed elements are recorded by their new names.
func (snap *Snapshot) Apply(m *model.DataModel) error {
	if snap.Model != m.Name() {
		return fmt.Errorf("snapshot of model %q can't be applied to model %q", snap.Model, m.Name())
	}
	if err := m.ApplyPlacement(); err != nil {
		return fmt.Errorf("snapshot %v: %w", snap.ID, err)
	}
	for _, v := range snap.Values {
		e := m.Find(v.Path)
		if e == nil || e.FullName() != v.Path {
			return fmt.Errorf("snapshot %v: no element %v", snap.ID, v.Path)
		}
		if err := apply(e, v); err != nil {
			return fmt.Errorf("snapshot %v: %v: %w", snap.ID, v.Path, err)
		}
	}
	return nil
}

func apply(e model.Element, v Value) error {
	if v.LeadBits != 0 {
		if v.LeadBits > int64(len(v.Lead))*8 {
			return fmt.Errorf("%v lead bits recorded for %v bytes", v.LeadBits, len(v.Lead))
		}
		lead := bitstream.New()
		lead.WriteBitsFromBytes(v.Lead, v.LeadBits)
		model.Common(e).SetLead(lead)
	}
	switch v.Kind {
	case KindBlock:
		blk, ok := e.(*model.Block)
		if !ok {
			return fmt.Errorf("recorded block, found %v", model.Kind(e))
		}
		if v.Order == nil {
			return nil
		}
		return blk.Reorder(v.Order)
	case KindArray:
		arr, ok := e.(*model.Array)
		if !ok {
			return fmt.Errorf("recorded array, found %v", model.Kind(e))
		}
		return resize(arr, int(v.Bits), v.Int != 0)
	case KindChoice:
		ch, ok := e.(*model.Choice)
		if !ok {
			return fmt.Errorf("recorded choice, found %v", model.Kind(e))
		}
		return ch.Select(v.Str)
	}
	leaf, ok := e.(model.Leaf)
	if !ok {
		return fmt.Errorf("recorded %v value, found %v", v.Kind, model.Kind(e))
	}
	switch v.Kind {
	case KindInt:
		return leaf.SetValue(v.Int)
	case KindString:
		return leaf.SetValue(v.Str)
	case KindBytes:
		buf := bitstream.New()
		if v.Bits > int64(len(v.Data))*8 {
			return fmt.Errorf("%v bits recorded for %v bytes", v.Bits, len(v.Data))
		}
		buf.WriteBitsFromBytes(v.Data, v.Bits)
		return leaf.SetValue(buf)
	}
	return fmt.Errorf("unknown value kind %v", v.Kind)
}

func resize(arr *model.Array, n int, expanded bool) error {
	if expanded {
		arr.Expand()
	}
	for arr.Len() < n {
		if _, err := arr.Append(); err != nil {
			return err
		}
	}
	for arr.Len() > n {
		if err := arr.Remove(arr.Len() - 1); err != nil {
			return err
		}
	}
	return nil
}

func (snap *Snapshot) Marshal() ([]byte, error) {
	return encMode.Marshal(snap)
}

func Unmarshal(data []byte) (*Snapshot, error) {
	snap := new(Snapshot)
	if err := decMode.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// Write encodes snapshots to w one after another.
func Write(w io.Writer, snaps ...*Snapshot) error {
	enc := encMode.NewEncoder(w)
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes all snapshots from r.
func Read(r io.Reader) ([]*Snapshot, error) {
	dec := decMode.NewDecoder(r)
	var snaps []*Snapshot
	for {
		snap := new(Snapshot)
		err := dec.Decode(snap)
		if err == io.EOF {
			return snaps, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %v: %w", len(snaps), err)
		}
		snaps = append(snaps, snap)
	}
}
