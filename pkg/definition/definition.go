// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package definition loads data models from YAML (or JSON) format definitions.
//
// A definition looks like:
//
//	name: packet
//	elements:
//	  - {type: number, name: count, bits: 8,
//	     relations: [{kind: count, of: items}]}
//	  - type: array
//	    name: items
//	    template: {type: string, name: item, length: 1}
package definition

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/expr"
	"gopkg.in/yaml.v3"
)

type Definition struct {
	Name          string     `yaml:"name"`
	MaxIterations int        `yaml:"max_iterations"`
	Elements      []*Element `yaml:"elements"`
}

type Element struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// Number, Flags and Flag.
	Bits     int    `yaml:"bits"`
	Signed   bool   `yaml:"signed"`
	Endian   string `yaml:"endian"`
	Position int    `yaml:"position"`

	// Length is in Unit (bytes by default).
	Length     *int64 `yaml:"length"`
	Unit       string `yaml:"unit"`
	LengthCalc string `yaml:"length_calc"`

	// Value is the default value; Hex is an alternative for blobs.
	Value      yaml.Node `yaml:"value"`
	Hex        string    `yaml:"hex"`
	Token      bool      `yaml:"token"`
	Mutable    *bool     `yaml:"mutable"`
	Constraint string    `yaml:"constraint"`

	Encoding       string `yaml:"encoding"`
	NullTerminated bool   `yaml:"null_terminated"`
	Numeric        bool   `yaml:"numeric"`

	Alignment int64  `yaml:"alignment"`
	AlignedTo string `yaml:"aligned_to"`

	Min      int        `yaml:"min"`
	Max      *int       `yaml:"max"`
	Template *Element   `yaml:"template"`
	Children []*Element `yaml:"children"`
	Select   string     `yaml:"select"`

	Relations   []*Relation `yaml:"relations"`
	After       string      `yaml:"after"`
	Before      string      `yaml:"before"`
	Fixup       *Fixup      `yaml:"fixup"`
	Transformer string      `yaml:"transformer"`
}

// Relation is declared on its source element.
type Relation struct {
	Kind          string `yaml:"kind"`
	Of            string `yaml:"of"`
	Unit          string `yaml:"unit"`
	Relative      bool   `yaml:"relative"`
	RelativeTo    string `yaml:"relative_to"`
	ExpressionGet string `yaml:"expression_get"`
	ExpressionSet string `yaml:"expression_set"`
}

type Fixup struct {
	Type   string `yaml:"type"`
	Ref    string `yaml:"ref"`
	Key    string `yaml:"key"`
	Length int    `yaml:"length"`
	Expr   string `yaml:"expr"`
}

// LoadFile parses and builds the definition in file.
func LoadFile(file string) (*model.DataModel, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	m, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", file, err)
	}
	return m, nil
}

// Load parses and builds a definition. JSON is accepted as a subset of YAML.
func Load(data []byte) (*model.DataModel, error) {
	def, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return def.Build()
}

func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	def := new(Definition)
	if err := dec.Decode(def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty definition")
		}
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("definition has no name")
	}
	return def, nil
}

type pendingRelation struct {
	from model.Element
	def  *Relation
}

type builder struct {
	rels    []pendingRelation
	selects map[*model.Choice]string
}

// Build creates a validated data model from the definition.
func (def *Definition) Build() (*model.DataModel, error) {
	b := &builder{selects: make(map[*model.Choice]string)}
	var children []model.Element
	for _, ed := range def.Elements {
		e, err := b.element(ed)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	m := model.NewDataModel(def.Name, children...)
	m.Options.MaxIterations = def.MaxIterations
	for _, pr := range b.rels {
		if err := addRelation(m, pr.from, pr.def); err != nil {
			return nil, err
		}
	}
	for ch, name := range b.selects {
		if err := ch.Select(name); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *builder) element(ed *Element) (model.Element, error) {
	if ed == nil {
		return nil, fmt.Errorf("empty element")
	}
	if ed.Name == "" {
		return nil, fmt.Errorf("%v element without a name", ed.Type)
	}
	e, err := b.create(ed)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ed.Name, err)
	}
	if err := b.common(e, ed); err != nil {
		return nil, fmt.Errorf("%v: %w", ed.Name, err)
	}
	return e, nil
}

func (b *builder) create(ed *Element) (model.Element, error) {
	switch ed.Type {
	case "number":
		n := model.NewNumber(ed.Name, ed.Bits)
		n.Signed = ed.Signed
		big, err := bigEndian(ed.Endian)
		if err != nil {
			return nil, err
		}
		n.BigEndian = big
		return n, setValue(n, ed)
	case "string":
		s := model.NewString(ed.Name)
		if ed.Encoding != "" {
			s.Encoding = model.Encoding(ed.Encoding)
		}
		s.NullTerminated = ed.NullTerminated
		s.Numeric = ed.Numeric
		return s, setValue(s, ed)
	case "blob":
		bl := model.NewBlob(ed.Name)
		if ed.Hex != "" {
			data, err := hex.DecodeString(ed.Hex)
			if err != nil {
				return nil, fmt.Errorf("bad hex value: %w", err)
			}
			return bl, bl.SetValue(data)
		}
		return bl, setValue(bl, ed)
	case "flags":
		f := model.NewFlags(ed.Name, ed.Bits)
		big, err := bigEndian(ed.Endian)
		if err != nil {
			return nil, err
		}
		f.BigEndian = big
		for _, fd := range ed.Children {
			if fd == nil || fd.Type != "flag" {
				return nil, fmt.Errorf("flags may contain only flag elements")
			}
			flag, err := b.element(fd)
			if err != nil {
				return nil, err
			}
			f.Add(flag.(*model.Flag))
		}
		return f, setValue(f, ed)
	case "flag":
		f := model.NewFlag(ed.Name, ed.Position, ed.Bits)
		return f, setValue(f, ed)
	case "block":
		blk := model.NewBlock(ed.Name)
		for _, cd := range ed.Children {
			ch, err := b.element(cd)
			if err != nil {
				return nil, err
			}
			blk.Add(ch)
		}
		return blk, nil
	case "choice":
		ch := model.NewChoice(ed.Name)
		for _, cd := range ed.Children {
			cand, err := b.element(cd)
			if err != nil {
				return nil, err
			}
			ch.Add(cand)
		}
		if ed.Select != "" {
			b.selects[ch] = ed.Select
		}
		return ch, nil
	case "array":
		if ed.Template == nil {
			return nil, fmt.Errorf("array without a template")
		}
		tmpl, err := b.element(ed.Template)
		if err != nil {
			return nil, err
		}
		maxOccurs := -1
		if ed.Max != nil {
			maxOccurs = *ed.Max
		}
		return model.NewArray(ed.Name, tmpl, ed.Min, maxOccurs), nil
	case "padding":
		p := model.NewPadding(ed.Name, ed.Alignment)
		p.AlignedTo = ed.AlignedTo
		return p, nil
	}
	return nil, fmt.Errorf("unknown element type %q", ed.Type)
}

func (b *builder) common(e model.Element, ed *Element) error {
	c := model.Common(e)
	if ed.Length != nil {
		unit, err := parseUnit(ed.Unit)
		if err != nil {
			return err
		}
		c.SetLength(*ed.Length, unit)
	}
	var err error
	if ed.LengthCalc != "" {
		if c.LengthCalc, err = expr.Parse(ed.LengthCalc); err != nil {
			return fmt.Errorf("length_calc: %w", err)
		}
	}
	if ed.Constraint != "" {
		if c.Constraint, err = expr.Parse(ed.Constraint); err != nil {
			return fmt.Errorf("constraint: %w", err)
		}
	}
	c.Token = ed.Token
	if ed.Mutable != nil {
		c.Mutable = *ed.Mutable
	}
	if ed.After != "" || ed.Before != "" {
		c.Placement = &model.Placement{After: ed.After, Before: ed.Before}
	}
	if ed.Transformer != "" {
		ctor := model.Transformers[ed.Transformer]
		if ctor == nil {
			return fmt.Errorf("unknown transformer %q", ed.Transformer)
		}
		c.Transformer = ctor()
	}
	if ed.Fixup != nil {
		if c.Fixup, err = fixup(ed.Fixup); err != nil {
			return err
		}
	}
	for _, rd := range ed.Relations {
		b.rels = append(b.rels, pendingRelation{e, rd})
	}
	return nil
}

func setValue(e model.Leaf, ed *Element) error {
	if ed.Value.Kind == 0 {
		return nil
	}
	if ed.Value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %v: value must be a scalar", ed.Value.Line)
	}
	if err := e.SetValue(ed.Value.Value); err != nil {
		return fmt.Errorf("line %v: %w", ed.Value.Line, err)
	}
	return nil
}

func fixup(fd *Fixup) (model.Fixup, error) {
	switch fd.Type {
	case "copy":
		return &model.CopyValue{RefName: fd.Ref}, nil
	case "crc32":
		return &model.Crc32{RefName: fd.Ref}, nil
	case "inet":
		return &model.InetChecksum{RefName: fd.Ref}, nil
	case "lrc":
		return &model.LRC{RefName: fd.Ref}, nil
	case "hmac_sha256":
		key, err := hex.DecodeString(fd.Key)
		if err != nil {
			return nil, fmt.Errorf("bad hmac key: %w", err)
		}
		return &model.HMACSHA256{RefName: fd.Ref, Key: key, Length: fd.Length}, nil
	case "expression":
		ex, err := expr.Parse(fd.Expr)
		if err != nil {
			return nil, fmt.Errorf("fixup: %w", err)
		}
		return &model.Expression{RefName: fd.Ref, Expr: ex}, nil
	}
	return nil, fmt.Errorf("unknown fixup %q", fd.Type)
}

func addRelation(m *model.DataModel, from model.Element, rd *Relation) error {
	r := &model.Relation{Relative: rd.Relative}
	switch rd.Kind {
	case "size":
		r.Kind = model.Size
	case "count":
		r.Kind = model.Count
	case "offset":
		r.Kind = model.Offset
	default:
		return fmt.Errorf("%v: unknown relation kind %q", from.FullName(), rd.Kind)
	}
	if rd.Unit != "" {
		unit, err := parseUnit(rd.Unit)
		if err != nil {
			return fmt.Errorf("%v: %w", from.FullName(), err)
		}
		r.Unit = unit
	}
	var err error
	if rd.ExpressionGet != "" {
		if r.ExpressionGet, err = expr.Parse(rd.ExpressionGet); err != nil {
			return fmt.Errorf("%v: expression_get: %w", from.FullName(), err)
		}
	}
	if rd.ExpressionSet != "" {
		if r.ExpressionSet, err = expr.Parse(rd.ExpressionSet); err != nil {
			return fmt.Errorf("%v: expression_set: %w", from.FullName(), err)
		}
	}
	of := model.Find(from, rd.Of)
	if of == nil {
		return fmt.Errorf("%v: unknown %v relation target %q", from.FullName(), rd.Kind, rd.Of)
	}
	var relativeTo model.Element
	if rd.RelativeTo != "" {
		if relativeTo = model.Find(from, rd.RelativeTo); relativeTo == nil {
			return fmt.Errorf("%v: unknown relative_to element %q", from.FullName(), rd.RelativeTo)
		}
	}
	return m.AddRelation(r, from, of, relativeTo)
}

func bigEndian(endian string) (bool, error) {
	switch endian {
	case "", "little":
		return false, nil
	case "big":
		return true, nil
	}
	return false, fmt.Errorf("unknown endian %q", endian)
}

func parseUnit(unit string) (model.Unit, error) {
	switch unit {
	case "", "bytes":
		return model.Bytes, nil
	case "bits":
		return model.Bits, nil
	}
	return 0, fmt.Errorf("unknown unit %q", unit)
}
