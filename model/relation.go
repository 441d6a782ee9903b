// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strings"

	"github.com/google/syzformat/pkg/expr"
)

type RelationKind int

const (
	Size RelationKind = iota
	Count
	Offset
)

func (k RelationKind) String() string {
	switch k {
	case Size:
		return "size"
	case Count:
		return "count"
	case Offset:
		return "offset"
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// Relation binds the value of From to a measured property of Of.
type Relation struct {
	Kind RelationKind
	// Unit of size and offset values. Zero means bytes.
	Unit     Unit
	Relative bool
	// ExpressionGet maps the measured value to the From value on generation.
	ExpressionGet *expr.Expr
	// ExpressionSet maps the cracked From value to the measurement on crack.
	ExpressionSet *expr.Expr

	from       Element
	of         Element
	relativeTo Element
}

func (r *Relation) From() Element       { return r.from }
func (r *Relation) Of() Element         { return r.of }
func (r *Relation) RelativeTo() Element { return r.relativeTo }
func (r *Relation) FromName() string    { return r.from.FullName() }
func (r *Relation) OfName() string      { return r.of.FullName() }

func (r *Relation) String() string {
	return fmt.Sprintf("%v-of(%v) in %v", r.Kind, r.of.FullName(), r.from.FullName())
}

func (r *Relation) unit() int64 {
	switch {
	case r.Kind == Count:
		return 1
	case r.Unit == 0:
		return int64(Bytes)
	}
	return int64(r.Unit)
}

func (r *Relation) endpoints() []Element {
	res := []Element{r.from, r.of}
	if r.relativeTo != nil {
		res = append(res, r.relativeTo)
	}
	return res
}

// live reports whether all endpoints are part of the current tree.
func (r *Relation) live() bool {
	for _, e := range r.endpoints() {
		if !attached(e) {
			return false
		}
	}
	return true
}

// toFrom maps a measured value to the value of From.
func (r *Relation) toFrom(measured int64) (int64, error) {
	if r.ExpressionGet == nil {
		return measured, nil
	}
	return r.ExpressionGet.EvalInt(r.env(measured))
}

// fromValue maps a cracked From value to the measurement.
func (r *Relation) fromValue(v int64) (int64, error) {
	if r.ExpressionSet == nil {
		return v, nil
	}
	return r.ExpressionSet.EvalInt(r.env(v))
}

func (r *Relation) env(v int64) expr.Env {
	return expr.Chain{
		expr.Vars{r.Kind.String(): v, "value": v},
		scopeEnv{r.from},
	}
}

// AddRelation validates r and binds it to its endpoints.
// relativeTo may be nil.
func (m *DataModel) AddRelation(r *Relation, from, of, relativeTo Element) error {
	switch f := from.(type) {
	case *Number, *Flag:
	case *String:
		if !f.Numeric {
			return configErrorf(from, "non-numeric string can't be a relation source")
		}
	default:
		return configErrorf(from, "can't be a relation source")
	}
	if of == nil {
		return configErrorf(from, "%v relation without a target", r.Kind)
	}
	switch r.Kind {
	case Size:
		if _, ok := of.(*Flags); ok {
			return configErrorf(from, "size relation can't refer to %v", describe(of))
		}
	case Count:
		if _, ok := of.(*Array); !ok {
			return configErrorf(from, "count relation refers to %v, not an array", describe(of))
		}
	case Offset:
	default:
		return configErrorf(from, "unknown relation kind %v", r.Kind)
	}
	if relativeTo != nil && !r.Relative {
		return configErrorf(from, "relativeTo without relative offset")
	}
	if relativeTo != nil && r.Kind != Offset {
		return configErrorf(from, "relativeTo on a %v relation", r.Kind)
	}
	r.from, r.of, r.relativeTo = from, of, relativeTo
	m.bind(r)
	m.invalidate()
	return nil
}

func (m *DataModel) bind(r *Relation) int {
	idx := len(m.rels)
	m.rels = append(m.rels, r)
	seen := map[Element]bool{}
	for _, e := range r.endpoints() {
		if !seen[e] {
			seen[e] = true
			c := e.common()
			c.rels = append(c.rels, idx)
		}
	}
	return idx
}

// Relations returns the relations that e takes part in, in arena order.
func Relations(e Element) []*Relation {
	c := e.common()
	if c.model == nil {
		return nil
	}
	var res []*Relation
	for _, idx := range c.rels {
		res = append(res, c.model.rels[idx])
	}
	return res
}

// inbound returns live relations of the kind whose target is e.
func inbound(e Element, kind RelationKind) []*Relation {
	var res []*Relation
	for _, r := range Relations(e) {
		if r.Kind == kind && r.of == e {
			res = append(res, r)
		}
	}
	return res
}

// scopeEnv resolves expression names against the tree around an element.
type scopeEnv struct {
	e Element
}

func (env scopeEnv) Lookup(path []string) (any, bool) {
	target := Find(env.e, strings.Join(path, "."))
	if target == nil {
		return nil, false
	}
	return target.InternalValue(), true
}
