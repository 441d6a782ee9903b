// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/syzformat/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	inner := NewNumber("x", 8)
	deep := NewBlock("deep", NewBlock("deeper", inner))
	other := NewNumber("x", 8)
	m := NewDataModel("M", NewBlock("a", other), deep)

	tests := []struct {
		from Element
		name string
		want Element
	}{
		{m.Root(), "x", other},
		{m.Root(), "deep.deeper.x", inner},
		{m.Root(), "deeper.x", inner},
		{m.Root(), "M.a.x", other},
		{inner, "x", inner},
		{deep, "x", inner},
		{inner, "a.x", other},
		{m.Root(), "nope", nil},
		{m.Root(), "", nil},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, Find(test.from, test.name), "%v from %v", test.name, test.from.FullName())
	}
}

func TestFindThroughArray(t *testing.T) {
	arr := NewArray("arr", NewBlock("item", NewNumber("v", 8)), 0, -1)
	m := NewDataModel("M", arr)
	require.NotNil(t, m.Find("arr.v"))
	require.NoError(t, m.CrackBytes([]byte{1, 2}))
	assert.Equal(t, int64(1), m.Find("arr.v").InternalValue())
	assert.Equal(t, int64(2), m.Find("arr.item_1.v").InternalValue())
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *DataModel
		err   string
	}{
		{
			name: "duplicate",
			build: func() *DataModel {
				return NewDataModel("M", NewNumber("a", 8), NewNumber("a", 8))
			},
			err: `Block 'M': duplicate child name "a"`,
		},
		{
			name: "width",
			build: func() *DataModel {
				return NewDataModel("M", NewNumber("a", 65))
			},
			err: `Number 'M.a': bad width 65`,
		},
		{
			name: "encoding",
			build: func() *DataModel {
				s := NewString("s")
				s.Encoding = "ebcdic"
				return NewDataModel("M", s)
			},
			err: `String 'M.s': unknown encoding "ebcdic"`,
		},
		{
			name: "flags overlap",
			build: func() *DataModel {
				return NewDataModel("M", NewFlags("f", 8, NewFlag("a", 0, 4), NewFlag("b", 2, 2)))
			},
			err: `Flag 'M.f.b': overlaps with Flag 'M.f.a'`,
		},
		{
			name: "flags range",
			build: func() *DataModel {
				return NewDataModel("M", NewFlags("f", 8, NewFlag("a", 6, 4)))
			},
			err: `Flag 'M.f.a': flag at bit 6 with width 4 does not fit into 8 bits`,
		},
		{
			name: "array bounds",
			build: func() *DataModel {
				return NewDataModel("M", NewArray("a", NewNumber("a", 8), 3, 2))
			},
			err: `Array 'M.a': bad occurrence bounds [3, 2]`,
		},
		{
			name: "empty choice",
			build: func() *DataModel {
				return NewDataModel("M", NewChoice("c"))
			},
			err: `Choice 'M.c': no candidates`,
		},
		{
			name: "fixup ref",
			build: func() *DataModel {
				n := NewNumber("n", 8)
				n.Fixup = &Crc32{RefName: "missing"}
				return NewDataModel("M", n)
			},
			err: `Number 'M.n': unknown fixup reference "missing"`,
		},
		{
			name: "block token",
			build: func() *DataModel {
				b := NewBlock("b")
				b.Token = true
				return NewDataModel("M", b)
			},
			err: `Block 'M.b': only leaf elements can be tokens`,
		},
		{
			name: "aligned to",
			build: func() *DataModel {
				p := NewPadding("p", 32)
				p.AlignedTo = "missing"
				return NewDataModel("M", p)
			},
			err: `Padding 'M.p': unknown alignedTo element "missing"`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := test.build()
			err := m.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "%v", err)
			assert.Equal(t, test.err, err.Error())
			_, err = m.Generate()
			require.Error(t, err)
			require.Error(t, m.CrackBytes([]byte{0}))
		})
	}
}

func TestAddRelationErrors(t *testing.T) {
	blob := NewBlob("blob")
	text := NewString("text")
	num := NewNumber("num", 8)
	flags := NewFlags("flags", 8, NewFlag("f", 0, 8))
	m := NewDataModel("M", blob, text, num, flags)
	for _, test := range []struct {
		r             *Relation
		from, of, rel Element
	}{
		{&Relation{Kind: Size}, blob, num, nil},
		{&Relation{Kind: Size}, text, num, nil},
		{&Relation{Kind: Size}, num, flags, nil},
		{&Relation{Kind: Count}, num, blob, nil},
		{&Relation{Kind: Offset}, num, blob, text},
		{&Relation{Kind: Size, Relative: true}, num, blob, text},
		{&Relation{Kind: Size}, num, nil, nil},
	} {
		err := m.AddRelation(test.r, test.from, test.of, test.rel)
		var ce *ConfigError
		assert.True(t, errors.As(err, &ce), "%v", err)
	}
	assert.Empty(t, m.Relations())

	r := &Relation{Kind: Size}
	require.NoError(t, m.AddRelation(r, m.Find("flags.f"), blob, nil))
	assert.Equal(t, []*Relation{r}, Relations(blob))
	assert.Equal(t, "size-of(M.blob) in M.flags.f", r.String())
}

func TestRelationToForeignModel(t *testing.T) {
	num := NewNumber("num", 8)
	m := NewDataModel("M", num)
	foreign := NewBlob("foreign")
	NewDataModel("O", foreign)
	require.NoError(t, m.AddRelation(&Relation{Kind: Size}, num, foreign, nil))
	err := m.Validate()
	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "%v", err)
}

func TestPaddingAlignedTo(t *testing.T) {
	pad := NewPadding("pad", 32)
	pad.AlignedTo = "start"
	m := NewDataModel("M", NewNumber("pre", 8), NewNumber("start", 8), NewNumber("x", 8), pad, NewNumber("y", 8))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, generate(t, m))
	roundTrip(t, m, []byte{1, 2, 3, 0, 0, 4})
	assert.Equal(t, int64(4), m.Find("y").InternalValue())
}

func TestClone(t *testing.T) {
	count := NewNumber("count", 8)
	arr := NewArray("arr", NewBlock("rec", NewNumber("len", 8), NewBlob("data")), 0, -1)
	m := NewDataModel("M", count, arr)
	relate(t, m, Count, count, arr)
	tmpl := arr.Template.(*Block)
	relate(t, m, Size, tmpl.Child("len"), tmpl.Child("data"))
	data := []byte{2, 1, 'a', 3, 'b', 'c', 'd'}
	require.NoError(t, m.CrackBytes(data))

	c := m.Clone()
	assert.Equal(t, data, generate(t, c))
	assert.Len(t, c.Relations(), len(m.Relations()))
	for i, r := range c.Relations() {
		assert.Equal(t, m.Relations()[i].String(), r.String())
		assert.Equal(t, c, r.From().Model())
	}

	carr := c.Find("arr").(*Array)
	item, err := carr.Append()
	require.NoError(t, err)
	require.NoError(t, item.(*Block).Child("data").(*Blob).SetValue("xy"))
	assert.Equal(t, []byte{3, 1, 'a', 3, 'b', 'c', 'd', 2, 'x', 'y'}, generate(t, c))
	assert.Equal(t, data, generate(t, m))
	assert.Equal(t, 2, arr.Len())
}

func TestRoundTripRandom(t *testing.T) {
	build := func() *DataModel {
		count := NewNumber("count", 16)
		count.BigEndian = true
		rec := NewBlock("rec", NewNumber("len", 8), NewBlob("data"))
		arr := NewArray("recs", rec, 0, -1)
		tail := NewBlob("tail")
		m := NewDataModel("M", count, arr, tail)
		if err := m.AddRelation(&Relation{Kind: Count}, count, arr, nil); err != nil {
			t.Fatal(err)
		}
		if err := m.AddRelation(&Relation{Kind: Size}, rec.Child("len"), rec.Child("data"), nil); err != nil {
			t.Fatal(err)
		}
		return m
	}
	r := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		m := build()
		arr := m.Find("recs").(*Array)
		for n := r.Intn(5) + 1; arr.Len() < n; {
			_, err := arr.Append()
			require.NoError(t, err)
		}
		var want [][]byte
		for _, item := range arr.Items() {
			data := make([]byte, r.Intn(20))
			r.Read(data)
			require.NoError(t, item.(*Block).Child("data").(*Blob).SetValue(data))
			want = append(want, data)
		}
		tail := make([]byte, r.Intn(8))
		r.Read(tail)
		require.NoError(t, m.Find("tail").(*Blob).SetValue(tail))
		out := generate(t, m)

		fresh := build()
		require.NoError(t, fresh.CrackBytes(out), "%x", out)
		farr := fresh.Find("recs").(*Array)
		var got [][]byte
		for _, item := range farr.Items() {
			got = append(got, item.(*Block).Child("data").InternalValue().([]byte))
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("iteration %v: records differ (-want +got):\n%s", i, diff)
		}
		assert.Equal(t, tail, fresh.Find("tail").InternalValue(), fmt.Sprintf("iteration %v", i))
		assert.Equal(t, out, generate(t, fresh))
	}
}
