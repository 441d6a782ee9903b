// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/syzformat/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T) *model.DataModel {
	count := model.NewNumber("count", 8)
	rec := model.NewBlock("rec", model.NewNumber("len", 8), model.NewBlob("data"))
	arr := model.NewArray("recs", rec, 0, -1)
	name := model.NewString("name")
	name.NullTerminated = true
	short := model.NewNumber("short", 8)
	require.NoError(t, short.SetValue(0x11))
	short.Token = true
	kind := model.NewChoice("kind", short, model.NewNumber("long", 16))
	flags := model.NewFlags("flags", 8, model.NewFlag("hi", 0, 4), model.NewFlag("lo", 4, 4))
	m := model.NewDataModel("M", count, arr, name, flags, kind)
	require.NoError(t, m.AddRelation(&model.Relation{Kind: model.Count}, count, arr, nil))
	require.NoError(t, m.AddRelation(&model.Relation{Kind: model.Size}, rec.Child("len"), rec.Child("data"), nil))
	return m
}

func TestTakeApply(t *testing.T) {
	m := build(t)
	data := []byte{2, 1, 'a', 3, 'b', 'c', 'd', 'x', 'y', 0, 0x5a, 0x34, 0x12}
	require.NoError(t, m.CrackBytes(data))
	snap := Take(m)
	assert.Equal(t, "M", snap.Model)

	enc, err := snap.Marshal()
	require.NoError(t, err)
	dec, err := Unmarshal(enc)
	require.NoError(t, err)
	if diff := cmp.Diff(snap.Values, dec.Values); diff != "" {
		t.Fatalf("values differ after decoding (-want +got):\n%s", diff)
	}
	assert.Equal(t, snap.ID, dec.ID)
	assert.True(t, snap.Created.Equal(dec.Created))

	fresh := build(t)
	require.NoError(t, dec.Apply(fresh))
	out, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "long", fresh.Find("kind").(*model.Choice).Selected().Name())
	assert.Equal(t, int64(5), fresh.Find("flags.hi").InternalValue())
}

func TestApplyMutated(t *testing.T) {
	m := build(t)
	require.NoError(t, m.CrackBytes([]byte{1, 2, 'a', 'b', 'n', 0, 0, 0x11}))
	snap := Take(m)
	var values []string
	for i := range snap.Values {
		v := &snap.Values[i]
		values = append(values, v.Path+":"+v.Kind.String())
		switch v.Path {
		case "M.recs.rec_0.data":
			v.Data, v.Bits = []byte("hello"), 40
		case "M.name":
			v.Str = "longer"
		}
	}
	assert.Equal(t, []string{
		"M.count:int",
		"M.recs:array",
		"M.recs.rec_0.len:int",
		"M.recs.rec_0.data:bytes",
		"M.name:string",
		"M.flags.hi:int",
		"M.flags.lo:int",
		"M.kind:choice",
		"M.kind.short:int",
	}, values)

	fresh := build(t)
	require.NoError(t, snap.Apply(fresh))
	out, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01\x05hellolonger\x00\x00\x11"), out)
}

func TestApplyUnexpanded(t *testing.T) {
	m := build(t)
	require.NoError(t, m.Find("rec.data").(*model.Blob).SetValue("zz"))
	want, err := m.Bytes()
	require.NoError(t, err)
	fresh := build(t)
	require.NoError(t, Take(m).Apply(fresh))
	assert.False(t, fresh.Find("recs").(*model.Array).Expanded())
	out, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestApplyErrors(t *testing.T) {
	m := build(t)
	require.NoError(t, m.CrackBytes([]byte{0, 0, 0, 0x11}))
	snap := Take(m)

	other := model.NewDataModel("O", model.NewNumber("count", 8))
	assert.EqualError(t, snap.Apply(other), `snapshot of model "M" can't be applied to model "O"`)

	snap.Values = append(snap.Values, Value{Path: "M.missing", Kind: KindInt})
	err := snap.Apply(build(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no element M.missing")

	snap.Values[len(snap.Values)-1] = Value{Path: "M.count", Kind: KindInt, Int: 1000}
	err = snap.Apply(build(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not fit into unsigned 8 bits")

	snap.Values[len(snap.Values)-1] = Value{Path: "M.name", Kind: KindArray}
	err = snap.Apply(build(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorded array, found String")

	_, err = Unmarshal([]byte{0xff})
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	var snaps []*Snapshot
	for _, data := range [][]byte{{0, 0, 0, 0x11}, {1, 1, 'a', 0, 0, 0x11}} {
		m := build(t)
		require.NoError(t, m.CrackBytes(data))
		snaps = append(snaps, Take(m))
	}
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, snaps...))
	got, err := Read(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range snaps {
		assert.Equal(t, snaps[i].ID, got[i].ID)
		assert.Equal(t, snaps[i].Values, got[i].Values)
	}
}

func TestApplyPlaced(t *testing.T) {
	build := func() *model.DataModel {
		data := model.NewBlob("Data")
		data.Placement = &model.Placement{After: "Block1"}
		return model.NewDataModel("M", model.NewBlock("Block1", data), model.NewBlock("Data"))
	}
	m := build()
	require.NoError(t, m.CrackBytes([]byte("Hello")))
	snap := Take(m)
	require.Len(t, snap.Values, 1)
	assert.Equal(t, "M.Data_0", snap.Values[0].Path)

	fresh := build()
	require.NoError(t, snap.Apply(fresh))
	out, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), out)
}

func TestApplyOffsetLayout(t *testing.T) {
	build := func() *model.DataModel {
		off1 := model.NewNumber("off1", 8)
		d1 := model.NewString("d1")
		d1.SetLength(2, model.Bytes)
		off2 := model.NewNumber("off2", 8)
		d2 := model.NewString("d2")
		d2.SetLength(2, model.Bytes)
		m := model.NewDataModel("M", model.NewBlock("Table", off1, d1, off2, d2))
		require.NoError(t, m.AddRelation(&model.Relation{Kind: model.Offset}, off1, d1, nil))
		require.NoError(t, m.AddRelation(&model.Relation{Kind: model.Offset}, off2, d2, nil))
		return m
	}
	data := []byte{3, 5, 0xee, 'a', 'b', 'c', 'd'}
	m := build()
	require.NoError(t, m.CrackBytes(data))
	enc, err := Take(m).Marshal()
	require.NoError(t, err)
	snap, err := Unmarshal(enc)
	require.NoError(t, err)
	assert.Equal(t, Value{
		Path:    "M.Table",
		Kind:    KindBlock,
		Mutable: true,
		Order:   []string{"off1", "off2", "d1", "d2"},
	}, snap.Values[0])

	fresh := build()
	require.NoError(t, snap.Apply(fresh))
	out, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)

	snap.Values[0].Order = []string{"off1", "d1"}
	assert.Error(t, snap.Apply(build()))
}
