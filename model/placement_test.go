// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childNames(b *Block) []string {
	var names []string
	for _, c := range b.Children() {
		names = append(names, c.Name())
	}
	return names
}

func TestPlacementAfter(t *testing.T) {
	data := NewBlob("Data")
	data.Placement = &Placement{After: "Block1"}
	m := NewDataModel("M", NewBlock("Block1", data))
	require.NoError(t, m.CrackBytes([]byte("Hello World")))
	assert.Equal(t, []string{"Block1", "Data"}, childNames(m.Root()))
	assert.Equal(t, Element(m.Root()), data.Parent())
	assert.Equal(t, []byte("Hello World"), data.InternalValue())
	assert.Equal(t, []byte("Hello World"), generate(t, m))
}

func TestPlacementBefore(t *testing.T) {
	data := NewBlob("Data")
	data.Placement = &Placement{Before: "Block2"}
	m := NewDataModel("M", NewBlock("Block1", data), NewBlock("Block2"))
	require.NoError(t, m.CrackBytes([]byte("Hello World")))
	assert.Equal(t, []string{"Block1", "Data", "Block2"}, childNames(m.Root()))
}

func TestPlacementSameName(t *testing.T) {
	data := NewBlob("Data")
	data.Placement = &Placement{After: "Block1"}
	m := NewDataModel("M", NewBlock("Block1", data), NewBlock("Data"))
	require.NoError(t, m.CrackBytes([]byte("Hello World")))
	assert.Equal(t, []string{"Block1", "Data_0", "Data"}, childNames(m.Root()))
	assert.Equal(t, "M.Data_0", data.FullName())
}

func TestPlacementKeepsRelations(t *testing.T) {
	size := fixedString("TheString", 2)
	size.Numeric = true
	data := NewBlob("Data")
	data.Placement = &Placement{After: "Block1"}
	m := NewDataModel("M", size, NewBlock("Block1", data), NewBlob("Tail"))
	r := relate(t, m, Size, size, data)
	require.NoError(t, m.CrackBytes([]byte("11Hello World!")))
	assert.Equal(t, "M.Data", r.OfName())
	assert.Equal(t, "M.TheString", r.FromName())
	assert.Equal(t, []byte("!"), m.Find("Tail").InternalValue())

	// Generation after placement emits Data in its new position.
	require.NoError(t, data.SetValue("Hi"))
	assert.Equal(t, []byte("02Hi!"), generate(t, m))
}

func TestPlacementFixup(t *testing.T) {
	s := fixedString("TheString", 11)
	s.Fixup = &CopyValue{RefName: "Data"}
	data := NewBlob("Data")
	data.Placement = &Placement{After: "Block1"}
	m := NewDataModel("M", s, NewBlock("Block1", data))
	require.NoError(t, m.CrackBytes([]byte("HELLO WORLDHello World")))
	assert.Equal(t, "HELLO WORLD", s.Str())
	assert.Equal(t, []byte("Hello WorldHello World"), generate(t, m))
	assert.Equal(t, "Hello World", s.Str())
}

func TestPlacementRecrack(t *testing.T) {
	data := NewBlob("Data")
	data.Placement = &Placement{After: "Block1"}
	m := NewDataModel("M", NewBlock("Block1", data), NewBlock("Data"))
	require.NoError(t, m.CrackBytes([]byte("abc")))
	require.NoError(t, m.CrackBytes([]byte("xyz")))
	assert.Equal(t, []string{"Block1", "Data_0", "Data"}, childNames(m.Root()))
	assert.Equal(t, []byte("xyz"), data.InternalValue())
}

func TestPlacementOnGenerate(t *testing.T) {
	data := NewBlob("Data")
	require.NoError(t, data.SetValue("d"))
	data.Placement = &Placement{Before: "First"}
	first := NewBlob("First")
	require.NoError(t, first.SetValue("f"))
	m := NewDataModel("M", first, NewBlock("Block1", data))
	assert.Equal(t, []byte("df"), generate(t, m))
	assert.Equal(t, []string{"Data", "First", "Block1"}, childNames(m.Root()))
}

func TestPlacementErrors(t *testing.T) {
	tests := []struct {
		name      string
		placement *Placement
		err       string
	}{
		{
			name:      "both",
			placement: &Placement{After: "Block1", Before: "Block1"},
			err:       `Blob 'M.Block1.Data': placement can't be both after "Block1" and before "Block1"`,
		},
		{
			name:      "unknown",
			placement: &Placement{After: "Nope"},
			err:       `Blob 'M.Block1.Data': unknown placement target "Nope"`,
		},
		{
			name:      "empty",
			placement: &Placement{},
			err:       `Blob 'M.Block1.Data': placement without a target`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := NewBlob("Data")
			data.Placement = test.placement
			m := NewDataModel("M", NewBlock("Block1", data))
			err := m.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "%v", err)
			assert.Equal(t, test.err, err.Error())
		})
	}
}
