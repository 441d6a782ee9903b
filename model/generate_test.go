// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/google/syzformat/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, m *DataModel) []byte {
	t.Helper()
	data, err := m.Bytes()
	require.NoError(t, err)
	return data
}

func TestGenerateSize(t *testing.T) {
	size := NewNumber("size", 8)
	data := NewBlob("data")
	require.NoError(t, data.SetValue("12345"))
	m := NewDataModel("M", size, data)
	relate(t, m, Size, size, data)
	assert.Equal(t, []byte("\x0512345"), generate(t, m))
	assert.Equal(t, int64(5), size.Int())

	require.NoError(t, data.SetValue("123456"))
	assert.Equal(t, []byte("\x06123456"), generate(t, m))
	assert.Equal(t, int64(6), size.Int())
}

func TestGenerateSizeUnits(t *testing.T) {
	tests := []struct {
		unit Unit
		get  string
		want int64
	}{
		{unit: Bytes, want: 4},
		{unit: Bits, want: 32},
		{unit: Bytes, get: "size * 2 + 1", want: 9},
	}
	for _, test := range tests {
		size := NewNumber("size", 16)
		data := NewBlob("data")
		require.NoError(t, data.SetValue("abcd"))
		m := NewDataModel("M", size, data)
		r := &Relation{Kind: Size, Unit: test.unit}
		if test.get != "" {
			r.ExpressionGet = expr.MustParse(test.get)
		}
		require.NoError(t, m.AddRelation(r, size, data, nil))
		generate(t, m)
		assert.Equal(t, test.want, size.Int())
	}
}

func TestGenerateSizeWraps(t *testing.T) {
	size := NewNumber("size", 4)
	pad := NewNumber("pad", 4)
	data := NewBlob("data")
	require.NoError(t, data.SetValue(make([]byte, 20)))
	m := NewDataModel("M", size, pad, data)
	relate(t, m, Size, size, data)
	generate(t, m)
	assert.Equal(t, int64(4), size.Int())
}

func TestGenerateCount(t *testing.T) {
	for _, test := range []struct {
		get  string
		want string
	}{
		{want: "\x03123"},
		{get: "count + 1", want: "\x04123"},
	} {
		num := NewNumber("num", 8)
		str := NewString("str")
		require.NoError(t, str.SetValue("1"))
		arr := NewArray("str", str, 0, 100)
		m := NewDataModel("M", num, arr)
		r := &Relation{Kind: Count}
		if test.get != "" {
			r.ExpressionGet = expr.MustParse(test.get)
		}
		require.NoError(t, m.AddRelation(r, num, arr, nil))
		assert.Equal(t, 1, arr.Len())
		assert.False(t, arr.Expanded())

		for _, v := range []string{"2", "3"} {
			item, err := arr.Append()
			require.NoError(t, err)
			require.NoError(t, item.(*String).SetValue(v))
		}
		assert.Equal(t, []byte(test.want), generate(t, m))
		assert.Equal(t, "str_0", arr.Item(0).Name())

		require.NoError(t, arr.Remove(1))
		assert.Equal(t, test.want[0]-1, generate(t, m)[0])
	}
}

func TestArrayBounds(t *testing.T) {
	arr := NewArray("arr", NewNumber("n", 8), 1, 2)
	NewDataModel("M", arr)
	_, err := arr.Append()
	require.NoError(t, err)
	_, err = arr.Append()
	require.Error(t, err)
	require.NoError(t, arr.Remove(0))
	require.Error(t, arr.Remove(0))
	require.Error(t, arr.Remove(5))
}

func TestGenerateOffset(t *testing.T) {
	off := NewNumber("off", 8)
	pre := NewBlob("pre")
	require.NoError(t, pre.SetValue("abc"))
	data := NewBlob("data")
	require.NoError(t, data.SetValue("xy"))
	m := NewDataModel("M", off, pre, data)
	relate(t, m, Offset, off, data)
	assert.Equal(t, []byte("\x04abcxy"), generate(t, m))

	require.NoError(t, pre.SetValue("a"))
	assert.Equal(t, []byte("\x02axy"), generate(t, m))
}

func TestGenerateRelativeOffset(t *testing.T) {
	off := NewNumber("off", 8)
	hdr := NewBlock("hdr", NewBlob("pre"), off, NewBlob("gap"), NewBlob("body"))
	require.NoError(t, hdr.Child("pre").(*Blob).SetValue("p"))
	require.NoError(t, hdr.Child("gap").(*Blob).SetValue("gg"))
	m := NewDataModel("M", NewBlob("outer"), hdr)
	require.NoError(t, m.Find("outer").(*Blob).SetValue("ooo"))
	// Without relativeTo the offset is measured from the parent of the source.
	r := &Relation{Kind: Offset, Relative: true}
	require.NoError(t, m.AddRelation(r, off, hdr.Child("body"), nil))
	generate(t, m)
	assert.Equal(t, int64(4), off.Int())

	// A relativeTo element that does not contain the target anchors at its end.
	off2 := NewNumber("off2", 8)
	m.Root().Insert(0, off2)
	r2 := &Relation{Kind: Offset, Relative: true}
	require.NoError(t, m.AddRelation(r2, off2, hdr.Child("body"), m.Find("outer")))
	generate(t, m)
	assert.Equal(t, int64(4), off2.Int())
}

func TestGenerateDeadRelation(t *testing.T) {
	size := NewNumber("size", 8)
	require.NoError(t, size.SetValue(42))
	a := NewBlob("a")
	require.NoError(t, a.SetValue("aaaa"))
	b := NewBlob("b")
	require.NoError(t, b.SetValue("b"))
	choice := NewChoice("choice", a, b)
	m := NewDataModel("M", size, choice)
	relate(t, m, Size, size, b)
	assert.Equal(t, []byte("\x2aaaaa"), generate(t, m))
	assert.Len(t, m.LiveRelations(), 0)

	require.NoError(t, choice.Select("b"))
	assert.Equal(t, []byte("\x01b"), generate(t, m))
	assert.Len(t, m.LiveRelations(), 1)
}

func TestGenerateFixups(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("123456789"))
	tests := []struct {
		name  string
		field Leaf
		fixup Fixup
		want  []byte
	}{
		{
			name:  "crc32",
			field: &Number{ElementCommon: newCommon("sum"), Bits: 32, BigEndian: true},
			fixup: &Crc32{RefName: "data"},
			want:  []byte{0xcb, 0xf4, 0x39, 0x26},
		},
		{
			name:  "lrc",
			field: NewNumber("sum", 8),
			fixup: &LRC{RefName: "data"},
			want:  []byte{0x23},
		},
		{
			name:  "copy",
			field: NewString("sum"),
			fixup: &CopyValue{RefName: "data"},
			want:  []byte("123456789"),
		},
		{
			name:  "hmac",
			field: NewBlob("sum"),
			fixup: &HMACSHA256{RefName: "data", Key: []byte("key"), Length: 4},
			want:  mac.Sum(nil)[:4],
		},
		{
			name:  "expression",
			field: NewNumber("sum", 16),
			fixup: &Expression{RefName: "data", Expr: expr.MustParse("len(data) * 3")},
			want:  []byte{27, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := NewBlob("data")
			require.NoError(t, data.SetValue("123456789"))
			test.field.common().Fixup = test.fixup
			m := NewDataModel("M", data, test.field)
			got := generate(t, m)
			assert.Equal(t, test.want, got[9:])
		})
	}
}

func TestGenerateInetChecksum(t *testing.T) {
	ver := NewNumber("ver", 8)
	require.NoError(t, ver.SetValue(0x45))
	csum := NewNumber("csum", 16)
	csum.BigEndian = true
	csum.Fixup = &InetChecksum{RefName: "hdr"}
	hdr := NewBlock("hdr", ver, NewNumber("tos", 8), csum)
	m := NewDataModel("M", hdr)
	got := generate(t, m)
	assert.Equal(t, []byte{0x45, 0x00, 0xba, 0xff}, got)

	var sum InetSum
	sum.Update(got)
	assert.Equal(t, uint16(0), sum.Digest())
}

func TestInetSumChunks(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01, 0xc0, 0xa8, 0x00, 0xc7}
	var whole, parts InetSum
	whole.Update(data)
	parts.Update(data[:10])
	parts.Update(data[10:])
	assert.Equal(t, uint16(0xb861), whole.Digest())
	assert.Equal(t, whole.Digest(), parts.Digest())
}

func TestGenerateNoConvergence(t *testing.T) {
	n := NewNumber("n", 8)
	n.Fixup = &Expression{RefName: "n", Expr: expr.MustParse("value + 1")}
	m := NewDataModel("M", n)
	m.Options.MaxIterations = 3
	_, err := m.Generate()
	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Contains(t, err.Error(), "did not converge after 3 iterations")
}

func TestGenerateCaching(t *testing.T) {
	n := NewNumber("n", 8)
	s := NewString("s")
	require.NoError(t, s.SetValue("abc"))
	m := NewDataModel("M", n, s)
	first, err := m.Generate()
	require.NoError(t, err)
	first.WriteBytes([]byte("garbage"))
	assert.Equal(t, []byte("\x00abc"), generate(t, m))

	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v.Bytes())
	assert.Equal(t, []byte("abc"), m.Root().InternalValue().([]byte)[1:])

	require.NoError(t, n.SetValue("0x10"))
	assert.Equal(t, []byte("\x10abc"), generate(t, m))
}

func TestGenerateChoiceDefault(t *testing.T) {
	a := NewNumber("a", 8)
	require.NoError(t, a.SetValue(1))
	b := NewNumber("b", 16)
	choice := NewChoice("choice", a, b)
	m := NewDataModel("M", choice)
	assert.Equal(t, []byte{1}, generate(t, m))
	assert.Equal(t, Element(a), choice.Selected())
	require.NoError(t, choice.Select("b"))
	assert.Equal(t, []byte{0, 0}, generate(t, m))
	require.Error(t, choice.Select("c"))
}

func TestGenerateStrings(t *testing.T) {
	tests := []struct {
		enc    Encoding
		length int64
		null   bool
		value  string
		want   []byte
		err    bool
	}{
		{enc: ASCII, value: "hi", want: []byte("hi")},
		{enc: ASCII, value: "hé", err: true},
		{enc: UTF8, value: "hé", want: []byte("h\xc3\xa9")},
		{enc: UTF16LE, value: "hi", null: true, want: []byte("h\x00i\x00\x00\x00")},
		{enc: UTF16BE, value: "hi", want: []byte("\x00h\x00i")},
		{enc: UTF32LE, value: "h", want: []byte("h\x00\x00\x00")},
		{enc: UTF32BE, value: "h", want: []byte("\x00\x00\x00h")},
		{enc: ASCII, length: 4, value: "hi", want: []byte("hi\x00\x00")},
		{enc: ASCII, length: 1, value: "hi", want: []byte("h")},
	}
	for _, test := range tests {
		s := NewString("s")
		s.Encoding = test.enc
		s.NullTerminated = test.null
		if test.length != 0 {
			s.SetLength(test.length, Bytes)
		}
		err := s.SetValue(test.value)
		if test.err {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		m := NewDataModel("M", s)
		got := generate(t, m)
		assert.Equal(t, test.want, got, "%v %q", test.enc, test.value)
		if test.length == 0 {
			require.NoError(t, m.CrackBytes(got))
			assert.Equal(t, test.value, s.Str())
		}
	}
}

func TestNumberValues(t *testing.T) {
	n := NewNumber("n", 8)
	n.Signed = true
	require.NoError(t, n.SetValue(-1))
	assert.Equal(t, int64(-1), n.Int())
	assert.Equal(t, uint64(0xff), n.Uint())
	require.Error(t, n.SetValue(128))
	require.Error(t, n.SetValue("foo"))

	be := NewNumber("be", 16)
	be.BigEndian = true
	le := NewNumber("le", 16)
	odd := NewNumber("odd", 12)
	require.NoError(t, be.SetValue(0x1234))
	require.NoError(t, le.SetValue(0x1234))
	require.NoError(t, odd.SetValue(0xabc))
	m := NewDataModel("M", be, le, odd, NewNumber("tail", 4))
	assert.Equal(t, []byte{0x12, 0x34, 0x34, 0x12, 0xab, 0xc0}, generate(t, m))
}
