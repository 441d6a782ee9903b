// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/syzformat/pkg/bitstream"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

type Encoding string

const (
	ASCII   Encoding = "ascii"
	UTF8    Encoding = "utf8"
	UTF16LE Encoding = "utf16le"
	UTF16BE Encoding = "utf16be"
	UTF32LE Encoding = "utf32le"
	UTF32BE Encoding = "utf32be"
)

// Encodings lists the supported string encodings.
var Encodings = []Encoding{ASCII, UTF8, UTF16LE, UTF16BE, UTF32LE, UTF32BE}

// unitBytes is the size of the code unit, which is also the size of the null terminator.
func (enc Encoding) unitBytes() int {
	switch enc {
	case UTF16LE, UTF16BE:
		return 2
	case UTF32LE, UTF32BE:
		return 4
	}
	return 1
}

func (enc Encoding) codec() encoding.Encoding {
	switch enc {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	}
	return nil
}

func (enc Encoding) valid() bool {
	for _, e := range Encodings {
		if e == enc {
			return true
		}
	}
	return false
}

func (enc Encoding) Encode(s string) ([]byte, error) {
	switch enc {
	case ASCII:
		for i := 0; i < len(s); i++ {
			if s[i] >= 0x80 {
				return nil, fmt.Errorf("non-ascii byte 0x%02x at %v", s[i], i)
			}
		}
		return []byte(s), nil
	case UTF8:
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("invalid utf8 string %q", s)
		}
		return []byte(s), nil
	}
	return enc.codec().NewEncoder().Bytes([]byte(s))
}

func (enc Encoding) Decode(data []byte) (string, error) {
	switch enc {
	case ASCII:
		for i, c := range data {
			if c >= 0x80 {
				return "", fmt.Errorf("non-ascii byte 0x%02x at %v", c, i)
			}
		}
		return string(data), nil
	case UTF8:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid utf8 data")
		}
		return string(data), nil
	}
	if len(data)%enc.unitBytes() != 0 {
		return "", fmt.Errorf("%v bytes is not a whole number of %v code units", len(data), enc)
	}
	res, err := enc.codec().NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

// String is a text field. Its length is declared, relation driven,
// null terminated or delimited by the following token.
type String struct {
	ElementCommon
	Encoding       Encoding
	NullTerminated bool
	// Numeric strings hold decimal text and can be relation sources.
	Numeric bool

	val string
}

func NewString(name string) *String {
	return &String{
		ElementCommon: newCommon(name),
		Encoding:      ASCII,
	}
}

func (s *String) FullName() string { return fullName(s) }

func (s *String) Value() (*bitstream.Buffer, error) { return elementValue(s) }

func (s *String) InternalValue() any {
	if s.Numeric {
		if v, err := strconv.ParseInt(s.val, 10, 64); err == nil {
			return v
		}
	}
	return s.val
}

func (s *String) Str() string {
	return s.val
}

func (s *String) SetValue(v any) error {
	if _, err := s.setInternal(v); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *String) setInternal(v any) (bool, error) {
	var str string
	switch v := v.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		x, err := toInt(v)
		if err != nil {
			return false, fmt.Errorf("%v: %w", describe(s), err)
		}
		str = strconv.FormatInt(x, 10)
	}
	if _, err := s.Encoding.Encode(str); err != nil {
		return false, fmt.Errorf("%v: %w", describe(s), err)
	}
	changed := str != s.val
	s.val = str
	return changed, nil
}

func (s *String) decode(buf *bitstream.Buffer, bits int64) error {
	if bits%8 != 0 {
		return fmt.Errorf("string length of %v bits is not a whole number of bytes", bits)
	}
	data, err := buf.ReadBitsToBytes(bits)
	if err != nil {
		return err
	}
	if s.NullTerminated {
		unit := s.Encoding.unitBytes()
		if len(data) < unit || !allZero(data[len(data)-unit:]) {
			return fmt.Errorf("missing null terminator")
		}
		data = data[:len(data)-unit]
	}
	str, err := s.Encoding.Decode(data)
	if err != nil {
		return err
	}
	if s.Numeric {
		if _, err := strconv.ParseInt(str, 10, 64); err != nil {
			return fmt.Errorf("%q is not a decimal number", str)
		}
	}
	s.val = str
	return nil
}

func (s *String) encode() (*bitstream.Buffer, error) {
	str := s.val
	if s.Numeric && s.Length >= 0 && !strings.HasPrefix(str, "-") {
		// Numeric strings of a declared width are written with leading zeros.
		if width := int(s.Length/8) / s.Encoding.unitBytes(); len(str) < width {
			str = strings.Repeat("0", width-len(str)) + str
		}
	}
	data, err := s.Encoding.Encode(str)
	if err != nil {
		return nil, err
	}
	if s.NullTerminated {
		data = append(data, make([]byte, s.Encoding.unitBytes())...)
	}
	b := bitstream.New()
	if s.Length >= 0 {
		// Declared strings are truncated or zero padded to the declared length.
		b.WriteBitsFromBytes(append(data, make([]byte, (s.Length+7)/8)...), s.Length)
		return b, nil
	}
	b.WriteBytes(data)
	return b, nil
}

func (s *String) fixedBits() (int64, bool) {
	return s.Length, s.Length >= 0
}

func allZero(data []byte) bool {
	for _, c := range data {
		if c != 0 {
			return false
		}
	}
	return true
}
