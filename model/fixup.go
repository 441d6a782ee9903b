// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash/crc32"

	"github.com/google/syzformat/pkg/bitstream"
	"github.com/google/syzformat/pkg/expr"
)

// Fixup computes the value of a leaf from the generated bits of another element.
// Fixups run during generation only.
type Fixup interface {
	// Ref is the name of the element the value is computed from.
	Ref() string
	Compute(ref Element, data *bitstream.Buffer) (any, error)
}

// CopyValue copies the internal value of the referenced element.
type CopyValue struct {
	RefName string
}

func (f *CopyValue) Ref() string { return f.RefName }

func (f *CopyValue) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	switch v := ref.InternalValue().(type) {
	case int64, string:
		return v, nil
	default:
		return data.Bytes(), nil
	}
}

// Crc32 is the IEEE CRC-32 of the referenced bytes.
type Crc32 struct {
	RefName string
}

func (f *Crc32) Ref() string { return f.RefName }

func (f *Crc32) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	return int64(crc32.ChecksumIEEE(data.Bytes())), nil
}

// InetChecksum is the RFC 1071 ones' complement checksum used by IP, TCP and UDP.
type InetChecksum struct {
	RefName string
}

func (f *InetChecksum) Ref() string { return f.RefName }

func (f *InetChecksum) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	var csum InetSum
	csum.Update(data.Bytes())
	return int64(csum.Digest()), nil
}

// InetSum accumulates an RFC 1071 checksum over one or more chunks.
// Every chunk except the last one must have even length.
type InetSum struct {
	acc uint32
}

func (csum *InetSum) Update(data []byte) {
	length := len(data) - 1
	for i := 0; i < length; i += 2 {
		csum.acc += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)%2 == 1 {
		csum.acc += uint32(data[length]) << 8
	}
	for csum.acc > 0xffff {
		csum.acc = (csum.acc >> 16) + (csum.acc & 0xffff)
	}
}

func (csum *InetSum) Digest() uint16 {
	return ^uint16(csum.acc)
}

// LRC is the two's complement of the byte sum (longitudinal redundancy check).
type LRC struct {
	RefName string
}

func (f *LRC) Ref() string { return f.RefName }

func (f *LRC) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	var sum byte
	for _, c := range data.Bytes() {
		sum += c
	}
	return int64(byte(-sum)), nil
}

// HMACSHA256 is the HMAC-SHA256 of the referenced bytes, truncated to Length bytes if set.
type HMACSHA256 struct {
	RefName string
	Key     []byte
	Length  int
}

func (f *HMACSHA256) Ref() string { return f.RefName }

func (f *HMACSHA256) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	mac := hmac.New(sha256.New, f.Key)
	mac.Write(data.Bytes())
	sum := mac.Sum(nil)
	if f.Length > 0 {
		if f.Length > len(sum) {
			return nil, fmt.Errorf("hmac length %v is larger than %v", f.Length, len(sum))
		}
		sum = sum[:f.Length]
	}
	return sum, nil
}

// Expression evaluates Expr with "value" bound to the internal value of the
// referenced element and "data" to its generated bytes.
type Expression struct {
	RefName string
	Expr    *expr.Expr
}

func (f *Expression) Ref() string { return f.RefName }

func (f *Expression) Compute(ref Element, data *bitstream.Buffer) (any, error) {
	return f.Expr.Eval(expr.Chain{
		expr.Vars{"value": ref.InternalValue(), "data": data.Bytes()},
		scopeEnv{ref},
	})
}
