// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/syzformat/pkg/bitstream"
	"github.com/ulikunitz/xz"
)

// Transformer is a reversible encoding applied to the bits of an element.
type Transformer interface {
	Name() string
	Encode(data *bitstream.Buffer) (*bitstream.Buffer, error)
	Decode(data *bitstream.Buffer) (*bitstream.Buffer, error)
}

// Transformers maps transformer names used in definitions to constructors.
var Transformers = map[string]func() Transformer{
	"hex":    func() Transformer { return Hex{} },
	"base64": func() Transformer { return Base64{} },
	"gzip":   func() Transformer { return Gzip{} },
	"xz":     func() Transformer { return Xz{} },
}

type Hex struct{}

func (Hex) Name() string { return "hex" }

func (Hex) Encode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	return bitstream.FromBytes([]byte(hex.EncodeToString(data.Bytes()))), nil
}

func (Hex) Decode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	res, err := hex.DecodeString(string(data.Bytes()))
	if err != nil {
		return nil, err
	}
	return bitstream.FromBytes(res), nil
}

type Base64 struct{}

func (Base64) Name() string { return "base64" }

func (Base64) Encode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	return bitstream.FromBytes([]byte(base64.StdEncoding.EncodeToString(data.Bytes()))), nil
}

func (Base64) Decode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	res, err := base64.StdEncoding.DecodeString(string(data.Bytes()))
	if err != nil {
		return nil, err
	}
	return bitstream.FromBytes(res), nil
}

type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

func (Gzip) Encode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	buf := new(bytes.Buffer)
	w := gzip.NewWriter(buf)
	if _, err := w.Write(data.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bitstream.FromBytes(buf.Bytes()), nil
}

func (Gzip) Decode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	r, err := gzip.NewReader(bytes.NewReader(data.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	res, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return bitstream.FromBytes(res), nil
}

type Xz struct{}

func (Xz) Name() string { return "xz" }

func (Xz) Encode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	buf := new(bytes.Buffer)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bitstream.FromBytes(buf.Bytes()), nil
}

func (Xz) Decode(data *bitstream.Buffer) (*bitstream.Buffer, error) {
	r, err := xz.NewReader(bytes.NewReader(data.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	res, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	return bitstream.FromBytes(res), nil
}
