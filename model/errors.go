// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package model

import (
	"fmt"
)

// CrackingFailure means that the input does not match the model.
// Choice and Array trials recover from it; Crack returns it otherwise.
type CrackingFailure struct {
	Element  Element
	Expected any
	Actual   any
	msg      string
	// need is the bit position the data had to reach for a bits-short failure.
	need int64
}

func (f *CrackingFailure) Error() string {
	return f.msg
}

func crackFailuref(e Element, msg string, args ...any) *CrackingFailure {
	return &CrackingFailure{
		Element: e,
		msg:     fmt.Sprintf(msg, args...),
	}
}

func crackMismatch(e Element, expected, actual any, msg string, args ...any) *CrackingFailure {
	f := crackFailuref(e, msg, args...)
	f.Expected = expected
	f.Actual = actual
	return f
}

// crackShort reports that e needs bits starting at pos but the scope ends at end.
func crackShort(e Element, pos, bits, end int64) *CrackingFailure {
	f := crackMismatch(e, bits, end-pos, "%v needs %v bits but only %v bits are left",
		describe(e), bits, end-pos)
	f.need = pos + bits
	return f
}

// ConfigError means that the model itself is inconsistent.
type ConfigError struct {
	Element Element
	msg     string
}

func (e *ConfigError) Error() string {
	if e.Element == nil {
		return e.msg
	}
	return fmt.Sprintf("%v: %v", describe(e.Element), e.msg)
}

func configErrorf(e Element, msg string, args ...any) *ConfigError {
	return &ConfigError{
		Element: e,
		msg:     fmt.Sprintf(msg, args...),
	}
}
