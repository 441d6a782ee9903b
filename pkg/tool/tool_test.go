// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))

	err := Exitf(2, "%v inputs failed: %w", 3, io.ErrUnexpectedEOF)
	assert.EqualError(t, err, "3 inputs failed: unexpected EOF")
	assert.Equal(t, 2, ExitCode(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 2, ExitCode(fmt.Errorf("roundtrip: %w", err)))
}
