// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell(t *testing.T) {
	out := new(bytes.Buffer)
	sh := newShell(countedModel(t), out)
	run := func(line string) string {
		t.Helper()
		out.Reset()
		quit, err := sh.exec(line)
		require.NoError(t, err, line)
		require.False(t, quit)
		return out.String()
	}
	assert.Equal(t, "cracked 4 bytes\n", run("crack 03616263"))
	run("set array_1 z")
	assert.Equal(t, "added counted.array.array_3\n", run("append array"))
	run("set array_3 q")
	assert.Equal(t, hex.Dump([]byte("\x04azcq")), run("gen"))
	run("remove array 0")
	assert.Equal(t, hex.Dump([]byte("\x03zcq")), run("gen"))
	assert.Contains(t, run("show array_1"), `value: '"z"'`)
	assert.Contains(t, run("help"), "select choice candidate")

	file := filepath.Join(t.TempDir(), "out")
	run("gen " + file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x03zcq"), data)

	in := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(in, []byte("\x01k"), 0644))
	assert.Equal(t, "cracked 2 bytes\n", run("load "+in))
	assert.Equal(t, "", run(""))

	quit, err := sh.exec("exit")
	assert.NoError(t, err)
	assert.True(t, quit)
}

func TestShellErrors(t *testing.T) {
	sh := newShell(countedModel(t), new(bytes.Buffer))
	tests := []struct {
		line string
		err  string
	}{
		{"bogus", `unknown command "bogus", try help`},
		{"set count", "usage: set element value"},
		{"show a b", "usage: show [element]"},
		{"set missing 1", `no element "missing"`},
		{"set array 1", "counted.array: Array is not a leaf"},
		{"select count x", "counted.count: Number is not a choice"},
		{"append count", "counted.count: Number is not an array"},
		{"remove array x", `strconv.Atoi: parsing "x": invalid syntax`},
		{"crack zz", "encoding/hex: invalid byte: U+007A 'z'"},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			quit, err := sh.exec(test.line)
			assert.False(t, quit)
			assert.EqualError(t, err, test.err)
		})
	}
	_, err := sh.exec("crack 05")
	assert.Error(t, err)
}
