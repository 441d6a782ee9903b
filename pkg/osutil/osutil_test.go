// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExist(t *testing.T) {
	if f := os.Args[0]; !IsExist(f) {
		t.Fatalf("executable %v does not exist", f)
	}
	if f := os.Args[0] + "-foo-bar-buz"; IsExist(f) {
		t.Fatalf("file %v exists", f)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "out")
	require.NoError(t, WriteFile(file, []byte("first")))
	require.NoError(t, WriteFile(file, []byte("second")))
	data, err := ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	files, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{file}, files)
}

func TestWriteOutput(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteOutput(buf, "-", []byte("stdout")))
	assert.Equal(t, "stdout", buf.String())
	file := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteOutput(buf, file, []byte("file")))
	assert.Equal(t, "stdout", buf.String())
	assert.True(t, IsExist(file))
}
