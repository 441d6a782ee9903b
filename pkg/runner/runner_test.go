// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/stat"
	"github.com/google/syzformat/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countedModel(t *testing.T) *model.DataModel {
	count := model.NewNumber("count", 8)
	arr := model.NewArray("items", model.NewNumber("item", 8), 0, 255)
	m := model.NewDataModel("counted", count, arr)
	require.NoError(t, m.AddRelation(&model.Relation{Kind: model.Count}, count, arr, nil))
	return m
}

func checksumModel() *model.DataModel {
	sum := model.NewNumber("sum", 8)
	sum.Fixup = &model.LRC{RefName: "data"}
	return model.NewDataModel("checksum", sum, model.NewBlob("data"))
}

func TestRun(t *testing.T) {
	log.SetOutput(&testutil.Writer{TB: t})
	log.SetVerbosity(2)
	defer func() {
		log.SetVerbosity(0)
		log.SetOutput(os.Stderr)
	}()
	r := rand.New(testutil.RandSource(t))
	var inputs []Input
	for i := 0; i < 50; i++ {
		items := testutil.RandBytes(r, 20)
		inputs = append(inputs, Input{
			Name: fmt.Sprint(i),
			Data: append([]byte{byte(len(items))}, items...),
		})
	}
	inputs = append(inputs, Input{Name: "short", Data: []byte{5, 1}})

	set := stat.NewSet(nil)
	run, err := New(countedModel(t), Config{Procs: 4, Stats: set})
	require.NoError(t, err)
	results, err := run.Run(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))
	for i, res := range results[:50] {
		assert.Equal(t, fmt.Sprint(i), res.Name)
		assert.Equal(t, OK, res.Status, "%v: %v", res.Name, res.Err)
	}
	short := results[50]
	assert.Equal(t, CrackFailed, short.Status)
	var cf *model.CrackingFailure
	assert.True(t, errors.As(short.Err, &cf), "%v", short.Err)

	assert.Equal(t, map[Status]int{OK: 50, CrackFailed: 1}, Summary(results))
	assert.Equal(t, 51, set.Get("inputs").Val())
	assert.Equal(t, 1, set.Get("failed").Val())
	assert.Equal(t, 0, set.Get("mismatched").Val())
}

func TestRunMismatch(t *testing.T) {
	good := checksumModel()
	require.NoError(t, good.Find("data").(*model.Blob).SetValue("ab"))
	data, err := good.Bytes()
	require.NoError(t, err)
	inputs := []Input{
		{Name: "good", Data: data},
		{Name: "bad", Data: []byte{0, 'a', 'b'}},
	}
	run, err := New(checksumModel(), Config{Stats: stat.NewSet(nil)})
	require.NoError(t, err)
	results, err := run.Run(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, OK, results[0].Status)
	assert.Equal(t, Mismatch, results[1].Status)
	assert.Contains(t, results[1].Diff, "-00000000  00 61 62")
	assert.Contains(t, results[1].Diff, fmt.Sprintf("+00000000  %02x 61 62", data[0]))
}

func TestRunStopOnFailure(t *testing.T) {
	inputs := []Input{{Name: "bad", Data: []byte{3}}}
	for i := 0; i < 10; i++ {
		inputs = append(inputs, Input{Name: fmt.Sprint(i), Data: []byte{0}})
	}
	run, err := New(countedModel(t), Config{Procs: 1, StopOnFailure: true, Stats: stat.NewSet(nil)})
	require.NoError(t, err)
	results, err := run.Run(context.Background(), inputs)
	assert.EqualError(t, err, "bad: crack failed")
	require.NotEmpty(t, results)
	assert.Equal(t, "bad", results[0].Name)
	assert.Less(t, len(results), len(inputs))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := New(countedModel(t), Config{Procs: 2, Stats: stat.NewSet(nil)})
	require.NoError(t, err)
	_, err = run.Run(ctx, []Input{{Name: "a", Data: []byte{0}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewInvalidModel(t *testing.T) {
	m := model.NewDataModel("M", model.NewNumber("n", 65))
	_, err := New(m, Config{Stats: stat.NewSet(nil)})
	var ce *model.ConfigError
	assert.True(t, errors.As(err, &ce), "%v", err)
}

func TestDiff(t *testing.T) {
	diff := Diff([]byte("0123456789abcdef-same"), []byte("0123456789abcdef-SAME"))
	assert.Contains(t, diff, " 00000000  30 31 32 33")
	assert.Contains(t, diff, "-00000010  2d 73 61 6d 65")
	assert.Contains(t, diff, "+00000010  2d 53 41 4d 45")
	assert.NotContains(t, Diff([]byte("x"), []byte("x")), "-")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte{2}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte{1}, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	inputs, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []Input{{"a", []byte{1}}, {"b", []byte{2}}}, inputs)
}
