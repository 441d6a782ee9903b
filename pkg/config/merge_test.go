// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config_test

import (
	"testing"

	"github.com/google/syzformat/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeJSONData(t *testing.T) {
	tests := []struct {
		left   string
		right  string
		result string
	}{
		{
			`{"a":1,"b":2}`,
			`{"b":3,"c":4}`,
			`{"a":1,"b":3,"c":4}`,
		},
		{
			`{"a":1,"b":{"c":{"d":"nested string","e":"another string"}}}`,
			`{"b":{"c":{"d":12345}}}`,
			`{"a":1,"b":{"c":{"d":12345,"e":"another string"}}}`,
		},
		{
			`{}`,
			`{"a":{"b":{"c":0}}}`,
			`{"a":{"b":{"c":0}}}`,
		},
		{
			`{"a":{"b":{"c":0}}}`,
			``,
			`{"a":{"b":{"c":0}}}`,
		},
	}
	for _, test := range tests {
		res, err := config.MergeJSONData([]byte(test.left), []byte(test.right))
		require.NoError(t, err)
		assert.Equal(t, test.result, string(res))
	}
}
