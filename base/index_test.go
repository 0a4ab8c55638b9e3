// Copyright 2025 gamelens Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	index := NewIndex()
	assert.Equal(t, int32(0), index.Len())
	index.Add(100)
	index.Add(200)
	index.Add(100) // no-op
	assert.Equal(t, int32(2), index.Len())
	assert.Equal(t, int32(0), index.ToNumber(100))
	assert.Equal(t, int32(1), index.ToNumber(200))
	assert.Equal(t, NotId, index.ToNumber(300))
	assert.Equal(t, int64(100), index.ToId(0))
	assert.Equal(t, int64(200), index.ToId(1))
	assert.Equal(t, []int64{100, 200}, index.GetIds())
}

func TestNilIndex(t *testing.T) {
	var index *Index
	assert.Equal(t, int32(0), index.Len())
	assert.Equal(t, NotId, index.ToNumber(1))
}

func TestIndexMarshal(t *testing.T) {
	index := NewIndex()
	index.Add(7)
	index.Add(42)
	index.Add(9000)
	buf := bytes.NewBuffer(nil)
	require.NoError(t, index.Marshal(buf))
	loaded, err := UnmarshalIndex(buf)
	require.NoError(t, err)
	assert.Equal(t, index.GetIds(), loaded.GetIds())
	assert.Equal(t, int32(1), loaded.ToNumber(42))
	assert.Equal(t, NotId, loaded.ToNumber(1))
}
