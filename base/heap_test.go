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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	filter := NewTopKFilter(3)
	filter.Push(0, 0.1)
	filter.Push(1, 0.9)
	filter.Push(2, 0.4)
	filter.Push(3, 0.8)
	filter.Push(4, 0.2)
	elems, scores := filter.PopAll()
	assert.Equal(t, []int32{1, 3, 2}, elems)
	assert.Equal(t, []float32{0.9, 0.8, 0.4}, scores)
}

func TestTopKFilterTies(t *testing.T) {
	filter := NewTopKFilter(2)
	filter.Push(2, 0.5)
	filter.Push(0, 0.5)
	filter.Push(1, 0.5)
	elems, _ := filter.PopAll()
	// equal scores keep the smallest indices, ascending
	assert.Equal(t, []int32{0, 1}, elems)
}

func TestTopKFilterFewerThanK(t *testing.T) {
	filter := NewTopKFilter(10)
	filter.Push(1, 0.5)
	filter.Push(0, 0.7)
	elems, scores := filter.PopAll()
	assert.Equal(t, []int32{0, 1}, elems)
	assert.Equal(t, []float32{0.7, 0.5}, scores)
}

func TestTopKFilterEmpty(t *testing.T) {
	filter := NewTopKFilter(5)
	elems, scores := filter.PopAll()
	assert.Empty(t, elems)
	assert.Empty(t, scores)
}
