// Copyright 2025 gamelens Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import "sort"

// TopKFilter keeps the K elements with the largest scores. Pushing is O(log K)
// so ranking a full catalog stays cheap for small K.
type TopKFilter struct {
	elems  []int32
	scores []float32
	k      int
}

// NewTopKFilter creates a TopKFilter for the K largest elements.
func NewTopKFilter(k int) *TopKFilter {
	return &TopKFilter{
		elems:  make([]int32, 0, k+1),
		scores: make([]float32, 0, k+1),
		k:      k,
	}
}

func (filter *TopKFilter) Len() int { return len(filter.elems) }

func (filter *TopKFilter) less(i, j int) bool {
	if filter.scores[i] != filter.scores[j] {
		return filter.scores[i] < filter.scores[j]
	}
	// larger index is "smaller" so that ties evict the later row first
	return filter.elems[i] > filter.elems[j]
}

func (filter *TopKFilter) swap(i, j int) {
	filter.elems[i], filter.elems[j] = filter.elems[j], filter.elems[i]
	filter.scores[i], filter.scores[j] = filter.scores[j], filter.scores[i]
}

// Push adds an element. If the filter holds more than K elements, the element
// with the smallest score is dropped.
func (filter *TopKFilter) Push(elem int32, score float32) {
	filter.elems = append(filter.elems, elem)
	filter.scores = append(filter.scores, score)
	filter.up(filter.Len() - 1)
	if filter.Len() > filter.k {
		filter.pop()
	}
}

func (filter *TopKFilter) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !filter.less(i, parent) {
			break
		}
		filter.swap(i, parent)
		i = parent
	}
}

func (filter *TopKFilter) down(i int) {
	for {
		left, right, smallest := 2*i+1, 2*i+2, i
		if left < filter.Len() && filter.less(left, smallest) {
			smallest = left
		}
		if right < filter.Len() && filter.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		filter.swap(i, smallest)
		i = smallest
	}
}

func (filter *TopKFilter) pop() {
	n := filter.Len() - 1
	filter.swap(0, n)
	filter.elems = filter.elems[:n]
	filter.scores = filter.scores[:n]
	filter.down(0)
}

// PopAll returns all elements sorted by score descending, ties broken by
// ascending element order.
func (filter *TopKFilter) PopAll() ([]int32, []float32) {
	elems := make([]int32, len(filter.elems))
	scores := make([]float32, len(filter.scores))
	copy(elems, filter.elems)
	copy(scores, filter.scores)
	indices := make([]int, len(elems))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		if scores[indices[i]] != scores[indices[j]] {
			return scores[indices[i]] > scores[indices[j]]
		}
		return elems[indices[i]] < elems[indices[j]]
	})
	sortedElems := make([]int32, len(elems))
	sortedScores := make([]float32, len(scores))
	for i, index := range indices {
		sortedElems[i] = elems[index]
		sortedScores[i] = scores[index]
	}
	return sortedElems, sortedScores
}
