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

import (
	"encoding/binary"
	"io"

	"github.com/juju/errors"
)

// NotId represents an ID that doesn't exist.
const NotId = int32(-1)

// Index manages the map between sparse IDs and dense indices. A sparse ID is
// a user ID or game ID from the input tables. The dense index is the internal
// row or column index used for factor matrices and the rating matrix. The
// mapping is append-only and must not be mutated while queries are served.
type Index struct {
	Numbers map[int64]int32 // sparse ID -> dense index
	Ids     []int64         // dense index -> sparse ID
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		Numbers: make(map[int64]int32),
		Ids:     make([]int64, 0),
	}
}

// Len returns the number of indexed IDs.
func (idx *Index) Len() int32 {
	if idx == nil {
		return 0
	}
	return int32(len(idx.Ids))
}

// Add adds a new ID to the index. Adding an existing ID is a no-op.
func (idx *Index) Add(id int64) {
	if _, exist := idx.Numbers[id]; !exist {
		idx.Numbers[id] = int32(len(idx.Ids))
		idx.Ids = append(idx.Ids, id)
	}
}

// ToNumber converts a sparse ID to a dense index. Returns NotId for unknown IDs.
func (idx *Index) ToNumber(id int64) int32 {
	if idx == nil {
		return NotId
	}
	if number, exist := idx.Numbers[id]; exist {
		return number
	}
	return NotId
}

// ToId converts a dense index back to a sparse ID.
func (idx *Index) ToId(number int32) int64 {
	return idx.Ids[number]
}

// GetIds returns all IDs in dense index order.
func (idx *Index) GetIds() []int64 {
	return idx.Ids
}

// Marshal writes the index to a byte stream.
func (idx *Index) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(idx.Ids))); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, idx.Ids))
}

// Unmarshal reads the index from a byte stream.
func (idx *Index) Unmarshal(r io.Reader) error {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return errors.Trace(err)
	}
	ids := make([]int64, n)
	if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
		return errors.Trace(err)
	}
	idx.Numbers = make(map[int64]int32, n)
	idx.Ids = make([]int64, 0, n)
	for _, id := range ids {
		idx.Add(id)
	}
	return nil
}

// UnmarshalIndex reads an index from a byte stream.
func UnmarshalIndex(r io.Reader) (*Index, error) {
	index := &Index{}
	if err := index.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return index, nil
}
