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

package mf

import (
	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/floats"
	"github.com/gamelens/gamelens/dataset"
)

// DataSet is the sparse user-item rating matrix in adjacency form. Rows and
// columns are dense indices assigned in first-seen order, so the same input
// always produces the same index mappings.
type DataSet struct {
	UserIndex    *base.Index
	ItemIndex    *base.Index
	UserFeedback [][]int32   // item indices rated by each user
	UserRatings  [][]float32 // ratings parallel to UserFeedback
	ItemFeedback [][]int32   // user indices that rated each item
	ItemRatings  [][]float32 // ratings parallel to ItemFeedback
	count        int
}

// NewDataSet creates an empty DataSet.
func NewDataSet() *DataSet {
	return &DataSet{
		UserIndex: base.NewIndex(),
		ItemIndex: base.NewIndex(),
	}
}

// NewDataSetFromRatings builds a DataSet from raw rating rows.
func NewDataSetFromRatings(ratings []dataset.Rating) *DataSet {
	trainSet := NewDataSet()
	for _, rating := range ratings {
		trainSet.AddRating(rating.UserId, rating.GameId, rating.Rating)
	}
	return trainSet
}

// AddRating inserts one observed rating. Users and items are indexed on first
// sight.
func (d *DataSet) AddRating(userId, itemId int64, rating float32) {
	d.UserIndex.Add(userId)
	d.ItemIndex.Add(itemId)
	userIndex := d.UserIndex.ToNumber(userId)
	itemIndex := d.ItemIndex.ToNumber(itemId)
	for int(userIndex) >= len(d.UserFeedback) {
		d.UserFeedback = append(d.UserFeedback, nil)
		d.UserRatings = append(d.UserRatings, nil)
	}
	for int(itemIndex) >= len(d.ItemFeedback) {
		d.ItemFeedback = append(d.ItemFeedback, nil)
		d.ItemRatings = append(d.ItemRatings, nil)
	}
	d.UserFeedback[userIndex] = append(d.UserFeedback[userIndex], itemIndex)
	d.UserRatings[userIndex] = append(d.UserRatings[userIndex], rating)
	d.ItemFeedback[itemIndex] = append(d.ItemFeedback[itemIndex], userIndex)
	d.ItemRatings[itemIndex] = append(d.ItemRatings[itemIndex], rating)
	d.count++
}

// Count returns the number of observed ratings.
func (d *DataSet) Count() int {
	return d.count
}

// UserCount returns the number of distinct users.
func (d *DataSet) UserCount() int {
	return int(d.UserIndex.Len())
}

// ItemCount returns the number of distinct items.
func (d *DataSet) ItemCount() int {
	return int(d.ItemIndex.Len())
}

// Mean returns the mean of the zero-filled dense matrix, used to scale the
// random factor initialization.
func (d *DataSet) Mean() float32 {
	if d.UserCount() == 0 || d.ItemCount() == 0 {
		return 0
	}
	var sum float32
	for _, ratings := range d.UserRatings {
		sum += floats.Sum(ratings)
	}
	return sum / float32(d.UserCount()) / float32(d.ItemCount())
}
