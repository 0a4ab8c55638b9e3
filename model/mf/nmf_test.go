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

package mf

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/model"
)

func newTestDataSet() *DataSet {
	// two user groups with disjoint tastes
	ratings := []dataset.Rating{
		{UserId: 1, GameId: 101, Rating: 5},
		{UserId: 1, GameId: 102, Rating: 4},
		{UserId: 2, GameId: 101, Rating: 4},
		{UserId: 2, GameId: 102, Rating: 5},
		{UserId: 2, GameId: 103, Rating: 4},
		{UserId: 3, GameId: 201, Rating: 5},
		{UserId: 3, GameId: 202, Rating: 4},
		{UserId: 4, GameId: 201, Rating: 4},
		{UserId: 4, GameId: 202, Rating: 5},
		{UserId: 4, GameId: 203, Rating: 5},
	}
	return NewDataSetFromRatings(ratings)
}

func newTestParams() model.Params {
	return model.Params{
		model.NFactors:    4,
		model.NEpochs:     100,
		model.RandomState: 42,
	}
}

func TestNMF_Fit(t *testing.T) {
	nmf := NewNMF(newTestParams())
	assert.True(t, nmf.Invalid())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	assert.False(t, nmf.Invalid())
	// factors are non-negative
	for _, row := range nmf.UserFactor {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, float32(0))
		}
	}
	// reconstruction approximates observed ratings
	userIndex := nmf.UserIndex.ToNumber(1)
	itemIndex := nmf.ItemIndex.ToNumber(101)
	assert.InDelta(t, 5, nmf.InternalPredict(userIndex, itemIndex), 1.5)
}

func TestNMF_FitEmpty(t *testing.T) {
	nmf := NewNMF(newTestParams())
	err := nmf.Fit(NewDataSet(), NewFitConfig())
	require.Error(t, err)
	assert.Equal(t, base.ErrFit, errors.Cause(err))
	assert.True(t, nmf.Invalid())
}

func TestNMF_PredictUnknownUser(t *testing.T) {
	nmf := NewNMF(newTestParams())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	assert.Nil(t, nmf.Predict(999))
	assert.Nil(t, nmf.TopN(999, 5, true))
	assert.False(t, nmf.IsUserPredictable(999))
	assert.True(t, nmf.IsUserPredictable(1))
}

func TestNMF_TopNExcludesRated(t *testing.T) {
	nmf := NewNMF(newTestParams())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	top := nmf.TopN(1, 10, true)
	assert.NotContains(t, top, int64(101))
	assert.NotContains(t, top, int64(102))
	// user 1 shares taste with user 2, so 103 should rank ahead of the
	// other group's games
	require.NotEmpty(t, top)
	assert.Equal(t, int64(103), top[0])
}

func TestNMF_TopNBounded(t *testing.T) {
	nmf := NewNMF(newTestParams())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	assert.LessOrEqual(t, len(nmf.TopN(1, 2, false)), 2)
	assert.Nil(t, nmf.TopN(1, 0, false))
}

func TestNMF_Determinism(t *testing.T) {
	a := NewNMF(newTestParams())
	require.NoError(t, a.Fit(newTestDataSet(), NewFitConfig()))
	b := NewNMF(newTestParams())
	require.NoError(t, b.Fit(newTestDataSet(), NewFitConfig()))
	assert.Equal(t, a.UserFactor, b.UserFactor)
	assert.Equal(t, a.ItemFactor, b.ItemFactor)
	assert.Equal(t, a.TopN(1, 5, true), b.TopN(1, 5, true))
}

func TestNMF_FailedFitKeepsState(t *testing.T) {
	nmf := NewNMF(newTestParams())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	before := nmf.TopN(1, 5, true)
	require.Error(t, nmf.Fit(NewDataSet(), NewFitConfig()))
	assert.Equal(t, before, nmf.TopN(1, 5, true))
}

func TestNMF_MarshalRoundTrip(t *testing.T) {
	nmf := NewNMF(newTestParams())
	require.NoError(t, nmf.Fit(newTestDataSet(), NewFitConfig()))
	buf := bytes.NewBuffer(nil)
	require.NoError(t, nmf.Marshal(buf))
	loaded := new(NMF)
	require.NoError(t, loaded.Unmarshal(buf))
	assert.Equal(t, nmf.UserFactor, loaded.UserFactor)
	assert.Equal(t, nmf.ItemFactor, loaded.ItemFactor)
	assert.Equal(t, nmf.TopN(1, 5, true), loaded.TopN(1, 5, true))
	assert.Equal(t, nmf.Predict(2), loaded.Predict(2))
}

func TestDataSet(t *testing.T) {
	trainSet := newTestDataSet()
	assert.Equal(t, 10, trainSet.Count())
	assert.Equal(t, 4, trainSet.UserCount())
	assert.Equal(t, 6, trainSet.ItemCount())
	// zero-filled mean: sum of ratings over the dense matrix size
	assert.InDelta(t, 45.0/24.0, trainSet.Mean(), 1e-5)
}
