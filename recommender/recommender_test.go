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

package recommender

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/model"
)

func testGames() []dataset.Game {
	return []dataset.Game{
		{GameId: 101, Title: "A", Genres: "space shooter roguelike"},
		{GameId: 102, Title: "B", Genres: "space shooter roguelike"},
		{GameId: 103, Title: "C", Genres: "space shooter roguelike"},
		{GameId: 201, Title: "D", Genres: "farming village cozy"},
		{GameId: 202, Title: "E", Genres: "farming cozy"},
		{GameId: 203, Title: "F", Genres: "farming village"},
	}
}

func testRatings() []dataset.Rating {
	return []dataset.Rating{
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
}

func testParams() model.Params {
	return model.Params{
		model.NFactors:    4,
		model.NEpochs:     100,
		model.RandomState: 42,
	}
}

func fitTestRecommender(t *testing.T) *HybridRecommender {
	rec := NewHybridRecommender(testParams())
	require.NoError(t, rec.Fit(testGames(), testRatings(), FitOptions{
		RefitContent:       true,
		RefitCollaborative: true,
	}))
	return rec
}

func TestRecommendBlends(t *testing.T) {
	rec := fitTestRecommender(t)
	// content from the seed's group first, collaborative fill after
	results := rec.Recommend(1, "A", 4)
	require.Len(t, results, 4)
	assert.Equal(t, []string{"B", "C"}, results[:2])
	assert.NotContains(t, results, "A")
}

func TestRecommendNoDuplicates(t *testing.T) {
	rec := fitTestRecommender(t)
	for _, userId := range []int64{1, 2, 3, 4, 999} {
		for _, seed := range []string{"A", "D", "unknown"} {
			results := rec.Recommend(userId, seed, 10)
			seen := make(map[string]bool)
			for _, title := range results {
				assert.False(t, seen[title], "duplicate title %q", title)
				seen[title] = true
			}
			assert.NotContains(t, results, seed)
		}
	}
}

func TestRecommendBounded(t *testing.T) {
	rec := fitTestRecommender(t)
	assert.Len(t, rec.Recommend(1, "A", 3), 3)
	assert.LessOrEqual(t, len(rec.Recommend(1, "A", 100)), len(testGames()))
	assert.Empty(t, rec.Recommend(1, "A", 0))
}

func TestRecommendUnknownUser(t *testing.T) {
	rec := fitTestRecommender(t)
	// content-based only
	results := rec.Recommend(999, "A", 2)
	assert.Equal(t, []string{"B", "C"}, results)
}

func TestRecommendUnknownSeed(t *testing.T) {
	rec := fitTestRecommender(t)
	// collaborative only
	results := rec.Recommend(1, "unknown game", 10)
	assert.NotEmpty(t, results)
	assert.NotContains(t, results, "A") // rated items excluded
	assert.NotContains(t, results, "B")
}

func TestRecommendUnknownEverything(t *testing.T) {
	rec := fitTestRecommender(t)
	assert.Empty(t, rec.Recommend(999, "unknown game", 10))
}

func TestFitContentOnly(t *testing.T) {
	rec := NewHybridRecommender(testParams())
	require.NoError(t, rec.Fit(testGames(), nil, FitOptions{RefitContent: true}))
	assert.Equal(t, []string{"B", "C"}, rec.Recommend(1, "A", 2))
}

func TestFitCollaborativeEmpty(t *testing.T) {
	rec := NewHybridRecommender(testParams())
	err := rec.Fit(testGames(), nil, FitOptions{
		RefitContent:       true,
		RefitCollaborative: true,
	})
	require.Error(t, err)
	assert.Equal(t, base.ErrFit, errors.Cause(err))
}

func TestSearchTitles(t *testing.T) {
	rec := fitTestRecommender(t)
	matches := rec.SearchTitles("a", 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "A", matches[0].Title)
	assert.Empty(t, rec.SearchTitles("zzz", 10))
	assert.Len(t, rec.SearchTitles("", 3), 3)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rec := fitTestRecommender(t)
	path := filepath.Join(t.TempDir(), "nested", "model.bin")
	require.NoError(t, rec.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Games, loaded.Games)
	assert.Equal(t, rec.Ratings, loaded.Ratings)
	probes := []struct {
		userId int64
		seed   string
		n      int
	}{
		{1, "A", 5}, {2, "D", 3}, {999, "A", 2}, {3, "unknown", 10},
	}
	for _, probe := range probes {
		assert.Equal(t,
			rec.Recommend(probe.userId, probe.seed, probe.n),
			loaded.Recommend(probe.userId, probe.seed, probe.n))
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.Equal(t, base.ErrPersistence, errors.Cause(err))
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.bin")
	require.NoError(t, os.WriteFile(path, []byte("\x04\x00\x00\x00junk"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, base.ErrPersistence, errors.Cause(err))
}
