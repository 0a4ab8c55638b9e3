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

package dataset

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamelens/gamelens/base"
)

func writeTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if filepath.Ext(name) == ".gz" {
		file, err := os.Create(path)
		require.NoError(t, err)
		writer := gzip.NewWriter(file)
		_, err = writer.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())
		require.NoError(t, file.Close())
	} else {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return path
}

const gamesCSV = "gameId,title,genres\n" +
	"101,Portal,\"puzzle, first-person, comedy\"\n" +
	"102,Stardew Valley,\"farming, cozy\"\n"

func TestLoadGames(t *testing.T) {
	games, err := LoadGames(writeTempFile(t, "games.csv", gamesCSV))
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, int64(101), games[0].GameId)
	assert.Equal(t, "Portal", games[0].Title)
	assert.Equal(t, "puzzle, first-person, comedy", games[0].Genres)
}

func TestLoadGamesGzip(t *testing.T) {
	games, err := LoadGames(writeTempFile(t, "games.csv.gz", gamesCSV))
	require.NoError(t, err)
	assert.Len(t, games, 2)
}

func TestLoadGamesMissingColumn(t *testing.T) {
	path := writeTempFile(t, "games.csv", "gameId,title\n101,Portal\n")
	_, err := LoadGames(path)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}

func TestLoadGamesShortRow(t *testing.T) {
	path := writeTempFile(t, "games.csv",
		"gameId,title,genres\n1,First Game,action shooter\n2,Only Title\n")
	_, err := LoadGames(path)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}

func TestLoadGamesMissingFile(t *testing.T) {
	_, err := LoadGames(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}

func TestLoadRatings(t *testing.T) {
	path := writeTempFile(t, "ratings.csv",
		"userId,gameId,rating\n1,101,4.5\n2,102,1.5\n")
	ratings, err := LoadRatings(path)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	assert.Equal(t, Rating{UserId: 1, GameId: 101, Rating: 4.5}, ratings[0])
	assert.Equal(t, Rating{UserId: 2, GameId: 102, Rating: 1.5}, ratings[1])
}

func TestLoadRatingsBadRow(t *testing.T) {
	path := writeTempFile(t, "ratings.csv",
		"userId,gameId,rating\nnotanumber,101,4.5\n")
	_, err := LoadRatings(path)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}

func TestLoadRatingsShortRow(t *testing.T) {
	path := writeTempFile(t, "ratings.csv",
		"userId,gameId,rating\n1,101\n")
	_, err := LoadRatings(path)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}

func TestImplicitRating(t *testing.T) {
	// no play time: base score only
	assert.InDelta(t, 2.5, ImplicitRating(true, 0), 1e-5)
	assert.InDelta(t, 1.5, ImplicitRating(false, 0), 1e-5)
	// 100 hours saturates the play-time boost
	assert.InDelta(t, 4.5, ImplicitRating(true, 100), 1e-5)
	assert.InDelta(t, 3.5, ImplicitRating(false, 100), 1e-5)
	// capped at 5
	assert.LessOrEqual(t, ImplicitRating(true, 1e6), float32(5))
	// monotone in hours
	assert.Greater(t, ImplicitRating(true, 10), ImplicitRating(true, 1))
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	rawGames := writeTempFile(t, "raw_games.csv",
		"app_id,title,rating\n101,Portal,Very Positive\n102,Stardew Valley,Overwhelmingly Positive\n")
	metadata := writeTempFile(t, "metadata.json",
		`{"app_id": 101, "description": "portals and puzzles", "tags": ["Puzzle", "Comedy"]}`+"\n"+
			`{"app_id": 102, "description": "farm life", "tags": ["Farming"]}`+"\n")
	reviews := writeTempFile(t, "reviews.csv",
		"user_id,app_id,is_recommended,hours\n1,101,true,100\n2,102,false,0\n")
	opts := PrepareOptions{
		GamesCSV:     rawGames,
		MetadataJSON: metadata,
		ReviewsCSV:   reviews,
		GamesOut:     filepath.Join(dir, "games.csv.gz"),
		RatingsOut:   filepath.Join(dir, "ratings.csv.gz"),
	}
	require.NoError(t, Prepare(opts))

	games, err := LoadGames(opts.GamesOut)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "Portal", games[0].Title)
	assert.Contains(t, games[0].Genres, "Puzzle")
	assert.Contains(t, games[0].Genres, "portals and puzzles")

	ratings, err := LoadRatings(opts.RatingsOut)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	assert.InDelta(t, 4.5, ratings[0].Rating, 1e-5)
	assert.InDelta(t, 1.5, ratings[1].Rating, 1e-5)
}

func TestPrepareShortRows(t *testing.T) {
	dir := t.TempDir()
	metadata := writeTempFile(t, "metadata.json",
		`{"app_id": 101, "description": "portals", "tags": ["Puzzle"]}`+"\n")
	reviews := writeTempFile(t, "reviews.csv",
		"user_id,app_id,is_recommended,hours\n1,101,true,100\n")
	goodGames := writeTempFile(t, "raw_games.csv",
		"app_id,title\n101,Portal\n")

	opts := PrepareOptions{
		GamesCSV:     writeTempFile(t, "short_games.csv", "app_id,title\n101\n"),
		MetadataJSON: metadata,
		ReviewsCSV:   reviews,
		GamesOut:     filepath.Join(dir, "games.csv"),
		RatingsOut:   filepath.Join(dir, "ratings.csv"),
	}
	err := Prepare(opts)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))

	opts.GamesCSV = goodGames
	opts.ReviewsCSV = writeTempFile(t, "short_reviews.csv",
		"user_id,app_id,is_recommended,hours\n1,101,true\n")
	err = Prepare(opts)
	require.Error(t, err)
	assert.Equal(t, base.ErrData, errors.Cause(err))
}
