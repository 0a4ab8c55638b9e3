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

// Package dataset defines the two flat input tables of the recommender and
// their loaders. Gzip-compressed files are detected by the .gz extension.
package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/log"
)

// Game is one catalog item. Genres carries the derived text field (tags plus
// description) used by the content-based index.
type Game struct {
	GameId int64
	Title  string
	Genres string
}

// Rating is one implicit-feedback interaction. The rating is a continuous
// proxy in [~1.5, 5.0] derived from the recommended flag and play time.
type Rating struct {
	UserId int64
	GameId int64
	Rating float32
}

// LikeThreshold separates liked from non-liked interactions everywhere it
// matters: evaluation ground truth and seed selection.
const LikeThreshold = float32(2.5)

func openTable(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if strings.HasSuffix(path, ".gz") {
		reader, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, errors.Trace(err)
		}
		return &gzipReadCloser{reader: reader, file: file}, nil
	}
	return file, nil
}

type gzipReadCloser struct {
	reader *gzip.Reader
	file   *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.reader.Read(p) }

func (g *gzipReadCloser) Close() error {
	if err := g.reader.Close(); err != nil {
		_ = g.file.Close()
		return err
	}
	return g.file.Close()
}

// header maps column names to positions so tables survive column reordering.
type header map[string]int

func readHeader(reader *csv.Reader, required ...string) (header, error) {
	record, err := reader.Read()
	if err != nil {
		return nil, errors.Annotatef(base.ErrData, "read header: %v", err)
	}
	h := make(header, len(record))
	for i, name := range record {
		h[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, exist := h[name]; !exist {
			return nil, errors.Annotatef(base.ErrData, "missing column %q", name)
		}
	}
	return h, nil
}

// LoadGames loads the games table {gameId, title, genres}. Genres may contain
// commas, so fields are parsed as CSV, not split.
func LoadGames(path string) ([]Game, error) {
	file, err := openTable(path)
	if err != nil {
		return nil, errors.Annotatef(base.ErrData, "open table: %v", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	h, err := readHeader(reader, "gameId", "title", "genres")
	if err != nil {
		return nil, err
	}
	var games []Game
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Annotatef(base.ErrData, "read row: %v", err)
		}
		gameId, err := strconv.ParseInt(record[h["gameId"]], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(base.ErrData, "parse gameId: %v", err)
		}
		games = append(games, Game{
			GameId: gameId,
			Title:  record[h["title"]],
			Genres: record[h["genres"]],
		})
	}
	log.Logger().Info("loaded games table",
		zap.String("path", path), zap.Int("num_games", len(games)))
	return games, nil
}

// LoadRatings loads the ratings table {userId, gameId, rating}.
func LoadRatings(path string) ([]Rating, error) {
	file, err := openTable(path)
	if err != nil {
		return nil, errors.Annotatef(base.ErrData, "open table: %v", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	h, err := readHeader(reader, "userId", "gameId", "rating")
	if err != nil {
		return nil, err
	}
	var ratings []Rating
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Annotatef(base.ErrData, "read row: %v", err)
		}
		userId, err := strconv.ParseInt(record[h["userId"]], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(base.ErrData, "parse userId: %v", err)
		}
		gameId, err := strconv.ParseInt(record[h["gameId"]], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(base.ErrData, "parse gameId: %v", err)
		}
		rating, err := strconv.ParseFloat(record[h["rating"]], 32)
		if err != nil {
			return nil, errors.Annotatef(base.ErrData, "parse rating: %v", err)
		}
		ratings = append(ratings, Rating{
			UserId: userId,
			GameId: gameId,
			Rating: float32(rating),
		})
	}
	log.Logger().Info("loaded ratings table",
		zap.String("path", path), zap.Int("num_ratings", len(ratings)))
	return ratings, nil
}
