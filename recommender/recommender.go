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

// Package recommender blends content-based and collaborative signals into a
// single ranked list of game titles.
package recommender

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/encoding"
	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/model"
	"github.com/gamelens/gamelens/model/mf"
	"github.com/gamelens/gamelens/search"
)

// artifact header, checked on load
const (
	artifactMagic   = "gamelens"
	artifactVersion = int64(1)
)

// FitOptions selects which components to refit. Components not selected keep
// their previous state, so the two signals can be retrained independently.
type FitOptions struct {
	RefitContent       bool
	RefitCollaborative bool
	Config             *mf.FitConfig
}

// HybridRecommender combines a TF-IDF text index over the game catalog with a
// non-negative matrix factorization of user ratings. Either component may be
// absent; recommendation degrades to the remaining signal.
type HybridRecommender struct {
	Games         []dataset.Game
	Ratings       []dataset.Rating
	TextIndex     *search.TextIndex
	Collaborative *mf.NMF
	titleById     map[int64]string
}

// NewHybridRecommender creates an empty recommender with the given
// collaborative hyper-parameters.
func NewHybridRecommender(params model.Params) *HybridRecommender {
	return &HybridRecommender{
		TextIndex:     search.NewTextIndex(),
		Collaborative: mf.NewNMF(params),
		titleById:     make(map[int64]string),
	}
}

func (r *HybridRecommender) setCatalog(games []dataset.Game) {
	r.Games = games
	r.titleById = make(map[int64]string, len(games))
	for _, game := range games {
		if _, exist := r.titleById[game.GameId]; !exist {
			r.titleById[game.GameId] = game.Title
		}
	}
}

// Fit trains the selected components. A failed collaborative fit leaves the
// previous factors in place, so a serving instance never loses a working
// model to a bad retrain.
func (r *HybridRecommender) Fit(games []dataset.Game, ratings []dataset.Rating, opts FitOptions) error {
	if opts.RefitContent {
		r.setCatalog(games)
		if err := r.TextIndex.Fit(games); err != nil {
			return errors.Trace(err)
		}
	}
	if opts.RefitCollaborative {
		trainSet := mf.NewDataSetFromRatings(ratings)
		if err := r.Collaborative.Fit(trainSet, opts.Config); err != nil {
			return errors.Trace(err)
		}
		r.Ratings = ratings
	}
	return nil
}

// Recommend returns up to n game titles for a user and a seed title. The
// content-based list for the seed comes first, then collaborative picks fill
// the remainder. Duplicates keep their first position and the seed itself is
// never returned. An unknown seed or user silently contributes nothing.
func (r *HybridRecommender) Recommend(userId int64, seedTitle string, n int) []string {
	if n <= 0 {
		return nil
	}
	results := make([]string, 0, n)
	seen := mapset.NewSet(seedTitle)
	for _, result := range r.TextIndex.Query(seedTitle, n) {
		if seen.Add(result.Title) {
			results = append(results, result.Title)
			if len(results) == n {
				return results
			}
		}
	}
	for _, gameId := range r.Collaborative.TopN(userId, n, true) {
		title, exist := r.titleById[gameId]
		if !exist {
			// rated item absent from the catalog table
			continue
		}
		if seen.Add(title) {
			results = append(results, title)
			if len(results) == n {
				break
			}
		}
	}
	return results
}

// SearchTitles returns catalog games whose title contains the query,
// case-insensitive, in catalog order, up to limit.
func (r *HybridRecommender) SearchTitles(query string, limit int) []dataset.Game {
	if limit <= 0 {
		return nil
	}
	needle := strings.ToLower(query)
	matches := lo.Filter(r.Games, func(game dataset.Game, _ int) bool {
		return strings.Contains(strings.ToLower(game.Title), needle)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if len(matches) == 0 {
		return nil
	}
	return matches
}

// Marshal writes the recommender to a byte stream.
func (r *HybridRecommender) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, artifactMagic); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, artifactVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, r.Games); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, r.Ratings); err != nil {
		return errors.Trace(err)
	}
	if err := r.TextIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	hasCollaborative := !r.Collaborative.Invalid()
	if err := encoding.WriteGob(w, hasCollaborative); err != nil {
		return errors.Trace(err)
	}
	if hasCollaborative {
		if err := r.Collaborative.Marshal(w); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal reads the recommender from a byte stream.
func (r *HybridRecommender) Unmarshal(reader io.Reader) error {
	magic, err := encoding.ReadString(reader)
	if err != nil {
		return errors.Trace(err)
	}
	if magic != artifactMagic {
		return errors.Annotatef(base.ErrPersistence, "not a recommender artifact")
	}
	var version int64
	if err = encoding.ReadGob(reader, &version); err != nil {
		return errors.Trace(err)
	}
	if version != artifactVersion {
		return errors.Annotatef(base.ErrPersistence, "unsupported artifact version %d", version)
	}
	var games []dataset.Game
	if err = encoding.ReadGob(reader, &games); err != nil {
		return errors.Trace(err)
	}
	r.setCatalog(games)
	if err = encoding.ReadGob(reader, &r.Ratings); err != nil {
		return errors.Trace(err)
	}
	r.TextIndex = search.NewTextIndex()
	if err = r.TextIndex.Unmarshal(reader); err != nil {
		return errors.Trace(err)
	}
	var hasCollaborative bool
	if err = encoding.ReadGob(reader, &hasCollaborative); err != nil {
		return errors.Trace(err)
	}
	r.Collaborative = mf.NewNMF(nil)
	if hasCollaborative {
		if err = r.Collaborative.Unmarshal(reader); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Save writes the recommender to a single artifact file, creating parent
// directories as needed. The file is written to a temporary name and renamed
// so a crash never leaves a truncated artifact behind.
func (r *HybridRecommender) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Annotatef(base.ErrPersistence, "create directory: %v", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Annotatef(base.ErrPersistence, "create artifact: %v", err)
	}
	writer := bufio.NewWriter(temp)
	if err = r.Marshal(writer); err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return errors.Annotatef(base.ErrPersistence, "write artifact: %v", err)
	}
	if err = writer.Flush(); err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return errors.Annotatef(base.ErrPersistence, "write artifact: %v", err)
	}
	if err = temp.Close(); err != nil {
		_ = os.Remove(temp.Name())
		return errors.Annotatef(base.ErrPersistence, "write artifact: %v", err)
	}
	if err = os.Rename(temp.Name(), path); err != nil {
		_ = os.Remove(temp.Name())
		return errors.Annotatef(base.ErrPersistence, "write artifact: %v", err)
	}
	log.Logger().Info("saved recommender", zap.String("path", path))
	return nil
}

// Load reads a recommender artifact from disk. Missing or corrupt files yield
// ErrPersistence.
func Load(path string) (*HybridRecommender, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(base.ErrPersistence, "open artifact: %v", err)
	}
	defer file.Close()
	r := new(HybridRecommender)
	if err = r.Unmarshal(bufio.NewReader(file)); err != nil {
		if errors.Cause(err) == base.ErrPersistence {
			return nil, errors.Trace(err)
		}
		return nil, errors.Annotatef(base.ErrPersistence, "read artifact: %v", err)
	}
	log.Logger().Info("loaded recommender", zap.String("path", path))
	return r, nil
}
