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

// Package evaluator measures recommendation quality offline: it samples
// users, generates recommendations for each, and scores the collected output
// with precision, coverage and novelty. The metric functions are pure; all
// orchestration concerns stay in the sampling driver.
package evaluator

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/recommender"
)

// ProgressSink receives best-effort progress percentages in [0, 100]. A nil
// sink disables reporting. Sink failures are the sink's problem; the
// evaluation never waits on or aborts for one.
type ProgressSink func(percent int)

// SampleOptions controls user sampling and progress reporting.
type SampleOptions struct {
	Seed         int64        // RNG seed, same seed gives the same sample
	ProgressStep int          // report every ProgressStep users, plus the last
	Start        float64      // progress window lower bound, percent
	Range        float64      // progress window width, percent
	Progress     ProgressSink // optional
}

// NewSampleOptions returns options reporting over the full [0, 100] window.
func NewSampleOptions(seed int64) SampleOptions {
	return SampleOptions{Seed: seed, ProgressStep: 10, Start: 0, Range: 100}
}

// Evaluator holds the evaluation context for one recommender and dataset.
// FitContext must be called before sampling or scoring.
type Evaluator struct {
	rec *recommender.HybridRecommender

	games   []dataset.Game
	ratings []dataset.Rating

	users       []int64                    // distinct users in first-seen order
	userRatings map[int64][]dataset.Rating // interactions per user
	titleById   map[int64]string
	idByTitle   map[string]int64
	popularity  map[string]float64 // title -> fraction of users who rated it
	fitted      bool
}

// NewEvaluator creates an evaluator over a fitted recommender and the tables
// it was trained on.
func NewEvaluator(rec *recommender.HybridRecommender, games []dataset.Game, ratings []dataset.Rating) *Evaluator {
	return &Evaluator{rec: rec, games: games, ratings: ratings}
}

// FitContext precomputes per-title popularity and the title-id maps. It must
// run once before SampleAndRecommend or the metric helpers.
func (e *Evaluator) FitContext() error {
	if len(e.games) == 0 {
		return errors.Annotate(base.ErrData, "empty game catalog")
	}
	e.titleById = make(map[int64]string, len(e.games))
	e.idByTitle = make(map[string]int64, len(e.games))
	for _, game := range e.games {
		if _, exist := e.titleById[game.GameId]; !exist {
			e.titleById[game.GameId] = game.Title
		}
		if _, exist := e.idByTitle[game.Title]; !exist {
			e.idByTitle[game.Title] = game.GameId
		}
	}
	e.userRatings = make(map[int64][]dataset.Rating)
	e.users = e.users[:0]
	raters := make(map[int64]mapset.Set[int64])
	for _, rating := range e.ratings {
		if _, exist := e.userRatings[rating.UserId]; !exist {
			e.users = append(e.users, rating.UserId)
		}
		e.userRatings[rating.UserId] = append(e.userRatings[rating.UserId], rating)
		if _, exist := raters[rating.GameId]; !exist {
			raters[rating.GameId] = mapset.NewSet[int64]()
		}
		raters[rating.GameId].Add(rating.UserId)
	}
	e.popularity = make(map[string]float64, len(raters))
	numUsers := float64(len(e.users))
	if numUsers > 0 {
		for gameId, userSet := range raters {
			if title, exist := e.titleById[gameId]; exist {
				e.popularity[title] = float64(userSet.Cardinality()) / numUsers
			}
		}
	}
	e.fitted = true
	log.Logger().Info("fit evaluation context",
		zap.Int("num_users", len(e.users)),
		zap.Int("num_games", len(e.games)),
		zap.Int("num_ratings", len(e.ratings)))
	return nil
}

// SampleAndRecommend draws up to maxUsers distinct users with a seeded RNG
// and collects up to n recommendations for each. The seed item per user is a
// uniformly random liked interaction when one exists, otherwise a uniformly
// random catalog item. A user for whom recommendation fails or returns
// nothing contributes an empty list; one user never aborts the batch.
func (e *Evaluator) SampleAndRecommend(maxUsers, n int, opts SampleOptions) (map[int64][]string, error) {
	if !e.fitted {
		return nil, errors.Annotate(base.ErrData, "evaluation context not fitted")
	}
	rng := base.NewRandomGenerator(opts.Seed)
	indices := rng.Sample(0, len(e.users), maxUsers)
	results := make(map[int64][]string, len(indices))
	for i, index := range indices {
		userId := e.users[index]
		seedTitle := e.selectSeed(userId, rng)
		recs := e.safeRecommend(userId, seedTitle, n)
		if recs == nil {
			recs = []string{}
		}
		results[userId] = recs
		if opts.Progress != nil && opts.ProgressStep > 0 &&
			((i+1)%opts.ProgressStep == 0 || i+1 == len(indices)) {
			percent := opts.Start + opts.Range*float64(i+1)/float64(len(indices))
			opts.Progress(int(percent))
		}
	}
	return results, nil
}

// selectSeed picks the seed title for a user: a random liked interaction when
// one exists, a random catalog item otherwise.
func (e *Evaluator) selectSeed(userId int64, rng base.RandomGenerator) string {
	var liked []int64
	for _, rating := range e.userRatings[userId] {
		if rating.Rating >= dataset.LikeThreshold {
			liked = append(liked, rating.GameId)
		}
	}
	if len(liked) > 0 {
		if title, exist := e.titleById[liked[rng.Intn(len(liked))]]; exist {
			return title
		}
	}
	return e.games[rng.Intn(len(e.games))].Title
}

// safeRecommend shields the batch from a panicking recommender.
func (e *Evaluator) safeRecommend(userId int64, seedTitle string, n int) (recs []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Warn("recommendation failed during evaluation",
				zap.Int64("user_id", userId),
				zap.String("seed_title", seedTitle),
				zap.Any("panic", r))
			recs = nil
		}
	}()
	return e.rec.Recommend(userId, seedTitle, n)
}

// LikedTitles returns the set of liked titles per user, the ground truth for
// precision.
func (e *Evaluator) LikedTitles() map[int64]mapset.Set[string] {
	liked := make(map[int64]mapset.Set[string], len(e.users))
	for userId, ratings := range e.userRatings {
		titles := mapset.NewSet[string]()
		for _, rating := range ratings {
			if rating.Rating >= dataset.LikeThreshold {
				if title, exist := e.titleById[rating.GameId]; exist {
					titles.Add(title)
				}
			}
		}
		liked[userId] = titles
	}
	return liked
}

// CatalogTitles returns the set of distinct titles in the catalog.
func (e *Evaluator) CatalogTitles() mapset.Set[string] {
	titles := mapset.NewSet[string]()
	for _, game := range e.games {
		titles.Add(game.Title)
	}
	return titles
}

// Popularity returns the per-title popularity computed by FitContext.
func (e *Evaluator) Popularity() map[string]float64 {
	return e.popularity
}

// PrecisionAtK computes mean precision at k over users with a non-empty
// recommendation list: the intersection of each user's first k titles with
// that user's liked titles, divided by k. Returns 0 when every list is empty.
func PrecisionAtK(results map[int64][]string, liked map[int64]mapset.Set[string], k int) float64 {
	if k <= 0 {
		return 0
	}
	var sum float64
	var count int
	for userId, titles := range results {
		if len(titles) == 0 {
			continue
		}
		if len(titles) > k {
			titles = titles[:k]
		}
		var hits int
		if likedSet, exist := liked[userId]; exist {
			for _, title := range titles {
				if likedSet.Contains(title) {
					hits++
				}
			}
		}
		sum += float64(hits) / float64(k)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Coverage computes the fraction of distinct catalog titles that appear
// anywhere in the results. Returns 0 for an empty catalog.
func Coverage(results map[int64][]string, catalog mapset.Set[string]) float64 {
	if catalog.Cardinality() == 0 {
		return 0
	}
	recommended := mapset.NewSet[string]()
	for _, titles := range results {
		for _, title := range titles {
			recommended.Add(title)
		}
	}
	return float64(recommended.Cardinality()) / float64(catalog.Cardinality())
}

// Novelty computes the mean of -log2(popularity) over every recommended
// (user, title) pair whose title has strictly positive popularity. Returns 0
// when no such pair exists.
func Novelty(results map[int64][]string, popularity map[string]float64) float64 {
	var sum float64
	var count int
	for _, titles := range results {
		for _, title := range titles {
			if pop := popularity[title]; pop > 0 {
				sum += -math.Log2(pop)
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Metrics is the result of one evaluation run.
type Metrics struct {
	Precision float64 `json:"precision_at_k"`
	Coverage  float64 `json:"coverage"`
	Novelty   float64 `json:"novelty"`
	NumUsers  int     `json:"num_users"`
	K         int     `json:"k"`
}

// Evaluate runs the full pipeline: sample users, generate recommendations and
// score them with all three metrics.
func (e *Evaluator) Evaluate(maxUsers, n, k int, opts SampleOptions) (Metrics, error) {
	results, err := e.SampleAndRecommend(maxUsers, n, opts)
	if err != nil {
		return Metrics{}, errors.Trace(err)
	}
	metrics := Metrics{
		Precision: PrecisionAtK(results, e.LikedTitles(), k),
		Coverage:  Coverage(results, e.CatalogTitles()),
		Novelty:   Novelty(results, e.Popularity()),
		NumUsers:  len(results),
		K:         k,
	}
	log.Logger().Info("evaluation complete",
		zap.Int("num_users", metrics.NumUsers),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("coverage", metrics.Coverage),
		zap.Float64("novelty", metrics.Novelty))
	return metrics, nil
}
