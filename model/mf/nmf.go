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

// Package mf implements the latent factor model of the recommender:
// non-negative matrix factorization of the user-item rating matrix.
package mf

import (
	"fmt"
	"io"
	"time"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/encoding"
	"github.com/gamelens/gamelens/base/floats"
	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/model"
)

// denominator guard for multiplicative updates
const epsilon = 1e-9

// FitConfig carries fitting options.
type FitConfig struct {
	Verbose int           // log reconstruction error every Verbose epochs
	Tracker model.Tracker // optional progress observer
}

// NewFitConfig creates a FitConfig with default values.
func NewFitConfig() *FitConfig {
	return &FitConfig{Verbose: 50}
}

// SetTracker sets the progress tracker.
func (config *FitConfig) SetTracker(tracker model.Tracker) *FitConfig {
	config.Tracker = tracker
	return config
}

// LoadDefaultIfNil returns a default config if nil.
func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// NMF factors the zero-filled rating matrix V (users × items) into
// non-negative W (users × k) and H (items × k) such that V ≈ W·Hᵀ, using
// Lee-Seung multiplicative updates on the Frobenius objective. Unobserved
// cells are treated as zeros, a documented approximation rather than true
// missing-data modeling.
//
// Hyper-parameters:
//
//	NFactors    - The number of latent factors. Default is 20.
//	NEpochs     - The number of update iterations. Default is 400.
//	RandomState - The random seed. Default is 42.
type NMF struct {
	model.BaseModel
	UserIndex  *base.Index
	ItemIndex  *base.Index
	UserFactor [][]float32 // W
	ItemFactor [][]float32 // H
	// rated items per user, kept for exclusion in TopN
	UserRated [][]int32
	// hyper-parameters
	nFactors int
	nEpochs  int
}

// NewNMF creates an NMF model.
func NewNMF(params model.Params) *NMF {
	nmf := new(NMF)
	nmf.SetParams(params)
	return nmf
}

// SetParams sets hyper-parameters of the NMF model.
func (nmf *NMF) SetParams(params model.Params) {
	nmf.BaseModel.SetParams(params)
	nmf.nFactors = nmf.Params.GetInt(model.NFactors, 20)
	nmf.nEpochs = nmf.Params.GetInt(model.NEpochs, 400)
}

// Invalid reports whether the model has not been fit.
func (nmf *NMF) Invalid() bool {
	return nmf == nil ||
		nmf.UserIndex == nil ||
		nmf.ItemIndex == nil ||
		nmf.UserFactor == nil ||
		nmf.ItemFactor == nil
}

// Clear drops all fitted state.
func (nmf *NMF) Clear() {
	nmf.UserIndex = nil
	nmf.ItemIndex = nil
	nmf.UserFactor = nil
	nmf.ItemFactor = nil
	nmf.UserRated = nil
}

// IsUserPredictable reports whether a user is known to the model.
func (nmf *NMF) IsUserPredictable(userId int64) bool {
	return !nmf.Invalid() && nmf.UserIndex.ToNumber(userId) != base.NotId
}

// Fit factors the rating matrix. An empty or degenerate matrix fails the fit
// attempt without touching previously fitted state.
func (nmf *NMF) Fit(trainSet *DataSet, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	if trainSet.Count() == 0 || trainSet.UserCount() == 0 || trainSet.ItemCount() == 0 {
		return errors.Annotatef(base.ErrFit, "empty rating matrix")
	}
	log.Logger().Info("fit nmf",
		zap.Int("num_users", trainSet.UserCount()),
		zap.Int("num_items", trainSet.ItemCount()),
		zap.Int("num_ratings", trainSet.Count()),
		zap.Any("params", nmf.GetParams()))
	if config.Tracker != nil {
		config.Tracker.Start(nmf.nEpochs)
	}
	numUsers, numItems := trainSet.UserCount(), trainSet.ItemCount()
	// Initialize factors uniformly in [0, sqrt(mean/k)) so the initial
	// product has the same scale as the rating matrix.
	rng := nmf.GetRandomGenerator()
	scale := math32.Sqrt(trainSet.Mean() / float32(nmf.nFactors))
	if scale <= 0 || math32.IsNaN(scale) {
		return errors.Annotatef(base.ErrFit, "degenerate rating matrix")
	}
	userFactor := rng.UniformMatrix(numUsers, nmf.nFactors, 0, scale)
	itemFactor := rng.UniformMatrix(numItems, nmf.nFactors, 0, scale)
	// buffers reused across epochs
	gram := floats.NewMatrix32(nmf.nFactors, nmf.nFactors)
	numer := floats.NewMatrix32(maxInt(numUsers, numItems), nmf.nFactors)
	denom := make([]float32, nmf.nFactors)
	fitStart := time.Now()
	for epoch := 1; epoch <= nmf.nEpochs; epoch++ {
		// H <- H * (V^T W) / (H W^T W)
		updateFactor(itemFactor, userFactor, trainSet.ItemFeedback, trainSet.ItemRatings, gram, numer, denom)
		// W <- W * (V H) / (W H^T H)
		updateFactor(userFactor, itemFactor, trainSet.UserFeedback, trainSet.UserRatings, gram, numer, denom)
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == nmf.nEpochs) {
			log.Logger().Debug(fmt.Sprintf("fit nmf %v/%v", epoch, nmf.nEpochs),
				zap.Float32("observed_rmse", observedRMSE(trainSet, userFactor, itemFactor)),
				zap.String("fit_time", time.Since(fitStart).String()))
		}
		if config.Tracker != nil {
			config.Tracker.Update(epoch)
		}
	}
	for _, row := range userFactor {
		for _, v := range row {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return errors.Annotatef(base.ErrFit, "factorization diverged")
			}
		}
	}
	// commit fitted state only after the whole fit succeeded
	nmf.UserIndex = trainSet.UserIndex
	nmf.ItemIndex = trainSet.ItemIndex
	nmf.UserFactor = userFactor
	nmf.ItemFactor = itemFactor
	nmf.UserRated = trainSet.UserFeedback
	if config.Tracker != nil {
		config.Tracker.Finish()
	}
	log.Logger().Info("fit nmf complete",
		zap.Float32("observed_rmse", observedRMSE(trainSet, userFactor, itemFactor)))
	return nil
}

// updateFactor applies one multiplicative update to target given the other
// factor matrix fixed. feedback and ratings hold, per target row, the indices
// and values of observed cells in that row's slice of the rating matrix.
func updateFactor(target, other [][]float32, feedback [][]int32, ratings [][]float32, gram, numer [][]float32, denom []float32) {
	k := len(denom)
	// gram = otherᵀ·other, shared by every target row
	floats.MatZero(gram)
	for _, row := range other {
		for f := 0; f < k; f++ {
			if row[f] != 0 {
				for g := 0; g < k; g++ {
					gram[f][g] += row[f] * row[g]
				}
			}
		}
	}
	// numer = V·other, using observed cells only; zero-filled cells
	// contribute nothing to the numerator by construction
	for i := range target {
		numerRow := numer[i]
		for f := 0; f < k; f++ {
			numerRow[f] = 0
		}
		for j, index := range feedback[i] {
			floats.MulConstAddTo(other[index], ratings[i][j], numerRow)
		}
	}
	for i := range target {
		targetRow := target[i]
		for f := 0; f < k; f++ {
			denom[f] = 0
			for g := 0; g < k; g++ {
				denom[f] += targetRow[g] * gram[g][f]
			}
		}
		// turn the numerator row into the multiplicative ratio in place
		numerRow := numer[i]
		for f := 0; f < k; f++ {
			numerRow[f] /= denom[f] + epsilon
		}
		floats.MulTo(targetRow, numerRow, targetRow)
	}
}

// observedRMSE computes root-mean-square error over observed cells. Cheap
// enough to log during training without touching the dense product.
func observedRMSE(trainSet *DataSet, userFactor, itemFactor [][]float32) float32 {
	var sum float32
	for userIndex, items := range trainSet.UserFeedback {
		for j, itemIndex := range items {
			diff := trainSet.UserRatings[userIndex][j] - floats.Dot(userFactor[userIndex], itemFactor[itemIndex])
			sum += diff * diff
		}
	}
	return math32.Sqrt(sum / float32(trainSet.Count()))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// InternalPredict predicts a rating by dense indices.
func (nmf *NMF) InternalPredict(userIndex, itemIndex int32) float32 {
	if userIndex == base.NotId || itemIndex == base.NotId {
		return 0
	}
	return floats.Dot(nmf.UserFactor[userIndex], nmf.ItemFactor[itemIndex])
}

// Predict returns the predicted affinity of a user for every known item,
// indexed by dense item index. Unknown users yield nil: collaborative signal
// unavailable, not an error.
func (nmf *NMF) Predict(userId int64) []float32 {
	if nmf.Invalid() {
		return nil
	}
	userIndex := nmf.UserIndex.ToNumber(userId)
	if userIndex == base.NotId {
		return nil
	}
	scores := make([]float32, nmf.ItemIndex.Len())
	for itemIndex := range scores {
		scores[itemIndex] = floats.Dot(nmf.UserFactor[userIndex], nmf.ItemFactor[itemIndex])
	}
	return scores
}

// TopN returns the item IDs with the highest predicted affinity for a user,
// descending, ties broken by ascending dense index. Items the user already
// rated are removed when excludeRated is set. Unknown users yield nil.
func (nmf *NMF) TopN(userId int64, n int, excludeRated bool) []int64 {
	if nmf.Invalid() || n <= 0 {
		return nil
	}
	userIndex := nmf.UserIndex.ToNumber(userId)
	if userIndex == base.NotId {
		return nil
	}
	rated := make(map[int32]struct{})
	if excludeRated {
		for _, itemIndex := range nmf.UserRated[userIndex] {
			rated[itemIndex] = struct{}{}
		}
	}
	filter := base.NewTopKFilter(n)
	for itemIndex := int32(0); itemIndex < nmf.ItemIndex.Len(); itemIndex++ {
		if _, exist := rated[itemIndex]; exist {
			continue
		}
		filter.Push(itemIndex, floats.Dot(nmf.UserFactor[userIndex], nmf.ItemFactor[itemIndex]))
	}
	indices, _ := filter.PopAll()
	ids := make([]int64, len(indices))
	for i, itemIndex := range indices {
		ids[i] = nmf.ItemIndex.ToId(itemIndex)
	}
	return ids
}

// Marshal writes the model to a byte stream.
func (nmf *NMF) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, nmf.Params); err != nil {
		return errors.Trace(err)
	}
	if err := nmf.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := nmf.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, nmf.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, nmf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteGob(w, nmf.UserRated))
}

// Unmarshal reads the model from a byte stream.
func (nmf *NMF) Unmarshal(r io.Reader) error {
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	nmf.SetParams(params)
	var err error
	if nmf.UserIndex, err = base.UnmarshalIndex(r); err != nil {
		return errors.Trace(err)
	}
	if nmf.ItemIndex, err = base.UnmarshalIndex(r); err != nil {
		return errors.Trace(err)
	}
	nmf.UserFactor = floats.NewMatrix32(int(nmf.UserIndex.Len()), nmf.nFactors)
	if err = encoding.ReadMatrix(r, nmf.UserFactor); err != nil {
		return errors.Trace(err)
	}
	nmf.ItemFactor = floats.NewMatrix32(int(nmf.ItemIndex.Len()), nmf.nFactors)
	if err = encoding.ReadMatrix(r, nmf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.ReadGob(r, &nmf.UserRated))
}
