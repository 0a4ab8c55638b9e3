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

// Package model holds hyper-parameter handling and the base type shared by
// trainable models.
package model

import (
	"github.com/gamelens/gamelens/base"
)

// Tracker observes the progress of a long-running fit or evaluation. A nil
// tracker is always permitted; progress reporting is best effort and must
// never abort the computation it observes.
type Tracker interface {
	// Start is called once with the total number of steps.
	Start(total int)
	// Update is called with the number of completed steps.
	Update(done int)
	// Finish is called when the computation completes.
	Finish()
}

// BaseModel must be embedded by every trainable model. Hyper-parameters and
// the seeded random generator are managed here.
type BaseModel struct {
	Params    Params               // hyper-parameters
	rng       base.RandomGenerator // random generator
	randState int64                // random seed
}

// SetParams sets hyper-parameters for the BaseModel.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 42)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns all hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

// GetRandomGenerator returns the seeded random generator.
func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}
