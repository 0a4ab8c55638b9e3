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

package model

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base/log"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names.
const (
	NFactors    ParamName = "NFactors"    // number of latent factors
	NEpochs     ParamName = "NEpochs"     // number of training epochs
	RandomState ParamName = "RandomState" // random seed
)

// Params stores hyper-parameters for a model. It is a map between names and
// values. For example, hyper-parameters for NMF are given by:
//
//	model.Params{
//		model.NFactors:    20,
//		model.NEpochs:     400,
//		model.RandomState: 42,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (params Params) Copy() Params {
	newParams := make(Params, len(params))
	for k, v := range params {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets an integer parameter by name. Returns _default if the name
// doesn't exist or the type doesn't match.
func (params Params) GetInt(name ParamName, _default int) int {
	if val, exist := params[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("unexpected parameter type",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. Returns _default if the name
// doesn't exist or the type doesn't match. Plain ints are converted.
func (params Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := params[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("unexpected parameter type",
				zap.String("name", string(name)),
				zap.String("type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}
