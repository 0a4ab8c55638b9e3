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

package base

import "github.com/juju/errors"

// Hard failure categories. Soft outcomes (unknown seed title, unknown user)
// are represented as empty results, never as errors.
var (
	// ErrData reports malformed or missing input tables at fit time. The
	// previous fitted state, if any, remains usable.
	ErrData = errors.New("malformed or missing input data")
	// ErrFit reports a numerical failure during factorization. It aborts the
	// current fit attempt only.
	ErrFit = errors.New("model fitting failed")
	// ErrPersistence reports a missing or corrupt model artifact on load, or
	// a write failure on save.
	ErrPersistence = errors.New("model artifact unreadable or unwritable")
)
