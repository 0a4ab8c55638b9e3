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

package server

import "github.com/gamelens/gamelens/model/mf"

// jobTracker adapts fit progress (epochs) into a percent window of a job
// record.
type jobTracker struct {
	sink  func(percent int)
	start float64
	span  float64
	total int
}

func (t *jobTracker) Start(total int) {
	t.total = total
	t.sink(int(t.start))
}

func (t *jobTracker) Update(done int) {
	if t.total > 0 {
		t.sink(int(t.start + t.span*float64(done)/float64(t.total)))
	}
}

func (t *jobTracker) Finish() {
	t.sink(int(t.start + t.span))
}

// NewFitConfigWithSink builds a FitConfig whose progress lands in the
// [start, start+span] percent window of a job.
func NewFitConfigWithSink(sink func(percent int), start, span float64) *mf.FitConfig {
	return mf.NewFitConfig().SetTracker(&jobTracker{sink: sink, start: start, span: span})
}
