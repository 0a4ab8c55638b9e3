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

// Package jobs tracks long-running background work (training, evaluation) in
// a local SQLite database. Jobs outlive the process, so a restart can report
// what was interrupted.
package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gamelens/gamelens/base/log"
)

// Job types.
const (
	TypeTrain    = "train"
	TypeEvaluate = "evaluate"
)

// Job statuses. A job moves pending -> running -> completed or failed.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one tracked unit of background work. Params and Results hold
// JSON-encoded payloads owned by the caller.
type Job struct {
	ID           string `gorm:"primaryKey"`
	Type         string `gorm:"index"`
	Status       string `gorm:"index"`
	Progress     int
	Params       string
	Results      string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists jobs in SQLite.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the job database at path, migrates the
// schema and fails any job left running by a previous process.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = db.AutoMigrate(&Job{}); err != nil {
		return nil, errors.Trace(err)
	}
	store := &Store{db: db}
	if err = store.recoverOrphans(); err != nil {
		return nil, errors.Trace(err)
	}
	return store, nil
}

// recoverOrphans marks jobs left running by a dead process as failed. Running
// computations cannot be resumed, only reported.
func (s *Store) recoverOrphans() error {
	result := s.db.Model(&Job{}).
		Where("status = ?", StatusRunning).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": "interrupted by process restart",
		})
	if result.Error != nil {
		return errors.Trace(result.Error)
	}
	if result.RowsAffected > 0 {
		log.Logger().Warn("marked orphaned jobs as failed",
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

// Create inserts a pending job and returns it.
func (s *Store) Create(jobType, params string) (*Job, error) {
	job := &Job{
		ID:     uuid.NewString(),
		Type:   jobType,
		Status: StatusPending,
		Params: params,
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return job, nil
}

// Get returns a job by id.
func (s *Store) Get(id string) (*Job, error) {
	var job Job
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return &job, nil
}

// Latest returns the most recently created job of a type, or nil when none
// exists.
func (s *Store) Latest(jobType string) (*Job, error) {
	var job Job
	err := s.db.Where("type = ?", jobType).Order("created_at desc").First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &job, nil
}

// Start transitions a job to running.
func (s *Store) Start(id string) error {
	return errors.Trace(s.db.Model(&Job{ID: id}).
		Updates(map[string]interface{}{"status": StatusRunning, "progress": 0}).Error)
}

// UpdateProgress records progress, clamped into [0, 100].
func (s *Store) UpdateProgress(id string, percent int) error {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	return errors.Trace(s.db.Model(&Job{ID: id}).Update("progress", percent).Error)
}

// ProgressSink returns a fire-and-forget progress callback bound to a job.
// Write failures are logged and swallowed; progress is best effort.
func (s *Store) ProgressSink(id string) func(percent int) {
	return func(percent int) {
		if err := s.UpdateProgress(id, percent); err != nil {
			log.Logger().Warn("failed to update job progress",
				zap.String("job_id", id), zap.Error(err))
		}
	}
}

// Complete marks a job completed with a JSON results payload.
func (s *Store) Complete(id, results string) error {
	return errors.Trace(s.db.Model(&Job{ID: id}).
		Updates(map[string]interface{}{
			"status":   StatusCompleted,
			"progress": 100,
			"results":  results,
		}).Error)
}

// Fail marks a job failed with a human-readable message.
func (s *Store) Fail(id, message string) error {
	return errors.Trace(s.db.Model(&Job{ID: id}).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": message,
		}).Error)
}
