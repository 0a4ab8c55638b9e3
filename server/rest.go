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

// Package server exposes the recommender over HTTP. The fitted model lives
// behind an atomic pointer; request handlers only ever read it, and training
// swaps in a fresh instance after the fit completes.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync/atomic"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/config"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/evaluator"
	"github.com/gamelens/gamelens/jobs"
	"github.com/gamelens/gamelens/recommender"
)

// RestServer serves recommendations and drives background training and
// evaluation jobs.
type RestServer struct {
	Config *config.Config
	Jobs   *jobs.Store

	rec  atomic.Pointer[recommender.HybridRecommender]
	busy atomic.Bool

	WebService *restful.WebService
}

// NewRestServer creates a server. A previously saved artifact, if present at
// the configured path, is loaded so serving survives restarts.
func NewRestServer(conf *config.Config, store *jobs.Store) *RestServer {
	s := &RestServer{Config: conf, Jobs: store}
	if rec, err := recommender.Load(conf.Model.Path); err == nil {
		s.rec.Store(rec)
	} else {
		log.Logger().Warn("no model artifact loaded", zap.Error(err))
	}
	s.CreateWebService()
	return s
}

// Recommender returns the currently served model, or nil when none is loaded.
func (s *RestServer) Recommender() *recommender.HybridRecommender {
	return s.rec.Load()
}

// CreateWebService registers all routes.
func (s *RestServer) CreateWebService() {
	ws := new(restful.WebService)
	ws.Path("/api/").Produces(restful.MIME_JSON)

	ws.Route(ws.GET("/status").To(s.getStatus).
		Doc("Get the server status.").
		Writes(StatusResponse{}))
	ws.Route(ws.GET("/recommend").To(s.getRecommend).
		Doc("Get recommendations for a user and a seed title.").
		Param(ws.QueryParameter("user_id", "user id").DataType("integer")).
		Param(ws.QueryParameter("title", "seed game title").DataType("string")).
		Param(ws.QueryParameter("n", "number of recommendations").DataType("integer")).
		Writes(RecommendResponse{}))
	ws.Route(ws.GET("/games/search").To(s.searchGames).
		Doc("Search catalog titles by substring.").
		Param(ws.QueryParameter("q", "query string").DataType("string")).
		Param(ws.QueryParameter("limit", "maximum results").DataType("integer")).
		Writes([]dataset.Game{}))
	ws.Route(ws.POST("/train").To(s.postTrain).
		Doc("Start a background training job.").
		Writes(JobResponse{}))
	ws.Route(ws.POST("/evaluate").To(s.postEvaluate).
		Doc("Start a background evaluation job.").
		Writes(JobResponse{}))
	ws.Route(ws.GET("/evaluate/status").To(s.getEvaluateStatus).
		Doc("Get the latest evaluation job.").
		Writes(jobs.Job{}))
	ws.Route(ws.GET("/jobs/{job-id}").To(s.getJob).
		Doc("Get a job by id.").
		Param(ws.PathParameter("job-id", "job id").DataType("string")).
		Writes(jobs.Job{}))
	s.WebService = ws
}

// Serve blocks, listening on the configured address.
func (s *RestServer) Serve() error {
	container := restful.NewContainer()
	container.Add(s.WebService)
	address := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	log.Logger().Info("start rest server", zap.String("address", address))
	return errors.Trace(http.ListenAndServe(address, container))
}

// StatusResponse is the payload of GET /api/status.
type StatusResponse struct {
	ModelLoaded bool   `json:"model_loaded"`
	NumGames    int    `json:"num_games"`
	Busy        bool   `json:"busy"`
	ModelPath   string `json:"model_path"`
}

// RecommendResponse is the payload of GET /api/recommend.
type RecommendResponse struct {
	UserId  int64    `json:"user_id"`
	Seed    string   `json:"seed"`
	Results []string `json:"results"`
}

// JobResponse is the payload of POST /api/train and /api/evaluate.
type JobResponse struct {
	JobId string `json:"job_id"`
}

func (s *RestServer) getStatus(_ *restful.Request, response *restful.Response) {
	rec := s.Recommender()
	status := StatusResponse{
		ModelLoaded: rec != nil,
		Busy:        s.busy.Load(),
		ModelPath:   s.Config.Model.Path,
	}
	if rec != nil {
		status.NumGames = len(rec.Games)
	}
	Ok(response, status)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	rec := s.Recommender()
	if rec == nil {
		ServiceUnavailable(response, errors.New("no model loaded"))
		return
	}
	userId, err := strconv.ParseInt(request.QueryParameter("user_id"), 10, 64)
	if err != nil {
		BadRequest(response, errors.Annotate(err, "invalid user_id"))
		return
	}
	title := request.QueryParameter("title")
	n := 10
	if raw := request.QueryParameter("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil || n <= 0 {
			BadRequest(response, errors.New("invalid n"))
			return
		}
	}
	results := rec.Recommend(userId, title, n)
	if results == nil {
		results = []string{}
	}
	Ok(response, RecommendResponse{UserId: userId, Seed: title, Results: results})
}

func (s *RestServer) searchGames(request *restful.Request, response *restful.Response) {
	rec := s.Recommender()
	if rec == nil {
		ServiceUnavailable(response, errors.New("no model loaded"))
		return
	}
	query := request.QueryParameter("q")
	limit := 20
	if raw := request.QueryParameter("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			BadRequest(response, errors.New("invalid limit"))
			return
		}
	}
	matches := rec.SearchTitles(query, limit)
	if matches == nil {
		matches = []dataset.Game{}
	}
	Ok(response, matches)
}

func (s *RestServer) postTrain(_ *restful.Request, response *restful.Response) {
	if !s.busy.CompareAndSwap(false, true) {
		Conflict(response, errors.New("another job is running"))
		return
	}
	job, err := s.Jobs.Create(jobs.TypeTrain, "")
	if err != nil {
		s.busy.Store(false)
		InternalServerError(response, err)
		return
	}
	go s.runTrain(job.ID)
	Ok(response, JobResponse{JobId: job.ID})
}

func (s *RestServer) postEvaluate(_ *restful.Request, response *restful.Response) {
	if s.Recommender() == nil {
		ServiceUnavailable(response, errors.New("no model loaded"))
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		Conflict(response, errors.New("another job is running"))
		return
	}
	job, err := s.Jobs.Create(jobs.TypeEvaluate, "")
	if err != nil {
		s.busy.Store(false)
		InternalServerError(response, err)
		return
	}
	go s.runEvaluate(job.ID)
	Ok(response, JobResponse{JobId: job.ID})
}

func (s *RestServer) getEvaluateStatus(_ *restful.Request, response *restful.Response) {
	job, err := s.Jobs.Latest(jobs.TypeEvaluate)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	if job == nil {
		PageNotFound(response, errors.New("no evaluation has been run"))
		return
	}
	Ok(response, job)
}

func (s *RestServer) getJob(request *restful.Request, response *restful.Response) {
	job, err := s.Jobs.Get(request.PathParameter("job-id"))
	if err != nil {
		PageNotFound(response, errors.New("job not found"))
		return
	}
	Ok(response, job)
}

// recoverJob is the panic boundary of background jobs: a panic marks the job
// failed instead of taking down the serving process.
func (s *RestServer) recoverJob(jobId string) {
	if r := recover(); r != nil {
		log.Logger().Error("job panicked",
			zap.String("job_id", jobId),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())))
		if err := s.Jobs.Fail(jobId, fmt.Sprintf("panic: %v", r)); err != nil {
			log.Logger().Error("failed to mark job failed", zap.Error(err))
		}
	}
}

// runTrain executes a training job: load tables, fit both components, save
// the artifact and swap the serving pointer. Failures mark the job failed and
// leave the current model serving.
func (s *RestServer) runTrain(jobId string) {
	defer s.busy.Store(false)
	defer s.recoverJob(jobId)
	if err := s.Jobs.Start(jobId); err != nil {
		log.Logger().Error("failed to start job", zap.String("job_id", jobId), zap.Error(err))
		return
	}
	fail := func(err error) {
		log.Logger().Error("training job failed", zap.String("job_id", jobId), zap.Error(err))
		if failErr := s.Jobs.Fail(jobId, err.Error()); failErr != nil {
			log.Logger().Error("failed to mark job failed", zap.Error(failErr))
		}
	}
	games, err := dataset.LoadGames(s.Config.Data.GamesPath)
	if err != nil {
		fail(err)
		return
	}
	ratings, err := dataset.LoadRatings(s.Config.Data.RatingsPath)
	if err != nil {
		fail(err)
		return
	}
	sink := s.Jobs.ProgressSink(jobId)
	rec := recommender.NewHybridRecommender(s.Config.Model.GetParams())
	err = rec.Fit(games, ratings, recommender.FitOptions{
		RefitContent:       true,
		RefitCollaborative: true,
		Config:             NewFitConfigWithSink(sink, 0, 90),
	})
	if err != nil {
		fail(err)
		return
	}
	if err = rec.Save(s.Config.Model.Path); err != nil {
		fail(err)
		return
	}
	s.rec.Store(rec)
	results, _ := json.Marshal(map[string]int{"num_games": len(games), "num_ratings": len(ratings)})
	if err = s.Jobs.Complete(jobId, string(results)); err != nil {
		log.Logger().Error("failed to complete job", zap.String("job_id", jobId), zap.Error(err))
	}
}

// runEvaluate executes an evaluation job against the currently served model.
func (s *RestServer) runEvaluate(jobId string) {
	defer s.busy.Store(false)
	defer s.recoverJob(jobId)
	if err := s.Jobs.Start(jobId); err != nil {
		log.Logger().Error("failed to start job", zap.String("job_id", jobId), zap.Error(err))
		return
	}
	fail := func(err error) {
		log.Logger().Error("evaluation job failed", zap.String("job_id", jobId), zap.Error(err))
		if failErr := s.Jobs.Fail(jobId, err.Error()); failErr != nil {
			log.Logger().Error("failed to mark job failed", zap.Error(failErr))
		}
	}
	games, err := dataset.LoadGames(s.Config.Data.GamesPath)
	if err != nil {
		fail(err)
		return
	}
	ratings, err := dataset.LoadRatings(s.Config.Data.RatingsPath)
	if err != nil {
		fail(err)
		return
	}
	eval := evaluator.NewEvaluator(s.Recommender(), games, ratings)
	if err = eval.FitContext(); err != nil {
		fail(err)
		return
	}
	opts := evaluator.SampleOptions{
		Seed:         s.Config.Evaluate.Seed,
		ProgressStep: s.Config.Evaluate.ProgressStep,
		Start:        0,
		Range:        100,
		Progress:     evaluator.ProgressSink(s.Jobs.ProgressSink(jobId)),
	}
	metrics, err := eval.Evaluate(
		s.Config.Evaluate.MaxUsers,
		s.Config.Evaluate.NumRecommendations,
		s.Config.Evaluate.TopK, opts)
	if err != nil {
		fail(err)
		return
	}
	results, _ := json.Marshal(metrics)
	if err = s.Jobs.Complete(jobId, string(results)); err != nil {
		log.Logger().Error("failed to complete job", zap.String("job_id", jobId), zap.Error(err))
	}
}

// BadRequest writes a bad request error.
func BadRequest(response *restful.Response, err error) {
	log.Logger().Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError writes an internal server error.
func InternalServerError(response *restful.Response, err error) {
	log.Logger().Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound writes a not found error.
func PageNotFound(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable writes a service unavailable error.
func ServiceUnavailable(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// Conflict writes a conflict error.
func Conflict(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusConflict, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// Ok writes the content as JSON.
func Ok(response *restful.Response, content interface{}) {
	if err := response.WriteAsJson(content); err != nil {
		log.Logger().Error("failed to write json", zap.Error(err))
	}
}
