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
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base/log"
	"github.com/gamelens/gamelens/config"
	"github.com/gamelens/gamelens/dataset"
	"github.com/gamelens/gamelens/evaluator"
	"github.com/gamelens/gamelens/jobs"
	"github.com/gamelens/gamelens/model/mf"
	"github.com/gamelens/gamelens/recommender"
	"github.com/gamelens/gamelens/server"
)

var rootCommand = &cobra.Command{
	Use:   "gamelens",
	Short: "A hybrid game recommender system.",
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		store, err := jobs.Open(conf.Server.JobDatabase)
		if err != nil {
			log.Logger().Fatal("failed to open job database", zap.Error(err))
		}
		s := server.NewRestServer(conf, store)
		if err := s.Serve(); err != nil {
			log.Logger().Fatal("rest server failed", zap.Error(err))
		}
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train the recommender and save the model artifact.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		games, err := dataset.LoadGames(conf.Data.GamesPath)
		if err != nil {
			log.Logger().Fatal("failed to load games", zap.Error(err))
		}
		ratings, err := dataset.LoadRatings(conf.Data.RatingsPath)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.Error(err))
		}
		rec := recommender.NewHybridRecommender(conf.Model.GetParams())
		fitConfig := mf.NewFitConfig().SetTracker(newBarTracker("training"))
		err = rec.Fit(games, ratings, recommender.FitOptions{
			RefitContent:       true,
			RefitCollaborative: true,
			Config:             fitConfig,
		})
		if err != nil {
			log.Logger().Fatal("training failed", zap.Error(err))
		}
		if err = rec.Save(conf.Model.Path); err != nil {
			log.Logger().Fatal("failed to save model", zap.Error(err))
		}
		fmt.Printf("model saved to %s\n", conf.Model.Path)
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a saved model with precision, coverage and novelty.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		games, err := dataset.LoadGames(conf.Data.GamesPath)
		if err != nil {
			log.Logger().Fatal("failed to load games", zap.Error(err))
		}
		ratings, err := dataset.LoadRatings(conf.Data.RatingsPath)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.Error(err))
		}
		rec, err := recommender.Load(conf.Model.Path)
		if err != nil {
			log.Logger().Fatal("failed to load model", zap.Error(err))
		}
		eval := evaluator.NewEvaluator(rec, games, ratings)
		if err = eval.FitContext(); err != nil {
			log.Logger().Fatal("failed to fit evaluation context", zap.Error(err))
		}
		bar := progressbar.Default(100, "evaluating")
		opts := evaluator.SampleOptions{
			Seed:         conf.Evaluate.Seed,
			ProgressStep: conf.Evaluate.ProgressStep,
			Start:        0,
			Range:        100,
			Progress: func(percent int) {
				_ = bar.Set(percent)
			},
		}
		metrics, err := eval.Evaluate(
			conf.Evaluate.MaxUsers,
			conf.Evaluate.NumRecommendations,
			conf.Evaluate.TopK, opts)
		if err != nil {
			log.Logger().Fatal("evaluation failed", zap.Error(err))
		}
		encoded, _ := json.MarshalIndent(metrics, "", "  ")
		fmt.Println(string(encoded))
	},
}

var prepareCommand = &cobra.Command{
	Use:   "prepare",
	Short: "Convert raw catalog, metadata and review files into prepared tables.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		opts := dataset.PrepareOptions{
			GamesOut:   conf.Data.GamesPath,
			RatingsOut: conf.Data.RatingsPath,
		}
		opts.GamesCSV, _ = cmd.Flags().GetString("games")
		opts.MetadataJSON, _ = cmd.Flags().GetString("metadata")
		opts.ReviewsCSV, _ = cmd.Flags().GetString("reviews")
		if err := dataset.Prepare(opts); err != nil {
			log.Logger().Fatal("data preparation failed", zap.Error(err))
		}
		fmt.Printf("prepared tables written to %s and %s\n", opts.GamesOut, opts.RatingsOut)
	},
}

func mustLoadConfig(cmd *cobra.Command) *config.Config {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	log.SetLogger(cmd.Root().PersistentFlags(), debug)
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config",
			zap.String("config", configPath), zap.Error(err))
	}
	return conf
}

// barTracker shows fit progress as a terminal progress bar.
type barTracker struct {
	bar         *progressbar.ProgressBar
	description string
}

func newBarTracker(description string) *barTracker {
	return &barTracker{description: description}
}

func (t *barTracker) Start(total int) {
	t.bar = progressbar.Default(int64(total), t.description)
}

func (t *barTracker) Update(done int) {
	if t.bar != nil {
		_ = t.bar.Set(done)
	}
}

func (t *barTracker) Finish() {
	if t.bar != nil {
		_ = t.bar.Finish()
	}
}

func init() {
	rootCommand.PersistentFlags().String("config", "", "configuration file path")
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	log.AddFlags(rootCommand.PersistentFlags())
	prepareCommand.Flags().String("games", "", "raw games csv")
	prepareCommand.Flags().String("metadata", "", "raw metadata json lines")
	prepareCommand.Flags().String("reviews", "", "raw reviews csv")
	rootCommand.AddCommand(serveCommand, trainCommand, evaluateCommand, prepareCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
