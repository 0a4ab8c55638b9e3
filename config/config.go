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

// Package config loads runtime configuration from a TOML file with
// environment-variable overrides (GAMELENS_ prefix).
package config

import (
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/gamelens/gamelens/model"
)

// Config is the root configuration.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DataConfig locates the input tables. Paths ending in .gz are read through
// gzip.
type DataConfig struct {
	GamesPath   string `mapstructure:"games_path"`
	RatingsPath string `mapstructure:"ratings_path"`
}

// ModelConfig holds the artifact path and collaborative hyper-parameters.
type ModelConfig struct {
	Path        string `mapstructure:"path"`
	NFactors    int    `mapstructure:"n_factors"`
	NEpochs     int    `mapstructure:"n_epochs"`
	RandomState int    `mapstructure:"random_state"`
}

// GetParams returns the hyper-parameters as model.Params.
func (c *ModelConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    c.NFactors,
		model.NEpochs:     c.NEpochs,
		model.RandomState: c.RandomState,
	}
}

// EvaluateConfig holds default knobs for evaluation runs.
type EvaluateConfig struct {
	MaxUsers           int   `mapstructure:"max_users"`
	NumRecommendations int   `mapstructure:"n_recommendations"`
	TopK               int   `mapstructure:"top_k"`
	ProgressStep       int   `mapstructure:"progress_step"`
	Seed               int64 `mapstructure:"seed"`
}

// ServerConfig holds the HTTP listener and the job database location.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	JobDatabase string `mapstructure:"job_database"`
}

func setDefault(v *viper.Viper) {
	v.SetDefault("data.games_path", "data/games.csv.gz")
	v.SetDefault("data.ratings_path", "data/ratings.csv.gz")
	v.SetDefault("model.path", "data/model.bin")
	v.SetDefault("model.n_factors", 20)
	v.SetDefault("model.n_epochs", 400)
	v.SetDefault("model.random_state", 42)
	v.SetDefault("evaluate.max_users", 1000)
	v.SetDefault("evaluate.n_recommendations", 10)
	v.SetDefault("evaluate.top_k", 10)
	v.SetDefault("evaluate.progress_step", 10)
	v.SetDefault("evaluate.seed", 42)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.job_database", "data/jobs.db")
}

// LoadConfig loads configuration from a TOML file. An empty path loads the
// defaults. Any value can be overridden through the environment, e.g.
// GAMELENS_SERVER_PORT=9000.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("gamelens")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
