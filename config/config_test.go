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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamelens/gamelens/model"
)

func TestDefaults(t *testing.T) {
	conf, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 20, conf.Model.NFactors)
	assert.Equal(t, 400, conf.Model.NEpochs)
	assert.Equal(t, 42, conf.Model.RandomState)
	assert.Equal(t, "127.0.0.1", conf.Server.Host)
	assert.Equal(t, 8088, conf.Server.Port)
	assert.Equal(t, 1000, conf.Evaluate.MaxUsers)
	assert.Equal(t, 10, conf.Evaluate.TopK)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	text := `
[data]
games_path = "my/games.csv"

[model]
n_factors = 8
n_epochs = 50

[server]
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "my/games.csv", conf.Data.GamesPath)
	assert.Equal(t, 8, conf.Model.NFactors)
	assert.Equal(t, 50, conf.Model.NEpochs)
	assert.Equal(t, 9000, conf.Server.Port)
	// untouched keys keep defaults
	assert.Equal(t, 42, conf.Model.RandomState)
	assert.Equal(t, "data/ratings.csv.gz", conf.Data.RatingsPath)
}

func TestGetParams(t *testing.T) {
	conf, err := LoadConfig("")
	require.NoError(t, err)
	params := conf.Model.GetParams()
	assert.Equal(t, 20, params.GetInt(model.NFactors, 0))
	assert.Equal(t, 400, params.GetInt(model.NEpochs, 0))
	assert.Equal(t, int64(42), params.GetInt64(model.RandomState, 0))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GAMELENS_SERVER_PORT", "7000")
	conf, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7000, conf.Server.Port)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
