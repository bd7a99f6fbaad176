// Copyright 2025 Dataflix Project Authors
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

package config

import (
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefault(t *testing.T) {
	viper.Reset()
	setDefault()
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	configFile := path.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(configFile, []byte(`
[database]
interactions = "sqlite://data.db"
artifacts = "/var/lib/dataflix"

[nmf]
n_components = 16
max_iter = 500
tol = 1e-5
random_state = 7

[trainer]
train_period = "30m"

[server]
http_host = "0.0.0.0"
http_port = 9000
`), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://data.db", config.Database.Interactions)
	assert.Equal(t, "/var/lib/dataflix", config.Database.Artifacts)
	assert.Equal(t, 16, config.NMF.NComponents)
	assert.Equal(t, 500, config.NMF.MaxIterations)
	assert.Equal(t, float32(1e-5), config.NMF.Tolerance)
	assert.Equal(t, int64(7), config.NMF.RandomState)
	assert.Equal(t, 30*time.Minute, config.Trainer.TrainPeriod)
	assert.Equal(t, "0.0.0.0", config.Server.HttpHost)
	assert.Equal(t, 9000, config.Server.HttpPort)
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 10, config.NMF.NComponents)
	assert.Equal(t, 200, config.NMF.MaxIterations)
	assert.Equal(t, time.Hour, config.Trainer.TrainPeriod)
	assert.Equal(t, 8087, config.Server.HttpPort)
}

func TestBindEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("DATAFLIX_DATABASE_INTERACTIONS", "sqlite://env.db")
	t.Setenv("DATAFLIX_SERVER_HTTP_HOST", "env_host")
	t.Setenv("DATAFLIX_SERVER_HTTP_PORT", "123")
	t.Setenv("DATAFLIX_TRAINER_TRAIN_PERIOD", "5m")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://env.db", config.Database.Interactions)
	assert.Equal(t, "env_host", config.Server.HttpHost)
	assert.Equal(t, 123, config.Server.HttpPort)
	assert.Equal(t, 5*time.Minute, config.Trainer.TrainPeriod)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	assert.NoError(t, config.Validate())
	config.Database.Interactions = "unknown://server"
	assert.Error(t, config.Validate())
	config = GetDefaultConfig()
	config.NMF.NComponents = 0
	assert.Error(t, config.Validate())
	config = GetDefaultConfig()
	config.NMF.MaxIterations = -1
	assert.Error(t, config.Validate())
	config = GetDefaultConfig()
	config.Trainer.TrainPeriod = 0
	assert.Error(t, config.Validate())
}
