package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-match/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "12:00:00", cfg.StaticTime)
	assert.Equal(t, "results", cfg.OutputDir)
	assert.Equal(t, 5000, cfg.ChunkSize)
	assert.Equal(t, IndexRTree, cfg.IndexBackend)
	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.Equal(t, "restaurants", cfg.RestaurantTable)
	assert.Equal(t, ":9595", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Server.JobTTL)
	assert.Empty(t, cfg.UserFiles)

	at, err := cfg.ReferenceTime()
	require.NoError(t, err)
	assert.Equal(t, models.Noon, at)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
restaurant_file: data/input/restaurants.csv
output_dir: data/output
static_time: "23:00:00"
user_files:
  - data/input/users_1_10.csv
  - data/input/users_11_100.csv
workers: 4
server:
  login_user: admin
`), 0o644))

	t.Setenv("DELIVERY_MATCH_CHUNK_SIZE", "250")
	t.Setenv("DELIVERY_MATCH_SERVER_LOGIN_PASS", "secret")
	t.Setenv("DELIVERY_MATCH_SERVER_JOB_TTL", "15m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/input/restaurants.csv", cfg.RestaurantFile)
	assert.Equal(t, "data/output", cfg.OutputDir)
	assert.Equal(t, "23:00:00", cfg.StaticTime)
	assert.Equal(t, []string{"data/input/users_1_10.csv", "data/input/users_11_100.csv"}, cfg.UserFiles)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 250, cfg.ChunkSize)
	assert.Equal(t, "admin", cfg.Server.LoginUser)
	assert.Equal(t, "secret", cfg.Server.LoginPass)
	assert.Equal(t, 15*time.Minute, cfg.Server.JobTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, models.ErrConfig))
}

func TestValidate(t *testing.T) {
	valid := RunConfig{
		RestaurantFile: "r.csv",
		StaticTime:     "12:00:00",
		IndexBackend:   IndexRTree,
		OutputFormat:   "csv",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"no restaurant source", func(c *RunConfig) { c.RestaurantFile = "" }},
		{"bad time", func(c *RunConfig) { c.StaticTime = "noon" }},
		{"unknown index", func(c *RunConfig) { c.IndexBackend = "kdtree" }},
		{"unknown format", func(c *RunConfig) { c.OutputFormat = "parquet" }},
		{"negative workers", func(c *RunConfig) { c.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrConfig))
		})
	}
}
