// Package config loads run and server settings from an optional config file
// and DELIVERY_MATCH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"delivery-match/internal/calculator"
	"delivery-match/internal/dataio"
	"delivery-match/internal/models"
	"delivery-match/internal/store"
)

const (
	EnvPrefix = "DELIVERY_MATCH"

	IndexRTree = "rtree"
	IndexRedis = "redis"
)

type RunConfig struct {
	RestaurantFile  string   `mapstructure:"restaurant_file"`
	OutputDir       string   `mapstructure:"output_dir"`
	StaticTime      string   `mapstructure:"static_time"`
	UserFiles       []string `mapstructure:"user_files"`
	Workers         int      `mapstructure:"workers"`
	ChunkSize       int      `mapstructure:"chunk_size"`
	IndexBackend    string   `mapstructure:"index_backend"`
	RedisAddr       string   `mapstructure:"redis_addr"`
	RestaurantTable string   `mapstructure:"restaurant_table"`
	OutputFormat    string   `mapstructure:"output_format"`
	BenchmarkLog    string   `mapstructure:"benchmark_log"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	SessionSecret string `mapstructure:"session_secret"`
	LoginUser     string `mapstructure:"login_user"`
	LoginPass     string `mapstructure:"login_pass"`
	UploadDir     string `mapstructure:"upload_dir"`
	// Finished jobs older than this are dropped; zero keeps them forever.
	JobTTL time.Duration `mapstructure:"job_ttl"`
}

type Config struct {
	RunConfig `mapstructure:",squash"`
	Server    ServerConfig `mapstructure:"server"`
	LogLevel  string       `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("restaurant_file", "")
	v.SetDefault("output_dir", "results")
	v.SetDefault("static_time", "12:00:00")
	v.SetDefault("user_files", []string{})
	v.SetDefault("workers", 0)
	v.SetDefault("chunk_size", calculator.DefaultChunkSize)
	v.SetDefault("index_backend", IndexRTree)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("restaurant_table", store.DefaultTable)
	v.SetDefault("output_format", dataio.FormatCSV)
	v.SetDefault("benchmark_log", "benchmark_results.csv")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":9595")
	v.SetDefault("server.session_secret", "")
	v.SetDefault("server.login_user", "")
	v.SetDefault("server.login_pass", "")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.job_ttl", time.Hour)
}

// Load reads configFile when given, then overlays the environment.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", models.ErrConfig, configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	return cfg, nil
}

// ReferenceTime parses StaticTime.
func (c RunConfig) ReferenceTime() (models.ClockTime, error) {
	return models.ParseClock(c.StaticTime)
}

func (c RunConfig) Validate() error {
	if c.RestaurantFile == "" {
		return models.Configf("restaurant_file is required")
	}
	if _, err := c.ReferenceTime(); err != nil {
		return fmt.Errorf("static_time: %w", err)
	}
	switch c.IndexBackend {
	case IndexRTree, IndexRedis:
	default:
		return models.Configf("unknown index_backend %q", c.IndexBackend)
	}
	switch c.OutputFormat {
	case dataio.FormatCSV, dataio.FormatXLSX:
	default:
		return models.Configf("unknown output_format %q", c.OutputFormat)
	}
	if c.Workers < 0 || c.ChunkSize < 0 {
		return models.Configf("workers and chunk_size must not be negative")
	}
	return nil
}
