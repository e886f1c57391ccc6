// Package config loads chronicle's runtime configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and CHRONICLE_* environment variables. In development a
// .env file in the working directory is loaded first. The merged result is
// validated against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env         string            `yaml:"env"`
	Log         LogConfig         `yaml:"log"`
	Store       StoreConfig       `yaml:"store"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Cache       CacheConfig       `yaml:"cache"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Replay      ReplayConfig      `yaml:"replay"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SnapshotConfig struct {
	// Interval is the number of events between cached snapshots.
	Interval int `yaml:"interval"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redisAddr"`
	TTL       time.Duration `yaml:"ttl"`
}

type CorrelationConfig struct {
	Window     time.Duration `yaml:"window"`
	MaxRelated int           `yaml:"maxRelated"`

	// MaxDuration bounds each correlation; zero means unbounded.
	MaxDuration time.Duration `yaml:"maxDuration"`
}

type AnomalyConfig struct {
	MaxEventsPerType int `yaml:"maxEventsPerType"`
}

type ReplayConfig struct {
	// MaxDuration bounds each replay; zero means unbounded.
	MaxDuration time.Duration `yaml:"maxDuration"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:         EnvDevelopment,
		Log:         LogConfig{Level: "info"},
		Store:       StoreConfig{Driver: DriverSQLite, DSN: "chronicle.db"},
		Snapshot:    SnapshotConfig{Interval: 10},
		Cache:       CacheConfig{Backend: "memory", TTL: time.Hour},
		Correlation: CorrelationConfig{Window: 5 * time.Minute, MaxRelated: 500},
		Anomaly:     AnomalyConfig{MaxEventsPerType: 1000},
	}
}

// IsDevelopment reports whether the config targets local development.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction reports whether the config targets production.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	if getEnv("CHRONICLE_ENV", EnvDevelopment) == EnvDevelopment {
		_ = godotenv.Load(".env")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Code: ErrCodeParse, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return nil
}
