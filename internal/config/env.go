package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// applyEnv overrides c with any CHRONICLE_* variables that are set.
func (c *Config) applyEnv() error {
	c.Env = getEnv("CHRONICLE_ENV", c.Env)
	c.Log.Level = getEnv("CHRONICLE_LOG_LEVEL", c.Log.Level)
	c.Store.Driver = getEnv("CHRONICLE_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("CHRONICLE_STORE_DSN", c.Store.DSN)
	c.Cache.Backend = getEnv("CHRONICLE_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnv("CHRONICLE_CACHE_REDIS_ADDR", c.Cache.RedisAddr)

	var err error
	if c.Snapshot.Interval, err = getEnvInt("CHRONICLE_SNAPSHOT_INTERVAL", c.Snapshot.Interval); err != nil {
		return err
	}
	if c.Cache.TTL, err = getEnvDuration("CHRONICLE_CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}
	if c.Correlation.Window, err = getEnvDuration("CHRONICLE_CORRELATION_WINDOW", c.Correlation.Window); err != nil {
		return err
	}
	if c.Correlation.MaxRelated, err = getEnvInt("CHRONICLE_CORRELATION_MAX_RELATED", c.Correlation.MaxRelated); err != nil {
		return err
	}
	if c.Correlation.MaxDuration, err = getEnvDuration("CHRONICLE_CORRELATION_MAX_DURATION", c.Correlation.MaxDuration); err != nil {
		return err
	}
	if c.Anomaly.MaxEventsPerType, err = getEnvInt("CHRONICLE_ANOMALY_MAX_EVENTS_PER_TYPE", c.Anomaly.MaxEventsPerType); err != nil {
		return err
	}
	if c.Replay.MaxDuration, err = getEnvDuration("CHRONICLE_REPLAY_MAX_DURATION", c.Replay.MaxDuration); err != nil {
		return err
	}
	if c.Telemetry.Enabled, err = getEnvBool("CHRONICLE_TELEMETRY_ENABLED", c.Telemetry.Enabled); err != nil {
		return err
	}
	return nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, envError(key, v, "integer")
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, envError(key, v, "duration")
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, envError(key, v, "boolean")
	}
	return b, nil
}

func envError(key, value, want string) error {
	return &Error{Code: ErrCodeParse, Path: key, Message: fmt.Sprintf("%q is not a valid %s", value, want)}
}
