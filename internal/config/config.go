package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines client configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
}

type EngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	// HeartbeatStale is how long a streaming connection may go without a
	// heartbeat before the dashboard flags it. Three missed 15s heartbeats.
	HeartbeatStale time.Duration `yaml:"heartbeat_stale"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file (SIMDASH_CONFIG_PATH)
// and environment variables.
func Load() (Config, error) {
	return LoadPath(os.Getenv("SIMDASH_CONFIG_PATH"))
}

// LoadPath is Load with an explicit config file path. An empty path skips the
// file and uses defaults plus environment overrides.
func LoadPath(path string) (Config, error) {
	cfg := Config{
		Engine: EngineConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:   4 * time.Second,
			BackoffBase:    2 * time.Second,
			BackoffMax:     30 * time.Second,
			HeartbeatStale: 45 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if url := os.Getenv("SIMDASH_ENGINE_URL"); url != "" {
		cfg.Engine.BaseURL = url
	}
	if timeoutStr := os.Getenv("SIMDASH_ENGINE_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SIMDASH_ENGINE_TIMEOUT: %w", err)
		}
		cfg.Engine.Timeout = timeout
	}
	if intervalStr := os.Getenv("SIMDASH_POLL_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SIMDASH_POLL_INTERVAL: %w", err)
		}
		cfg.Sync.PollInterval = interval
	}
	if level := os.Getenv("SIMDASH_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

// ParseLevel maps a config level string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
