package config

import (
	"time"

	redisclient "github.com/vietddude/fleetclient/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// APIConfig holds the backend connection settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig holds the per-call retry budget.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"` // 0 = uncapped
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DiagnosticsConfig holds the diagnostics server and correlation history settings.
type DiagnosticsConfig struct {
	Port         int                `yaml:"port"`
	History      int                `yaml:"history"`       // ids kept per operation
	PollInterval time.Duration      `yaml:"poll_interval"` // backend health poll
	Redis        redisclient.Config `yaml:"redis"`         // optional mirror
}
