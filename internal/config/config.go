// Package config defines the application configuration, loaded through
// viper from file, environment, and defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Session      SessionConfig      `mapstructure:"session" yaml:"session"`
	Simulation   SimulationConfig   `mapstructure:"simulation" yaml:"simulation"`
	Media        MediaConfig        `mapstructure:"media" yaml:"media"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator" yaml:"collaborator"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// SessionConfig seeds and sizes a narrative session.
type SessionConfig struct {
	Seed            int64  `mapstructure:"seed" yaml:"seed"`
	ProceduralCast  int    `mapstructure:"procedural_cast" yaml:"procedural_cast"`
	SnapshotPath    string `mapstructure:"snapshot_path" yaml:"snapshot_path"`
	TurnKeepCount   int    `mapstructure:"turn_keep_count" yaml:"turn_keep_count"`
	ProtagonistNode string `mapstructure:"protagonist_node" yaml:"protagonist_node"`
}

// SimulationConfig tunes the concurrent agent simulation executor.
type SimulationConfig struct {
	SelectionCount int           `mapstructure:"selection_count" yaml:"selection_count"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	RateLimitBase  time.Duration `mapstructure:"rate_limit_base" yaml:"rate_limit_base"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// MediaConfig tunes the artifact generation scheduler.
type MediaConfig struct {
	ConcurrencyCap int           `mapstructure:"concurrency_cap" yaml:"concurrency_cap"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	RateLimitBase  time.Duration `mapstructure:"rate_limit_base" yaml:"rate_limit_base"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// CollaboratorConfig points at the external reasoning/direction/media
// endpoint.
type CollaboratorConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RetryWindow       time.Duration `mapstructure:"retry_window" yaml:"retry_window"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// SetDefaults initializes default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "courtmind")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Session --
	v.SetDefault("session.seed", 1)
	v.SetDefault("session.procedural_cast", 5)
	v.SetDefault("session.snapshot_path", "session.json")
	v.SetDefault("session.turn_keep_count", 200)
	v.SetDefault("session.protagonist_node", "protagonist")

	// -- Simulation --
	v.SetDefault("simulation.selection_count", 3)
	v.SetDefault("simulation.max_retries", 3)
	v.SetDefault("simulation.backoff_base", "500ms")
	v.SetDefault("simulation.rate_limit_base", "2s")
	v.SetDefault("simulation.call_timeout", "45s")

	// -- Media --
	v.SetDefault("media.concurrency_cap", 2)
	v.SetDefault("media.max_retries", 3)
	v.SetDefault("media.poll_interval", "250ms")
	v.SetDefault("media.backoff_base", "1s")
	v.SetDefault("media.rate_limit_base", "4s")
	v.SetDefault("media.attempt_timeout", "2m")

	// -- Collaborator --
	v.SetDefault("collaborator.base_url", "http://localhost:8600")
	v.SetDefault("collaborator.request_timeout", "90s")
	v.SetDefault("collaborator.retry_window", "20s")
	v.SetDefault("collaborator.requests_per_second", 2.0)
}

// NewDefaultConfig returns a config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a config from a viper instance
// that has already read its sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("collaborator.api_key", "COURTMIND_COLLAB_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and sane values.
func (c *Config) Validate() error {
	if c.Simulation.SelectionCount <= 0 {
		return fmt.Errorf("simulation.selection_count must be a positive integer")
	}
	if c.Simulation.MaxRetries < 0 {
		return fmt.Errorf("simulation.max_retries must not be negative")
	}
	if c.Media.ConcurrencyCap < 1 {
		return fmt.Errorf("media.concurrency_cap must be at least 1")
	}
	if c.Media.PollInterval <= 0 {
		return fmt.Errorf("media.poll_interval must be a positive duration")
	}
	if c.Session.TurnKeepCount < 1 {
		return fmt.Errorf("session.turn_keep_count must be at least 1")
	}
	if c.Session.ProtagonistNode == "" {
		return fmt.Errorf("session.protagonist_node is required")
	}
	return nil
}
