// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Sqream  SqreamConfig   `yaml:"sqream" validate:"required"`
	Loki    LokiConfig     `yaml:"loki" validate:"required"`
	Server  ServerConfig   `yaml:"server"`
	Checkup CheckupConfig  `yaml:"checkup"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics map[string]int `yaml:"metrics" validate:"required,min=1"`
}

type SqreamConfig struct {
	Host           string `yaml:"host" validate:"required"`
	Port           int    `yaml:"port" validate:"required,gt=0"`
	User           string `yaml:"user" validate:"required"`
	Password       string `yaml:"password" validate:"required"`
	Database       string `yaml:"database" validate:"required"`
	Service        string `yaml:"service"`
	SSLMode        string `yaml:"ssl_mode"`
	MaxConns       int    `yaml:"max_conns"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms"`
}

type LokiConfig struct {
	Host          string `yaml:"host" validate:"required"`
	Port          int    `yaml:"port" validate:"required,gt=0"`
	PushPath      string `yaml:"push_path"`
	ReadyPath     string `yaml:"ready_path"`
	PushTimeoutMS int    `yaml:"push_timeout_ms"`
}

type ServerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type CheckupConfig struct {
	Attempts  int `yaml:"attempts"`
	BackoffMS int `yaml:"backoff_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Global validator instance
var validate = validator.New()

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	// Poll intervals come from the operator as whole seconds and act as the
	// retry delay on failed cycles, so zero is as invalid as negative.
	for name, interval := range c.Metrics {
		if interval <= 0 {
			return fmt.Errorf("metric %q: poll interval must be a positive number of seconds, got %d", name, interval)
		}
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("logging level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides checks for environment variables with MONITOR_ prefix
func applyEnvOverrides(cfg *Config) {
	// Sqream overrides
	if v := os.Getenv("MONITOR_SQREAM_HOST"); v != "" {
		cfg.Sqream.Host = v
	}
	if v := os.Getenv("MONITOR_SQREAM_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Sqream.Port)
	}
	if v := os.Getenv("MONITOR_SQREAM_USER"); v != "" {
		cfg.Sqream.User = v
	}
	if v := os.Getenv("MONITOR_SQREAM_PASSWORD"); v != "" {
		cfg.Sqream.Password = v
	}

	// Loki overrides
	if v := os.Getenv("MONITOR_LOKI_HOST"); v != "" {
		cfg.Loki.Host = v
	}
	if v := os.Getenv("MONITOR_LOKI_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Loki.Port)
	}

	if v := os.Getenv("MONITOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Sqream.Service == "" {
		cfg.Sqream.Service = "monitor"
	}
	if cfg.Sqream.MaxConns <= 0 {
		cfg.Sqream.MaxConns = 4
	}
	if cfg.Sqream.QueryTimeoutMS <= 0 {
		cfg.Sqream.QueryTimeoutMS = 30000
	}
	if cfg.Loki.PushPath == "" {
		cfg.Loki.PushPath = "/loki/api/v1/push"
	}
	if cfg.Loki.ReadyPath == "" {
		cfg.Loki.ReadyPath = "/ready"
	}
	if cfg.Loki.PushTimeoutMS <= 0 {
		cfg.Loki.PushTimeoutMS = 10000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS <= 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS <= 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Checkup.Attempts <= 0 {
		cfg.Checkup.Attempts = 3
	}
	if cfg.Checkup.BackoffMS <= 0 {
		cfg.Checkup.BackoffMS = 2000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetQueryTimeout returns the per-query timeout as a duration
func (s *SqreamConfig) GetQueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMS) * time.Millisecond
}

// GetDSN returns the SQream connection string (postgres wire format)
func (s *SqreamConfig) GetDSN() string {
	sslMode := s.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.Database, sslMode,
	)
}

// GetPushURL returns the full Loki push endpoint URL
func (l *LokiConfig) GetPushURL() string {
	return fmt.Sprintf("http://%s:%d%s", l.Host, l.Port, l.PushPath)
}

// GetReadyURL returns the full Loki readiness endpoint URL
func (l *LokiConfig) GetReadyURL() string {
	return fmt.Sprintf("http://%s:%d%s", l.Host, l.Port, l.ReadyPath)
}

// GetPushTimeout returns the push timeout as a duration
func (l *LokiConfig) GetPushTimeout() time.Duration {
	return time.Duration(l.PushTimeoutMS) * time.Millisecond
}

// GetBackoff returns the checkup retry backoff as a duration
func (c *CheckupConfig) GetBackoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
