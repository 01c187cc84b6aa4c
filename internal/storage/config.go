// Loads the server configuration from config.yaml.

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the server. It is read from an optional
// YAML file; absent fields keep their defaults and command line flags
// override the file.
type Config struct {
	// Root is the directory holding data/ and uploads/.
	Root string `yaml:"root"`

	// HTTP is the address to listen on.
	HTTP string `yaml:"http"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFile, when set, receives a copy of the logs, rotated.
	LogFile LogFile `yaml:"log_file"`

	// History commits every table rewrite to a git repository in Root.
	History HistoryConfig `yaml:"history"`

	// Watch invalidates the table cache when table files are modified by
	// another process.
	Watch bool `yaml:"watch"`

	// RateLimits limits write requests per client.
	RateLimits RateLimits `yaml:"rate_limits"`
}

// LogFile configures the rotated log file.
type LogFile struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// HistoryConfig configures the git audit trail.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
}

// RateLimits defines rate limiting configuration.
type RateLimits struct {
	// WriteRatePerMin limits write operations (POST/PUT) per client IP.
	// 0 means unlimited.
	WriteRatePerMin int `yaml:"write_rate_per_min"`

	// WriteBurst is the number of writes allowed at once.
	WriteBurst int `yaml:"write_burst"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Root:     ".",
		HTTP:     "localhost:8080",
		LogLevel: "info",
		LogFile: LogFile{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		History: HistoryConfig{
			Name:  "inkwell",
			Email: "inkwell@localhost",
		},
		RateLimits: RateLimits{
			WriteRatePerMin: 60,
			WriteBurst:      10,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	if c.HTTP == "" {
		return errors.New("http is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if c.LogFile.MaxSizeMB < 0 || c.LogFile.MaxBackups < 0 || c.LogFile.MaxAgeDays < 0 {
		return errors.New("log_file: limits must be non-negative")
	}
	if c.History.Enabled && (c.History.Name == "" || c.History.Email == "") {
		return errors.New("history: name and email are required when enabled")
	}
	if c.RateLimits.WriteRatePerMin < 0 {
		return errors.New("rate_limits: write_rate_per_min must be non-negative")
	}
	if c.RateLimits.WriteBurst < 0 {
		return errors.New("rate_limits: write_burst must be non-negative")
	}
	return nil
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
