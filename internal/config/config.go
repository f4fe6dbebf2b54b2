// Package config provides configuration loading and validation for scanweave.
// Configuration is read from a YAML file with defaults applied first, and
// validated before use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
)

// Config represents the complete scanweave configuration.
type Config struct {
	// Engine configuration for the external scan binary
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Store configuration
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig describes how the external scan engine is invoked.
type EngineConfig struct {
	// Path to the engine binary; resolved via PATH when not absolute
	BinaryPath string `yaml:"binary_path" json:"binary_path" validate:"required"`

	// Extra arguments appended to every invocation
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`
}

// ScanningConfig holds scanning and orchestration settings.
type ScanningConfig struct {
	// Number of concurrent scanning workers
	WorkerPoolSize int `yaml:"worker_pool_size" json:"worker_pool_size" validate:"min=1"`

	// Maximum number of jobs that can be queued
	QueueSize int `yaml:"queue_size" json:"queue_size" validate:"min=1"`

	// Default scan mode
	DefaultMode string `yaml:"default_mode" json:"default_mode" validate:"oneof=ping version os syn default"`

	// Default ports to scan; empty lets the engine pick
	DefaultPorts string `yaml:"default_ports" json:"default_ports"`

	// Per-job wall-clock timeout
	JobTimeout time.Duration `yaml:"job_timeout" json:"job_timeout" validate:"gt=0"`

	// Maximum number of hosts a CIDR target may expand to
	MaxCIDRHosts int `yaml:"max_cidr_hosts" json:"max_cidr_hosts" validate:"min=1"`

	// Enrich literal IP targets with reverse DNS lookups
	ReverseDNS bool `yaml:"reverse_dns" json:"reverse_dns"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Maximum job launches per second (0 = no limit)
	RateLimit int `yaml:"rate_limit" json:"rate_limit" validate:"min=0"`
}

// RetryConfig holds retry settings for transient scan failures.
type RetryConfig struct {
	// Maximum number of retries after the initial attempt
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"min=0"`

	// Delay before the first retry
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`

	// Exponential backoff multiplier applied per attempt
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`
}

// StoreConfig holds result store settings.
type StoreConfig struct {
	// Persist results to a SQLite database
	Persist bool `yaml:"persist" json:"persist"`

	// Database file path; used when Persist is true
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BinaryPath: "nmap",
		},
		Scanning: ScanningConfig{
			WorkerPoolSize: 10,
			QueueSize:      256,
			DefaultMode:    "default",
			DefaultPorts:   "",
			JobTimeout:     5 * time.Minute,
			MaxCIDRHosts:   1024,
			ReverseDNS:     false,
			Retry: RetryConfig{
				MaxRetries:        3,
				RetryDelay:        2 * time.Second,
				BackoffMultiplier: 2.0,
			},
			RateLimit: 0,
		},
		Store: StoreConfig{
			Persist: false,
			Path:    "scanweave.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a file, applying defaults for anything the
// file does not set. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path is operator-supplied
	if err != nil {
		return nil, scanerrors.WrapConfigError(scanerrors.CodeConfiguration,
			"failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, scanerrors.WrapConfigError(scanerrors.CodeConfiguration,
			"failed to parse YAML config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return scanerrors.NewConfigFieldError(scanerrors.CodeValidation,
				fmt.Sprintf("invalid configuration value (rule: %s)", first.Tag()),
				first.Namespace(), first.Value())
		}
		return scanerrors.WrapConfigError(scanerrors.CodeValidation,
			"configuration validation failed", err)
	}

	if c.Store.Persist && c.Store.Path == "" {
		return scanerrors.NewConfigFieldError(scanerrors.CodeConfiguration,
			"store path is required when persistence is enabled", "Store.Path", "")
	}

	return nil
}
