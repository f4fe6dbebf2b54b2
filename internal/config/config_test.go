package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nmap", cfg.Engine.BinaryPath)
	assert.Equal(t, 10, cfg.Scanning.WorkerPoolSize)
	assert.Equal(t, "default", cfg.Scanning.DefaultMode)
	assert.Equal(t, 5*time.Minute, cfg.Scanning.JobTimeout)
	assert.Equal(t, 3, cfg.Scanning.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Scanning.Retry.BackoffMultiplier)
	assert.False(t, cfg.Store.Persist)
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults, rest keeps them", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scanweave.yaml")
		data := `
scanning:
  worker_pool_size: 4
  default_mode: version
  retry:
    max_retries: 1
    retry_delay: 500ms
    backoff_multiplier: 1.5
store:
  persist: true
  path: results.db
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 4, cfg.Scanning.WorkerPoolSize)
		assert.Equal(t, "version", cfg.Scanning.DefaultMode)
		assert.Equal(t, 1, cfg.Scanning.Retry.MaxRetries)
		assert.Equal(t, 500*time.Millisecond, cfg.Scanning.Retry.RetryDelay)
		assert.True(t, cfg.Store.Persist)
		assert.Equal(t, "results.db", cfg.Store.Path)

		// Untouched sections keep defaults.
		assert.Equal(t, "nmap", cfg.Engine.BinaryPath)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("invalid YAML fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scanning: ["), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeConfiguration))
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		data := `
scanning:
  default_mode: stealth
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeValidation))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Scanning.WorkerPoolSize = 0 }},
		{"zero queue", func(c *Config) { c.Scanning.QueueSize = 0 }},
		{"unknown mode", func(c *Config) { c.Scanning.DefaultMode = "stealth" }},
		{"zero timeout", func(c *Config) { c.Scanning.JobTimeout = 0 }},
		{"negative retries", func(c *Config) { c.Scanning.Retry.MaxRetries = -1 }},
		{"multiplier below one", func(c *Config) { c.Scanning.Retry.BackoffMultiplier = 0.5 }},
		{"empty binary path", func(c *Config) { c.Engine.BinaryPath = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"persist without path", func(c *Config) { c.Store.Persist = true; c.Store.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "scanweave.yaml")

	cfg := Default()
	cfg.Scanning.WorkerPoolSize = 7
	cfg.Scanning.DefaultPorts = "22,80,443"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
