package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanweave/scanweave/internal/config"
	"github.com/scanweave/scanweave/internal/scanning"
)

func TestApplyScanFlags(t *testing.T) {
	defer func() { scanFlags.mode, scanFlags.ports, scanFlags.workers, scanFlags.retries = "", "", 0, -1 }()

	cfg := config.Default()
	scanFlags.mode = "syn"
	scanFlags.ports = "1-1024"
	scanFlags.workers = 3
	scanFlags.retries = -1

	applyScanFlags(cfg)

	assert.Equal(t, "syn", cfg.Scanning.DefaultMode)
	assert.Equal(t, "1-1024", cfg.Scanning.DefaultPorts)
	assert.Equal(t, 3, cfg.Scanning.WorkerPoolSize)
}

func TestApplyScanFlagsLeavesDefaultsAlone(t *testing.T) {
	defer func() { scanFlags.retries = -1 }()
	scanFlags.retries = -1

	cfg := config.Default()
	applyScanFlags(cfg)
	assert.Equal(t, config.Default(), cfg)
}

func TestBuildScanOptions(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		cfg := config.Default()
		cfg.Scanning.DefaultMode = "version"
		cfg.Scanning.DefaultPorts = "22,443"

		opts, err := buildScanOptions(cfg)
		require.NoError(t, err)
		assert.Equal(t, scanning.ModeVersion, opts.Mode)
		assert.Equal(t, "22,443", opts.Ports)
	})

	t.Run("unknown mode fails", func(t *testing.T) {
		cfg := config.Default()
		cfg.Scanning.DefaultMode = "stealth"

		_, err := buildScanOptions(cfg)
		assert.Error(t, err)
	})

	t.Run("bad port spec fails", func(t *testing.T) {
		cfg := config.Default()
		cfg.Scanning.DefaultPorts = "0-99999"

		_, err := buildScanOptions(cfg)
		assert.Error(t, err)
	})
}

func TestBuildJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Scanning.JobTimeout = 30 * time.Second
	cfg.Scanning.Retry.MaxRetries = 1
	opts := scanning.Options{Mode: scanning.ModeDefault}

	t.Run("expands and deduplicates hosts", func(t *testing.T) {
		jobs, invalid, err := buildJobs(context.Background(), cfg, opts,
			[]string{"192.168.1.0/30", "192.168.1.1"})
		require.NoError(t, err)
		assert.Empty(t, invalid)

		hosts := make([]string, 0, len(jobs))
		for _, job := range jobs {
			hosts = append(hosts, job.Host)
			assert.Equal(t, 30*time.Second, job.Timeout)
			assert.Equal(t, 1, job.MaxRetries)
		}
		assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, hosts)
	})

	t.Run("invalid specs are collected, valid ones survive", func(t *testing.T) {
		jobs, invalid, err := buildJobs(context.Background(), cfg, opts,
			[]string{"10.0.0.1", "not a host"})
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
		assert.Len(t, invalid, 1)
	})

	t.Run("all specs invalid is an error", func(t *testing.T) {
		_, _, err := buildJobs(context.Background(), cfg, opts,
			[]string{"not a host", "also;bad"})
		assert.Error(t, err)
	})
}

func TestModeList(t *testing.T) {
	list := modeList()
	for _, m := range scanning.Modes() {
		assert.Contains(t, list, m.String())
	}
}
