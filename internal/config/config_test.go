package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30.0, cfg.Provider.RequestsPerMinute)
	assert.Equal(t, 2*time.Second, cfg.Provider.MinInterval)
	assert.Equal(t, 20000.0, cfg.Scan.HighTierMinUsd)
	assert.Equal(t, 24*time.Hour, cfg.Scan.IncrementalBuffer)
	assert.Equal(t, 0.10, cfg.Audit.Tolerance)
	assert.Equal(t, 7*24*time.Hour, cfg.Lifecycle.UnresolvableProbeInterval)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LeaseTTL)
	assert.Zero(t, cfg.Schedule.ScanInterval)

	// Defaults need a store.
	assert.Error(t, cfg.Validate())
	cfg.Storage.UseMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ATH_STORAGE_POSTGRES_DSN", "postgres://u:p@db:5432/ath")
	t.Setenv("ATH_HTTP_AUTH_TOKEN", "s3cret")
	t.Setenv("ATH_SCAN_LIMIT", "7")
	t.Setenv("ATH_PROVIDER_MIN_INTERVAL", "500ms")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/ath", cfg.Storage.PostgresDSN)
	assert.Equal(t, "s3cret", cfg.HTTP.AuthToken)
	assert.Equal(t, 7, cfg.Scan.Limit)
	assert.Equal(t, 500*time.Millisecond, cfg.Provider.MinInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
storage:
  use_memory: true
scan:
  high_tier_min_usd: 50000
  batch_size: 10
alert:
  webhook_url: https://hooks.example.com/ath
schedule:
  scan_interval: 5m
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.True(t, cfg.Storage.UseMemory)
	assert.Equal(t, 50000.0, cfg.Scan.HighTierMinUsd)
	assert.Equal(t, 10, cfg.Scan.BatchSize)
	assert.Equal(t, 25, NewDefaultsOnly().Scan.BatchSize)
	assert.Equal(t, "https://hooks.example.com/ath", cfg.Alert.WebhookURL)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.ScanInterval)

	// Explicit file path.
	explicit := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("scan:\n  limit: 3\n"), 0o644))
	cfg, err = Load(NewViper(), explicit)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scan.Limit)

	_, err = Load(NewViper(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero rate", func(c *Config) { c.Provider.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"inverted tiers", func(c *Config) { c.Scan.HighTierMinUsd = 500 }, "scan tiers"},
		{"zero weights", func(c *Config) { c.Scan.HighTierWeight, c.Scan.LowTierWeight = 0, 0 }, "weights"},
		{"tolerance above one", func(c *Config) { c.Audit.Tolerance = 1.5 }, "audit.tolerance"},
		{"zero batch", func(c *Config) { c.Scan.BatchSize = 0 }, "batch_size"},
		{"step below one", func(c *Config) { c.Scan.AlertStepRatio = 0.9 }, "alert_step_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultsOnly()
			cfg.Storage.UseMemory = true
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
