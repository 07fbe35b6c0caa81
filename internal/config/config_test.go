package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gonzo.yaml")
	doc := `
monitor:
  news_interval: 3
  fetch_timeout: 10s
publish:
  max_candidate_age: 2
rate_limit:
  capacity: 5
  refill_per_cycle: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Monitor.NewsInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.FetchTimeout.Std())
	assert.Equal(t, int64(2), cfg.Publish.MaxCandidateAge)
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
	// Untouched fields keep defaults.
	assert.Equal(t, 0.6, cfg.Narrative.Threshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gonzo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  fetch_timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero news interval", func(c *Config) { c.Monitor.NewsInterval = 0 }},
		{"negative move threshold", func(c *Config) { c.Monitor.MoveThresholdPct = -1 }},
		{"floor above one", func(c *Config) { c.Analyzer.Floor = 1.5 }},
		{"threshold below zero", func(c *Config) { c.Narrative.Threshold = -0.1 }},
		{"zero candidate age", func(c *Config) { c.Publish.MaxCandidateAge = 0 }},
		{"zero retry budget", func(c *Config) { c.Recovery.RetryBudget = 0 }},
		{"zero capacity", func(c *Config) { c.RateLimit.Capacity = 0 }},
		{"min length above max", func(c *Config) { c.Publish.MinLength = 300 }},
		{"backoff base above max", func(c *Config) { c.Recovery.BackoffBase = 99 }},
		{"trend length one", func(c *Config) { c.Analyzer.TrendLength = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
