package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()
	assert.Equal(t, "accountpulse", cfg.AppName)
	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, 24, cfg.VisitWindowHours)
	assert.Equal(t, 300, cfg.TouchScanIntervalSeconds)
	assert.Equal(t, 4, cfg.GetAggregationWorkers())
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, filepath.Join("storage", "accountpulse-development.db"), cfg.DatabaseName)
	assert.Same(t, cfg, GetConfig(), "configuration is cached")
}

func TestGetConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("ACCOUNTPULSE_ENV", Test)
	t.Setenv("ACCOUNTPULSE_ADMIN_TOKEN", "s3cret")
	t.Setenv("ACCOUNTPULSE_VISIT_WINDOW_HOURS", "12")
	t.Setenv("ACCOUNTPULSE_AGGREGATION_WORKERS", "0")
	t.Setenv("ACCOUNTPULSE_STORAGE_PATH", "/tmp/pulse")
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()
	assert.True(t, cfg.IsTest())
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, 12, cfg.VisitWindowHours)
	assert.Equal(t, 1, cfg.GetAggregationWorkers(), "zero workers falls back to one")
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Equal(t, filepath.Join("/tmp/pulse", "accountpulse-test.db"), cfg.DatabaseDSN())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:                Production,
			DatabaseType:               SQLiteDatabase,
			VisitWindowHours:           24,
			AggregationIntervalSeconds: 3600,
			ScoringIntervalSeconds:     3600,
			TouchScanIntervalSeconds:   60,
		}
	}
	require.NoError(t, valid().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "invalid environment: staging"},
		{"unknown database", func(c *Config) { c.DatabaseType = "postgres" }, "invalid database type: postgres"},
		{"zero visit window", func(c *Config) { c.VisitWindowHours = 0 }, "visit window must be positive, got 0 hours"},
		{"zero touch scan interval", func(c *Config) { c.TouchScanIntervalSeconds = 0 }, "job intervals must be positive"},
		{"negative workers", func(c *Config) { c.AggregationWorkers = -2 }, "aggregation workers cannot be negative, got -2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.EqualError(t, cfg.validate(), tt.errMsg)
		})
	}
}

func TestConnectionLimits(t *testing.T) {
	cfg := &Config{Environment: Production}
	assert.Equal(t, 10, cfg.GetMaxOpenConns())
	assert.Equal(t, 5, cfg.GetMaxIdleConns())

	cfg.DatabaseMaxOpenConns = 3
	cfg.DatabaseMaxIdleConns = 2
	assert.Equal(t, 3, cfg.GetMaxOpenConns())
	assert.Equal(t, 2, cfg.GetMaxIdleConns())
}
