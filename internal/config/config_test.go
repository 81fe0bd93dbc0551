package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.Equal(t, ":8080", Default().HTTP.Addr())
	assert.Equal(t, 14, Default().Planner.MaxBatchSize)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pickbatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
planner:
  max_batch_size: 10
  default_strategy: exact
  warm_start: greedy
solver:
  time_limit: 2m
  relative_gap: 0.01
webhooks:
  max_attempts: 3
`), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("SOLVER_TIME_LIMIT", "45s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RATE_BURST", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Planner.MaxBatchSize)
	assert.Equal(t, "exact", cfg.Planner.DefaultStrategy)
	assert.Equal(t, "greedy", cfg.Planner.WarmStart)
	assert.Equal(t, 45*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 0.01, cfg.Solver.RelativeGap)
	assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, Default().RateLimit.Burst, cfg.RateLimit.Burst)
	assert.True(t, cfg.Planner.SymmetryBreaking)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MAX_BATCH_SIZE", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_BATCH_SIZE")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"batch size": func(c *Config) { c.Planner.MaxBatchSize = 0 },
		"strategy":   func(c *Config) { c.Planner.DefaultStrategy = "annealing" },
		"warm start": func(c *Config) { c.Planner.WarmStart = "exact" },
		"backend":    func(c *Config) { c.Solver.Backend = "cplex" },
		"gap":        func(c *Config) { c.Solver.RelativeGap = 1.5 },
		"attempts":   func(c *Config) { c.Webhooks.MaxAttempts = 0 },
		"hmac":       func(c *Config) { c.Auth.Mode = "hmac" },
		"auth mode":  func(c *Config) { c.Auth.Mode = "basic" },
		"port":       func(c *Config) { c.HTTP.Port = 70000 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
