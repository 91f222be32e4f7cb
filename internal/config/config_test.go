package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EDITH_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 24*time.Hour, cfg.Approval.Window)
	assert.Equal(t, 0.7, cfg.Orchestrator.ConfidenceThreshold)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edith.yaml")
	yamlDoc := `
http_port: 9090
database:
  driver: pgx
  dsn: postgres://localhost/edith
agent:
  max_iterations: 5
rate_limit:
  limit: 3
  window: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("EDITH_AGENT_MAX_ITERATIONS", "7")
	t.Setenv("EDITH_LLM_PROVIDER", "gemini")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	// untouched keys keep defaults
	assert.Equal(t, 24*time.Hour, cfg.Approval.Window)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Orchestrator.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
