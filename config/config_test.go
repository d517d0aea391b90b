package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.RulesTTL)
	assert.Equal(t, 400, cfg.Report.AliasBatchSize)
	assert.Equal(t, 8, cfg.Report.FallbackPrefixLen)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
cache:
  backend: redis
  rules_ttl: 90s
report:
  alias_batch_size: 100
  fetch_timeout: 2s
`), 0o600))

	// WHEN
	cfg, err := config.Load(path)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.RulesTTL)
	assert.Equal(t, 100, cfg.Report.AliasBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Report.FetchTimeout)
	assert.Equal(t, 4, cfg.Report.AliasConcurrency, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("INCENTIVE_SERVER_PORT", "7070")
	t.Setenv("INCENTIVE_DATABASE_PATH", "/tmp/x.db")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("INCENTIVE_CACHE_BACKEND", "memcached")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "cache.backend")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
