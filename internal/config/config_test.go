package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, 5000, cfg.Sandbox.DeadlineMs)
	assert.Equal(t, 100, cfg.Sandbox.CacheCapacity)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = "9999"

[sandbox]
deadline_ms = 250
pool_size = 2
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 250, cfg.Sandbox.DeadlineMs)
	assert.Equal(t, 2, cfg.Sandbox.PoolSize)

	// Values absent from the file keep their defaults.
	assert.Equal(t, 100, cfg.Sandbox.CacheCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport="), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("SANDBOX_DEADLINE_MS", "1234")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 1234, cfg.Sandbox.DeadlineMs)
	assert.False(t, cfg.RateLimit.Enabled)
}
