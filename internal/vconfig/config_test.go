package vconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.StrictSecurity)
	assert.Equal(t, SandboxModeNone, cfg.SandboxMode)
	assert.Greater(t, cfg.Workers, 0)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().CacheDir, cfg.CacheDir)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strict_security: false\nworkers: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.StrictSecurity)
	assert.Equal(t, 3, cfg.Workers)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STRICT_SECURITY", "false")
	t.Setenv("SANDBOX_TIMEOUT_MS", "9000")
	t.Setenv("VAULTLANG_SANDBOX_MODE", "docker")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.StrictSecurity)
	assert.EqualValues(t, 9000, cfg.SandboxTimeoutMs)
	assert.Equal(t, SandboxModeDocker, cfg.SandboxMode)
}
