package safeattr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultHasBaseline(t *testing.T) {
	r := LoadDefault()
	assert.True(t, r.IsSafe("length", ""))
	assert.True(t, r.IsSafe("keys", "object"))
	assert.False(t, r.IsSafe("keys", "array"))
	assert.False(t, r.IsSafe("__proto__", ""))
}

func TestLoadMergesManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safe_attrs.yaml")
	content := `
attributes:
  - name: custom_field
    types: ["widget"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.True(t, r.IsSafe("custom_field", "widget"))
	assert.False(t, r.IsSafe("custom_field", "gadget"))
	assert.True(t, r.IsSafe("length", ""))
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, r.IsSafe("length", ""))
}

func TestCapabilitiesRequiredFromManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safe_attrs.yaml")
	content := `
attributes:
  - name: raw_bytes
    types: ["buffer"]
    capabilities_required: ["fs.read"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.True(t, r.IsSafe("raw_bytes", "buffer"))
	assert.Equal(t, []string{"fs.read"}, r.CapabilitiesRequired("raw_bytes", "buffer"))
	assert.Nil(t, r.CapabilitiesRequired("length", ""))
}

func TestEntriesSnapshotsRegistrationOrder(t *testing.T) {
	r := LoadDefault()
	entries := r.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "length", entries[0].Name)
}
