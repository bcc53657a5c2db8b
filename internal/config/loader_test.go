package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.Parallelism)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.StatePath)
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stratus.json")
	content := `{
		"data_dir": "` + dir + `",
		"engine": {"parallelism": 3},
		"plugins": {"load_concurrency": 2, "audit": false},
		"backup": {"schedule": "0 3 * * *"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Parallelism)
	assert.Equal(t, 2, cfg.Plugins.LoadConcurrency)
	assert.False(t, cfg.Plugins.Audit)
	assert.Equal(t, "0 3 * * *", cfg.Backup.Schedule)
	assert.Equal(t, filepath.Join(dir, "plugins"), cfg.Plugins.WorkspaceDir)
}

func TestLoaderInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratus.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratus.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Engine.Parallelism = 7
	cfg.ApplyDataDir()
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Engine.Parallelism)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/etc/stratus/stratus.json")
	assert.Equal(t, "/etc/stratus/stratus.json", loader.GetConfigPath())

	loader = NewLoader("")
	assert.Contains(t, loader.GetConfigPath(), ".stratus")
}
