package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, 3, config.Jobs.Workers)
	assert.Equal(t, 100, config.Jobs.RetainJobs)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadFromFilesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indago.toml")
	content := `
[server]
port = 9090

[jobs]
workers = 2
retain_jobs = 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 2, config.Jobs.Workers)
	assert.Equal(t, 50, config.Jobs.RetainJobs)
	// Untouched values keep their defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 64, config.Jobs.QueueSize)
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	require.NoError(t, os.WriteFile(first, []byte("[server]\nport = 7001\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("[server]\nport = 7002\n"), 0644))

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 7002, config.Server.Port)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/indago.toml")
	assert.Error(t, err)
}

func TestLoadFromFilesRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indago.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nworkers = 0\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INDAGO_PORT", "9999")
	t.Setenv("INDAGO_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()

	ApplyFlagOverrides(config, 8200, "0.0.0.0")
	assert.Equal(t, 8200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
