package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_NoPathUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "automation.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Equal(t, 30, cfg.Actions.SendTimeoutSeconds)
}

func TestLoadConfig_OverridesAndFills(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
database:
  path: /var/lib/automation/data.db
scheduler:
  batch_size: 10
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "/var/lib/automation/data.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	// Omitted fields fall back to defaults.
	assert.Equal(t, 1, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, 30, cfg.Actions.SendTimeoutSeconds)
}

func TestLoadConfig_EmptyDatabasePathRejected(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
`)
	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen: [broken")
	_, err := loadConfig(path)
	assert.Error(t, err)
}
