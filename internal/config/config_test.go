package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a YAML config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, `
data_root: /srv/mkanban
db_path: /srv/mkanban/index.db
watcher:
  polling_interval: 2s
  debounce_delay: 500ms
  enabled: true
  notify: true
actions:
  evaluation_interval: 30s
  orphan_check_interval: 1h
dashboard:
  enabled: true
  port: 9100
log:
  file: /var/log/mkanband.log
  max_size_mb: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mkanban", cfg.DataRoot)
	assert.Equal(t, "/srv/mkanban/index.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Watcher.PollingInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.DebounceDelay)
	assert.True(t, cfg.Watcher.Enabled)
	assert.True(t, cfg.Watcher.Notify)
	assert.Equal(t, 30*time.Second, cfg.Actions.EvaluationInterval)
	assert.Equal(t, time.Hour, cfg.Actions.OrphanCheckInterval)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, 9100, cfg.Dashboard.Port)
	assert.Equal(t, "/var/log/mkanband.log", cfg.Log.File)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "data_root: /srv/mkanban\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Watcher.PollingInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.Watcher.DebounceDelay)
	assert.True(t, cfg.Watcher.Enabled)
	assert.False(t, cfg.Watcher.Notify)
	assert.Equal(t, time.Minute, cfg.Actions.EvaluationInterval)
	assert.Equal(t, 30*time.Minute, cfg.Actions.OrphanCheckInterval)
	assert.False(t, cfg.Dashboard.Enabled)
}

func TestLoadDerivesDBPath(t *testing.T) {
	path := writeConfig(t, "data_root: /srv/mkanban\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/mkanban", ".mkanban", "mkanban.db"), cfg.DBPath)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "data_root: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
data_root: /srv/mkanban
watcher:
  polling_interval: 0s
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDebounceBeyondPollingCap(t *testing.T) {
	path := writeConfig(t, `
data_root: /srv/mkanban
watcher:
  polling_interval: 1s
  debounce_delay: 20s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce_delay")
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "data_root: /srv/mkanban\n")

	t.Setenv("MKANBAN_DASHBOARD_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Dashboard.Port)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, "data_root: ~/mkanban\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mkanban"), cfg.DataRoot)
}
