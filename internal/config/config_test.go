package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")

	configContent := `
log:
  level: "debug"
  appenders:
    - type: "console"
    - type: "file"
      file:
        filename: "/tmp/schc.log"
        max_size: 10
metrics:
  enabled: true
  listen: "0.0.0.0:9101"
contexts:
  - "/etc/schc/ctx-coap.yaml"
  - "/etc/schc/ctx-sctp.yaml"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Log.Appenders, 2)
	assert.Equal(t, "file", cfg.Log.Appenders[1].Type)
	assert.Equal(t, "/tmp/schc.log", cfg.Log.Appenders[1].File.Filename)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9101", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path) // default

	assert.Equal(t, []string{"/etc/schc/ctx-coap.yaml", "/etc/schc/ctx-sctp.yaml"}, cfg.Contexts)
}

func TestLoadDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("contexts: []\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Log.Appenders, 1)
	assert.Equal(t, "console", cfg.Log.Appenders[0].Type)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
