package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Logging.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:7478", cfg.Gateway.Listen)
	assert.NotEmpty(t, cfg.Record.Dir)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := `
name: nros.clock
bus:
  remote_host: robot.local
  remote_port: 55556
logging:
  enabled: true
  level: debug
  categories:
    topic: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nros.clock", cfg.Name)
	assert.Equal(t, "robot.local", cfg.Bus.RemoteHost)
	assert.Equal(t, 55556, cfg.Bus.RemotePort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Categories["topic"])
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	content := `{"name": "nros.sonar", "bus": {"address": "unix:path=/tmp/nros.sock"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nros.sonar", cfg.Name)
	assert.Equal(t, "unix:path=/tmp/nros.sock", cfg.Bus.Address)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NROS_NODE_NAME", "nros.from-env")
	t.Setenv("NROS_LOG_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nros.from-env", cfg.Name)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidateRejectsConflictingBus(t *testing.T) {
	cfg := Default()
	cfg.Bus.Address = "unix:path=/tmp/x"
	cfg.Bus.RemoteHost = "robot.local"
	cfg.Bus.RemotePort = 5555
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Bus.RemoteHost = "robot.local"
	cfg.Bus.RemotePort = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Name = "nros.saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nros.saved", loaded.Name)
}
