package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

metrics:
  enabled: true
  port: 9191

listen:
  network: tcp
  address: ":10900"

exports:
  default:
    plugin:
      type: memory
      memory:
        size: 1073741824
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "stdout", cfg.Logging.Output)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 9191, cfg.Metrics.Port)
	require.Equal(t, ":10900", cfg.Listen.Address)
	require.Contains(t, cfg.Exports, "default")
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Contains(t, cfg.Exports, "default")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "stdout", cfg.Logging.Output)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "default", cfg.DefaultExport)
	require.Contains(t, cfg.Exports, "default")
	require.Equal(t, "memory", cfg.Exports["default"].Plugin.Type)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	require.True(t, filepath.IsAbs(path))
	require.Equal(t, "config.yaml", filepath.Base(path))
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()
	require.Equal(t, "nbdgo", filepath.Base(dir))
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("NBDGO_LOGGING_LEVEL", "ERROR")
	t.Setenv("NBDGO_METRICS_PORT", "9292")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

metrics:
  enabled: true
  port: 9090

exports:
  default:
    plugin:
      type: memory
      memory:
        size: 1073741824
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Equal(t, "ERROR", cfg.Logging.Level)
	require.Equal(t, 9292, cfg.Metrics.Port)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := GetDefaultConfig()
	require.NoError(t, SaveConfig(cfg, configPath))

	loaded, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
	require.Contains(t, loaded.Exports, "default")
}
