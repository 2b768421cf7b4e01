package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withXDGConfigHome(t *testing.T, dir string) {
	t.Helper()
	old, had := os.LookupEnv("XDG_CONFIG_HOME")
	require.NoError(t, os.Setenv("XDG_CONFIG_HOME", dir))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv("XDG_CONFIG_HOME", old)
		} else {
			_ = os.Unsetenv("XDG_CONFIG_HOME")
		}
	})
}

func TestInitConfig_Success(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)

	contentStr := string(content)
	for _, section := range []string{"# nbdgo configuration file", "logging:", "listen:", "exports:"} {
		require.Contains(t, contentStr, section)
	}

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Contains(t, cfg.Exports, "default")
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	require.ErrorContains(t, err, "already exists")
}

func TestInitConfig_Force(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(true)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.NotZero(t, info.Size())
}

func TestInitConfigToPath_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	_, err = Load(configPath)
	require.NoError(t, err)
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))
	err := InitConfigToPath(configPath, false)
	require.ErrorContains(t, err, "already exists")
}

func TestInitConfigToPath_Force(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))
	require.NoError(t, InitConfigToPath(configPath, true))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.NotZero(t, info.Size())
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(configPath, false))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, ":10809", cfg.Listen.Address)
	require.Equal(t, "default", cfg.DefaultExport)
	require.Equal(t, "memory", cfg.Exports["default"].Plugin.Type)
}

func TestGeneratedConfigPassesValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(configPath, false))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
}
