package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{Exports: map[string]ExportConfig{"default": {Plugin: PluginConfig{Type: "memory"}}}}
	ApplyDefaults(cfg)

	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_LoggingLevelNormalizedToUpper(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Exports: map[string]ExportConfig{"default": {Plugin: PluginConfig{Type: "memory"}}},
	}
	ApplyDefaults(cfg)

	require.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestApplyDefaults_Listen(t *testing.T) {
	cfg := &Config{Exports: map[string]ExportConfig{"default": {Plugin: PluginConfig{Type: "memory"}}}}
	ApplyDefaults(cfg)

	require.Equal(t, "tcp", cfg.Listen.Network)
	require.Equal(t, ":10809", cfg.Listen.Address)
	require.Equal(t, "newstyle", cfg.Listen.HandshakeMode)
	require.Equal(t, 4, cfg.Listen.Workers)
}

func TestApplyDefaults_SocketActivationSkipsTCPAddress(t *testing.T) {
	cfg := &Config{
		Listen:  ListenConfig{SocketActivation: true},
		Exports: map[string]ExportConfig{"default": {Plugin: PluginConfig{Type: "memory"}}},
	}
	ApplyDefaults(cfg)

	require.Empty(t, cfg.Listen.Network)
	require.Empty(t, cfg.Listen.Address)
}

func TestApplyDefaults_S3BlockSize(t *testing.T) {
	cfg := &Config{
		Exports: map[string]ExportConfig{
			"default": {
				Plugin: PluginConfig{
					Type: "s3",
					S3:   map[string]any{"bucket": "my-bucket"},
				},
			},
		},
	}
	ApplyDefaults(cfg)

	require.Equal(t, 4*1024*1024, cfg.Exports["default"].Plugin.S3["block_size"])
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
}
