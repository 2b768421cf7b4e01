package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseValidConfig() *Config {
	return &Config{
		Logging:         LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		ShutdownTimeout: 30 * time.Second,
		Listen:          ListenConfig{Network: "tcp", Address: ":10809"},
		Exports: map[string]ExportConfig{
			"default": {
				Plugin: PluginConfig{Type: "memory", Memory: map[string]any{"size": 1073741824}},
			},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	require.NoError(t, Validate(baseValidConfig()))
}

func TestValidate_RequiresAtLeastOneExport(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Exports = nil
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Logging.Level = "VERBOSE"
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsZeroShutdownTimeout(t *testing.T) {
	cfg := baseValidConfig()
	cfg.ShutdownTimeout = 0
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownDefaultExport(t *testing.T) {
	cfg := baseValidConfig()
	cfg.DefaultExport = "nonexistent"
	require.Error(t, Validate(cfg))
}

func TestValidate_RequiresTLSCertAndKeyWhenEnabled(t *testing.T) {
	cfg := baseValidConfig()
	cfg.TLS.Enabled = true
	require.Error(t, Validate(cfg))

	cfg.TLS.CertFile = "/etc/nbdgo/cert.pem"
	cfg.TLS.KeyFile = "/etc/nbdgo/key.pem"
	require.NoError(t, Validate(cfg))
}

func TestValidate_FilePluginRequiresPath(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "file"}}
	require.Error(t, Validate(cfg))

	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "file", File: map[string]any{"path": "/dev/loop0"}}}
	require.NoError(t, Validate(cfg))
}

func TestValidate_S3PluginRequiresBucket(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "s3"}}
	require.Error(t, Validate(cfg))
}

func TestValidate_BadgerPluginRequiresDirUnlessInMemory(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "badger"}}
	require.Error(t, Validate(cfg))

	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "badger", Badger: map[string]any{"in_memory": true}}}
	require.NoError(t, Validate(cfg))
}

func TestValidate_UnknownPluginType(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Exports["default"] = ExportConfig{Plugin: PluginConfig{Type: "nonsense"}}
	require.Error(t, Validate(cfg))
}

func TestValidate_TruncateFilterRequiresSize(t *testing.T) {
	cfg := baseValidConfig()
	export := cfg.Exports["default"]
	export.Filters = []FilterConfig{{Type: "truncate"}}
	cfg.Exports["default"] = export
	require.Error(t, Validate(cfg))
}

func TestValidate_CacheFilterRequiresCapacity(t *testing.T) {
	cfg := baseValidConfig()
	export := cfg.Exports["default"]
	export.Filters = []FilterConfig{{Type: "cache"}}
	cfg.Exports["default"] = export
	require.Error(t, Validate(cfg))

	export.Filters = []FilterConfig{{Type: "cache", Cache: map[string]any{"capacity_bytes": 1048576}}}
	cfg.Exports["default"] = export
	require.NoError(t, Validate(cfg))
}

func TestValidate_UnknownFilterType(t *testing.T) {
	cfg := baseValidConfig()
	export := cfg.Exports["default"]
	export.Filters = []FilterConfig{{Type: "nonsense"}}
	cfg.Exports["default"] = export
	require.Error(t, Validate(cfg))
}
