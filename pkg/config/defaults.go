package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Called after loading from file and environment, before
// validation.
//
// Default strategy: zero values (0, "", false, nil) are replaced with
// defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyListenDefaults(&cfg.Listen)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	for name, export := range cfg.Exports {
		applyExportDefaults(&export)
		cfg.Exports[name] = export
	}

	// No default for Exports itself: at least one must be configured by
	// the user (enforced by validation).
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space",
			"inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyListenDefaults(cfg *ListenConfig) {
	if cfg.Network == "" && !cfg.SocketActivation {
		cfg.Network = "tcp"
	}
	if cfg.Address == "" && cfg.Network == "tcp" && !cfg.SocketActivation {
		cfg.Address = ":10809" // IANA-assigned NBD port
	}
	if cfg.HandshakeMode == "" {
		cfg.HandshakeMode = "newstyle"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
}

func applyExportDefaults(cfg *ExportConfig) {
	switch cfg.Plugin.Type {
	case "memory", "s3":
		if cfg.Plugin.Type == "s3" && cfg.Plugin.S3 != nil {
			if _, ok := cfg.Plugin.S3["block_size"]; !ok {
				cfg.Plugin.S3["block_size"] = 4 * 1024 * 1024
			}
		}
	case "badger":
		if cfg.Plugin.Badger != nil {
			if _, ok := cfg.Plugin.Badger["block_size"]; !ok {
				cfg.Plugin.Badger["block_size"] = 256 * 1024
			}
		}
	}

	for _, f := range cfg.Filters {
		if f.Type == "cache" && f.Cache != nil {
			if _, ok := f.Cache["block_size"]; !ok {
				f.Cache["block_size"] = 256 * 1024
			}
		}
	}
}

// GetDefaultConfig returns a Config with all default values applied, a
// single in-memory export, and no TLS/metrics/telemetry enabled. Useful
// for `nbdgo init`, tests, and documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Listen: ListenConfig{
			Network: "tcp",
			Address: ":10809",
		},
		Exports: map[string]ExportConfig{
			"default": {
				Description: "in-memory export",
				Plugin: PluginConfig{
					Type:   "memory",
					Memory: map[string]any{"size": 1073741824}, // 1GiB
				},
			},
		},
		DefaultExport: "default",
	}

	ApplyDefaults(cfg)
	return cfg
}
