package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg's struct tags (go-playground/validator) and a
// handful of cross-field invariants the tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DefaultExport != "" {
		if _, ok := cfg.Exports[cfg.DefaultExport]; !ok {
			return fmt.Errorf("default_export %q is not a configured export", cfg.DefaultExport)
		}
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.enabled requires tls.cert_file and tls.key_file")
		}
	}

	for name, export := range cfg.Exports {
		if err := validatePluginConfig(export.Plugin); err != nil {
			return fmt.Errorf("export %q: %w", name, err)
		}
		for i, f := range export.Filters {
			if err := validateFilterConfig(f); err != nil {
				return fmt.Errorf("export %q filter #%d: %w", name, i, err)
			}
		}
	}

	return nil
}

func validatePluginConfig(cfg PluginConfig) error {
	switch cfg.Type {
	case "memory":
		// No required sub-fields; size defaults are applied upstream.
	case "file":
		if cfg.File == nil || cfg.File["path"] == nil || cfg.File["path"] == "" {
			return fmt.Errorf("file plugin requires plugin.file.path")
		}
	case "s3":
		if cfg.S3 == nil || cfg.S3["bucket"] == nil || cfg.S3["bucket"] == "" {
			return fmt.Errorf("s3 plugin requires plugin.s3.bucket")
		}
	case "badger":
		if cfg.Badger == nil || cfg.Badger["dir"] == nil || cfg.Badger["dir"] == "" {
			if cfg.Badger == nil || cfg.Badger["in_memory"] != true {
				return fmt.Errorf("badger plugin requires plugin.badger.dir unless in_memory is true")
			}
		}
	default:
		return fmt.Errorf("unknown plugin type %q", cfg.Type)
	}
	return nil
}

func validateFilterConfig(cfg FilterConfig) error {
	switch cfg.Type {
	case "readonly", "log":
		// No configuration.
	case "truncate":
		if cfg.Truncate == nil || cfg.Truncate["size"] == nil {
			return fmt.Errorf("truncate filter requires filters[].truncate.size")
		}
	case "cache":
		if cfg.Cache == nil || cfg.Cache["capacity_bytes"] == nil {
			return fmt.Errorf("cache filter requires filters[].cache.capacity_bytes")
		}
	default:
		return fmt.Errorf("unknown filter type %q", cfg.Type)
	}
	return nil
}
