// Package config loads and validates the server's static configuration:
// listener, TLS, exports (plugin + filter chains), metrics, logging, and
// telemetry. Configuration is viper-backed exactly as the teacher's own
// config layer: a YAML file, NBDGO_* environment variables, and defaults,
// composed in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/nbdgo/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete static configuration of an nbdgo server.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NBDGO_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Listen describes the address(es) the server accepts connections on.
	Listen ListenConfig `mapstructure:"listen" yaml:"listen"`

	// TLS configures the optional NBD_OPT_STARTTLS upgrade (spec §4.2).
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`

	// Exports maps export name to its plugin/filter-chain configuration.
	// At least one export must be configured.
	Exports map[string]ExportConfig `mapstructure:"exports" validate:"required,min=1,dive" yaml:"exports"`

	// DefaultExport, if set, is the export name used when a client
	// negotiates with an empty export name (spec §4.6's use_default).
	DefaultExport string `mapstructure:"default_export" yaml:"default_export,omitempty"`

	// Debug carries -D-style plugin.flag=value overrides, keyed by
	// plugin type, consulted once per export at construction time
	// (original_source/server/debug-flags.c). The only flag currently
	// consulted is "trace", which forces the log filter in front of a
	// plugin that wouldn't otherwise have one.
	Debug map[string]map[string]string `mapstructure:"debug" yaml:"debug,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When
// enabled, one span per NBD command is exported to an OTLP-compatible
// collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection
	// to the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint. When
// Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Port is the HTTP port the /metrics endpoint is served on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ListenConfig describes the address this server accepts connections on
// (spec §4.1: TCP, Unix socket, or inherited socket-activation fd).
type ListenConfig struct {
	// Network is "tcp" or "unix". Ignored when SocketActivation is true.
	Network string `mapstructure:"network" validate:"omitempty,oneof=tcp unix" yaml:"network"`

	// Address is a host:port for tcp, or a filesystem path for unix.
	Address string `mapstructure:"address" yaml:"address"`

	// SocketActivation adopts file descriptor 3 (LISTEN_FDS_START),
	// ignoring Network/Address, mirroring nbdkit's systemd integration.
	SocketActivation bool `mapstructure:"socket_activation" yaml:"socket_activation"`

	// HandshakeMode selects "oldstyle" or "newstyle" (default) framing.
	HandshakeMode string `mapstructure:"handshake_mode" validate:"omitempty,oneof=oldstyle newstyle" yaml:"handshake_mode"`

	// Workers is the size of the per-connection worker pool used to run
	// the read/execute/write pipeline (spec §5).
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`
}

// TLSConfig configures the optional NBD_OPT_STARTTLS upgrade.
type TLSConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Required forces every non-TLS option other than STARTTLS/ABORT to
	// fail until the client upgrades.
	Required bool `mapstructure:"required" yaml:"required"`

	CertFile string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file,omitempty"`
	// ClientCAFile, if set, enables and requires client certificate
	// verification against this CA bundle.
	ClientCAFile string `mapstructure:"client_ca_file" yaml:"client_ca_file,omitempty"`
}

// ExportConfig configures one named export: its terminal plugin and an
// ordered chain of filters wrapping it (outermost first).
type ExportConfig struct {
	Description string `mapstructure:"description" yaml:"description,omitempty"`
	ReadOnly    bool   `mapstructure:"read_only" yaml:"read_only"`

	Plugin  PluginConfig   `mapstructure:"plugin" validate:"required" yaml:"plugin"`
	Filters []FilterConfig `mapstructure:"filters" yaml:"filters,omitempty"`
}

// PluginConfig selects and configures one terminal backend plugin.
// Type-specific settings live in the matching typed sub-struct; unused
// ones are left zero. This mirrors the teacher's pkg/config/stores.go
// per-type sub-config + mapstructure.Decode pattern.
type PluginConfig struct {
	// Type selects the plugin: "memory", "file", "s3", or "badger".
	Type string `mapstructure:"type" validate:"required,oneof=memory file s3 badger" yaml:"type"`

	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`
	File   map[string]any `mapstructure:"file" yaml:"file,omitempty"`
	S3     map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// FilterConfig selects and configures one request-path filter.
type FilterConfig struct {
	// Type selects the filter: "readonly", "log", "truncate", or "cache".
	Type string `mapstructure:"type" validate:"required,oneof=readonly log truncate cache" yaml:"type"`

	Truncate map[string]any `mapstructure:"truncate" yaml:"truncate,omitempty"`
	Cache    map[string]any `mapstructure:"cache" yaml:"cache,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error with
// setup instructions if no config file can be found.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  nbdgo init\n\n"+
				"Or specify a custom config file:\n"+
				"  nbdgo <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  nbdgo init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. The file is written 0600 since config may carry TLS key paths.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the NBDGO_ prefix.
	// Example: NBDGO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NBDGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom decode hooks for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use human-readable sizes like "1Gi", "500Mi", or
// plain byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files
// can use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring
// XDG_CONFIG_HOME and falling back to ~/.config, then ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nbdgo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nbdgo")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
