package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes a sample configuration file to the default location
// (GetDefaultConfigPath), refusing to overwrite an existing file unless
// force is set. It returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed and refusing to overwrite an existing
// file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// sampleConfig is the annotated starting point written by InitConfig. It
// is kept in sync with the Config struct's mapstructure tags so that
// Load() can parse it back without surprises.
const sampleConfig = `# nbdgo configuration file
#
# Uncomment and edit any section below to customize your setup; anything
# left out falls back to its default value.

logging:
  level: INFO
  format: text
  output: stdout

telemetry:
  enabled: false
  # endpoint: localhost:4317
  # insecure: true
  # sample_rate: 1.0

metrics:
  enabled: false
  port: 9090

shutdown_timeout: 30s

listen:
  network: tcp
  address: ":10809"
  handshake_mode: newstyle
  workers: 4

tls:
  enabled: false
  # cert_file: /etc/nbdgo/cert.pem
  # key_file: /etc/nbdgo/key.pem

default_export: default

exports:
  default:
    description: "1GiB in-memory export"
    read_only: false
    plugin:
      type: memory
      memory:
        size: 1073741824
        block_size: 4096
`
