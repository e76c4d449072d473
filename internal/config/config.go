// Package config provides configuration file support for scbuilder.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// MaxParallelism caps concurrent registry queries and local builds.
	MaxParallelism = 32
	// MaxTimeoutSeconds caps the registry request timeout (5 minutes).
	MaxTimeoutSeconds = 300
)

// Config represents the scbuilder configuration file.
type Config struct {
	// Registry contains container registry settings.
	Registry RegistryConfig `toml:"registry"`

	// Catalog contains tool catalog settings.
	Catalog CatalogConfig `toml:"catalog"`

	// Build contains local build execution settings.
	Build BuildConfig `toml:"build"`

	// Logging contains build-event forwarding settings.
	Logging LoggingConfig `toml:"logging"`
}

// RegistryConfig contains container registry settings.
type RegistryConfig struct {
	// Prefix is the image repository prefix; the tool name is appended
	// with an underscore (prefix "ghcr.io/org/sc_tool" + tool "yosys"
	// gives "ghcr.io/org/sc_tool_yosys").
	Prefix string `toml:"prefix"`

	// TimeoutSeconds bounds a single registry request. Default: 15.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// Parallelism bounds concurrent tag-existence checks. Default: 8.
	Parallelism int `toml:"parallelism"`

	// PlainHTTP switches to http:// for registries without TLS
	// (local registries).
	PlainHTTP bool `toml:"plain_http"`
}

// CatalogConfig contains tool catalog settings.
type CatalogConfig struct {
	// Path is the tool catalog file. Defaults to tools.toml in the
	// working directory.
	Path string `toml:"path"`
}

// BuildConfig contains local build execution settings.
type BuildConfig struct {
	// Parallelism bounds concurrent docker builds within a wave.
	// Default: 2.
	Parallelism int `toml:"parallelism"`

	// Push uploads images after a successful build.
	Push bool `toml:"push"`
}

// LoggingConfig contains build-event forwarding configuration.
type LoggingConfig struct {
	// Receivers is a list of remote event destinations.
	Receivers []ReceiverConfig `toml:"receivers"`

	// Attributes are custom key-value pairs added to all events.
	Attributes map[string]string `toml:"attributes"`
}

// ReceiverConfig defines a single event receiver.
type ReceiverConfig struct {
	// Type is the receiver type: "syslog", "syslog-remote", or "otlp".
	Type string `toml:"type"`

	// Address is the remote server address (for syslog-remote and otlp).
	Address string `toml:"address"`

	// Endpoint is the OTLP endpoint URL (alias for Address, for otlp type).
	Endpoint string `toml:"endpoint"`

	// Protocol is the transport protocol:
	// - For syslog-remote: "udp" or "tcp" (default: udp)
	// - For otlp: "http" or "grpc" (default: http)
	Protocol string `toml:"protocol"`

	// Facility is the syslog facility (e.g., "local0").
	Facility string `toml:"facility"`

	// Tag is the syslog program tag.
	Tag string `toml:"tag"`

	// Headers are custom HTTP headers for OTLP.
	Headers map[string]string `toml:"headers"`

	// BatchSize is the OTLP batch size before flush.
	BatchSize int `toml:"batch_size"`

	// FlushInterval is the OTLP flush interval (e.g., "5s").
	FlushInterval string `toml:"flush_interval"`

	// Insecure disables TLS verification for gRPC connections.
	Insecure bool `toml:"insecure"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Prefix:         "ghcr.io/siliconcompiler/sc_tool",
			TimeoutSeconds: 15,
			Parallelism:    8,
		},
		Catalog: CatalogConfig{
			Path: "tools.toml",
		},
		Build: BuildConfig{
			Parallelism: 2,
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME/scbuilder/config.toml or ~/.config/scbuilder/config.toml
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "scbuilder", "config.toml")
}

// Load reads the configuration from the default path.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the configuration from the specified path.
// Returns default config if file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Catalog.Path != "" {
		cfg.Catalog.Path = expandHome(cfg.Catalog.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Registry.Prefix == "" {
		return fmt.Errorf("registry.prefix cannot be empty")
	}
	if !strings.Contains(c.Registry.Prefix, "/") {
		return fmt.Errorf("registry.prefix must include the registry host, got %q", c.Registry.Prefix)
	}

	if c.Registry.TimeoutSeconds < 0 {
		return fmt.Errorf("registry.timeout_seconds cannot be negative, got %d", c.Registry.TimeoutSeconds)
	}
	if c.Registry.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("registry.timeout_seconds cannot exceed %d, got %d", MaxTimeoutSeconds, c.Registry.TimeoutSeconds)
	}

	if c.Registry.Parallelism < 0 || c.Registry.Parallelism > MaxParallelism {
		return fmt.Errorf("registry.parallelism must be between 0 and %d, got %d", MaxParallelism, c.Registry.Parallelism)
	}
	if c.Build.Parallelism < 0 || c.Build.Parallelism > MaxParallelism {
		return fmt.Errorf("build.parallelism must be between 0 and %d, got %d", MaxParallelism, c.Build.Parallelism)
	}

	validTypes := map[string]bool{"syslog": true, "syslog-remote": true, "otlp": true}
	for i, r := range c.Logging.Receivers {
		if !validTypes[r.Type] {
			return fmt.Errorf("logging.receivers[%d].type must be 'syslog', 'syslog-remote', or 'otlp', got %q", i, r.Type)
		}
		if r.Type == "otlp" {
			endpoint := r.Endpoint
			if endpoint == "" {
				endpoint = r.Address
			}
			if endpoint == "" {
				return fmt.Errorf("logging.receivers[%d]: otlp receiver needs an endpoint", i)
			}
			if r.Protocol == "" || r.Protocol == "http" {
				if _, err := url.ParseRequestURI(endpoint); err != nil {
					return fmt.Errorf("logging.receivers[%d]: invalid otlp endpoint %q: %w", i, endpoint, err)
				}
			}
		}
		if r.Type == "syslog-remote" && r.Address == "" {
			return fmt.Errorf("logging.receivers[%d]: syslog-remote receiver needs an address", i)
		}
	}

	return nil
}

// expandHome expands ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return home
	}

	if path[1] == '/' {
		return filepath.Join(home, path[2:])
	}

	return path
}

// GenerateDefault returns the default configuration as a TOML string
// with comments explaining each option.
func GenerateDefault() string {
	return `# scbuilder configuration file
# Location: ~/.config/scbuilder/config.toml

# Container registry settings
[registry]
# Image repository prefix. The tool name is appended with an underscore:
# "ghcr.io/siliconcompiler/sc_tool" + "yosys"
#   -> ghcr.io/siliconcompiler/sc_tool_yosys
prefix = "ghcr.io/siliconcompiler/sc_tool"

# Per-request timeout for tag-existence queries, in seconds
timeout_seconds = 15

# Concurrent tag-existence queries
parallelism = 8

# Use plain http:// (local registries only)
# plain_http = false

# Tool catalog settings
[catalog]
# Catalog file, relative to the working directory unless absolute
path = "tools.toml"

# Local build execution (scbuilder run)
[build]
# Concurrent docker builds within one dependency wave
parallelism = 2

# Push images after a successful build
push = false

# Build-event forwarding
# Plan and build events can be forwarded to remote destinations
[logging]

# Custom attributes added to all events
# [logging.attributes]
# environment = "ci"
# pipeline = "tools"

# Example: Local syslog
# [[logging.receivers]]
# type = "syslog"
# facility = "local0"
# tag = "scbuilder"

# Example: Remote syslog server
# [[logging.receivers]]
# type = "syslog-remote"
# address = "logs.example.com:514"
# protocol = "udp"  # or "tcp"
# facility = "local0"
# tag = "scbuilder"

# Example: OpenTelemetry collector (HTTP)
# [[logging.receivers]]
# type = "otlp"
# endpoint = "http://localhost:4318/v1/logs"
# protocol = "http"  # default
# headers = { "Authorization" = "Bearer token" }
# batch_size = 100
# flush_interval = "5s"

# Example: OpenTelemetry collector (gRPC)
# [[logging.receivers]]
# type = "otlp"
# endpoint = "localhost:4317"
# protocol = "grpc"
# insecure = true  # disable TLS for local testing
# batch_size = 100
# flush_interval = "5s"
`
}
