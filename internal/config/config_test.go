package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Registry.Prefix != "ghcr.io/siliconcompiler/sc_tool" {
		t.Errorf("default prefix = %q", cfg.Registry.Prefix)
	}
	if cfg.Registry.TimeoutSeconds != 15 {
		t.Errorf("default timeout = %d, want 15", cfg.Registry.TimeoutSeconds)
	}
	if cfg.Registry.Parallelism != 8 {
		t.Errorf("default registry parallelism = %d, want 8", cfg.Registry.Parallelism)
	}
	if cfg.Catalog.Path != "tools.toml" {
		t.Errorf("default catalog path = %q", cfg.Catalog.Path)
	}
	if cfg.Build.Parallelism != 2 {
		t.Errorf("default build parallelism = %d, want 2", cfg.Build.Parallelism)
	}
	if cfg.Build.Push {
		t.Error("push enabled by default")
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Registry.Prefix == "" {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[registry]
prefix = "localhost:5000/sc_tool"
plain_http = true
parallelism = 4

[catalog]
path = "ci/tools.toml"

[build]
parallelism = 1
push = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Registry.Prefix != "localhost:5000/sc_tool" {
		t.Errorf("prefix = %q", cfg.Registry.Prefix)
	}
	if !cfg.Registry.PlainHTTP {
		t.Error("plain_http not set")
	}
	if cfg.Registry.Parallelism != 4 {
		t.Errorf("parallelism = %d", cfg.Registry.Parallelism)
	}
	// Unset values keep defaults.
	if cfg.Registry.TimeoutSeconds != 15 {
		t.Errorf("timeout = %d, want default 15", cfg.Registry.TimeoutSeconds)
	}
	if !cfg.Build.Push {
		t.Error("push not set")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"empty prefix",
			func(c *Config) { c.Registry.Prefix = "" },
			"registry.prefix",
		},
		{
			"prefix without host",
			func(c *Config) { c.Registry.Prefix = "sc_tool" },
			"registry host",
		},
		{
			"negative timeout",
			func(c *Config) { c.Registry.TimeoutSeconds = -1 },
			"timeout_seconds",
		},
		{
			"excessive parallelism",
			func(c *Config) { c.Registry.Parallelism = 1000 },
			"registry.parallelism",
		},
		{
			"bad receiver type",
			func(c *Config) {
				c.Logging.Receivers = []ReceiverConfig{{Type: "kafka"}}
			},
			"receivers[0].type",
		},
		{
			"otlp without endpoint",
			func(c *Config) {
				c.Logging.Receivers = []ReceiverConfig{{Type: "otlp"}}
			},
			"needs an endpoint",
		},
		{
			"syslog-remote without address",
			func(c *Config) {
				c.Logging.Receivers = []ReceiverConfig{{Type: "syslog-remote"}}
			},
			"needs an address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	var cfg Config
	if err := toml.Unmarshal([]byte(GenerateDefault()), &cfg); err != nil {
		t.Fatalf("GenerateDefault() is not valid TOML: %v", err)
	}
	if cfg.Registry.Prefix != "ghcr.io/siliconcompiler/sc_tool" {
		t.Errorf("template prefix = %q", cfg.Registry.Prefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("template config invalid: %v", err)
	}
}
