// Package vconfig loads vaultlang's configuration from a YAML file with
// environment-variable overrides, using a load-then-applyEnvOverrides
// idiom.
package vconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SandboxMode selects the process-isolation backend.
type SandboxMode string

const (
	SandboxModeNone   SandboxMode = "none"
	SandboxModeDocker SandboxMode = "docker"
)

// Config holds all vaultlang runtime configuration.
type Config struct {
	// StrictSecurity gates strict mode: any violation >= error blocks
	// codegen. Disabling it disables *static* analysis enforcement only -
	// runtime capability enforcement is never affected.
	StrictSecurity bool `yaml:"strict_security"`

	// CacheDir is where the analysis cache's optional write-behind
	// persistence lands.
	CacheDir string `yaml:"cache_dir"`

	// SandboxTimeoutMs is the default wall-clock timeout for sandbox runs.
	SandboxTimeoutMs int64 `yaml:"sandbox_timeout_ms"`

	// SandboxMemoryBytes is the default memory ceiling for sandbox runs.
	SandboxMemoryBytes int64 `yaml:"sandbox_memory_bytes"`

	// SandboxMode selects the isolation backend.
	SandboxMode SandboxMode `yaml:"sandbox_mode"`

	// Workers bounds the analyzer's parallel worker pool.
	Workers int `yaml:"workers"`

	// LogDir overrides where obslog writes category log files.
	LogDir string `yaml:"log_dir"`

	// Debug enables obslog file output.
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	return &Config{
		StrictSecurity:     true,
		CacheDir:           ".vaultlang/cache",
		SandboxTimeoutMs:   5000,
		SandboxMemoryBytes: 256 * 1024 * 1024,
		SandboxMode:        SandboxModeNone,
		Workers:            runtime.NumCPU(),
		LogDir:             ".vaultlang/logs",
		Debug:              false,
	}
}

// Load reads a YAML config file at path (if it exists) over the defaults,
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("vconfig: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("vconfig: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFromWorkspace is a convenience wrapper that looks for
// <root>/.vaultlang/config.yaml.
func LoadFromWorkspace(root string) (*Config, error) {
	return Load(filepath.Join(root, ".vaultlang", "config.yaml"))
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STRICT_SECURITY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.StrictSecurity = b
		}
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("SANDBOX_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SandboxTimeoutMs = n
		}
	}
	if v := os.Getenv("SANDBOX_MEMORY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SandboxMemoryBytes = n
		}
	}
	if v := os.Getenv("VAULTLANG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
	if v := os.Getenv("VAULTLANG_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("VAULTLANG_SANDBOX_MODE"); v != "" {
		c.SandboxMode = SandboxMode(v)
	}
}

// SandboxTimeout returns SandboxTimeoutMs as a time.Duration.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.SandboxTimeoutMs) * time.Millisecond
}
