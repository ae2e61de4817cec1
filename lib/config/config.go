// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the resource compilation server.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures the three filesystem roots the server operates over.
	Paths PathsConfig `yaml:"paths"`

	// Compiler configures the external resource compiler.
	Compiler CompilerConfig `yaml:"compiler"`

	// Server configures the network listener and dispatch loop.
	Server ServerConfig `yaml:"server"`

	// EnvironmentOverrides contains per-environment overrides, applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Compiler *CompilerConfig `yaml:"compiler,omitempty"`
	Server   *ServerConfig   `yaml:"server,omitempty"`
}

// PathsConfig configures the three resource roots named in spec.md §6.
type PathsConfig struct {
	// Raw is the root of raw, authored resource sources.
	Raw string `yaml:"raw"`

	// Compiled is the root normal (non-packaging) compiled output is
	// written to.
	Compiled string `yaml:"compiled"`

	// Packaged is the root packaging-origin compiled output is written to.
	Packaged string `yaml:"packaged"`
}

// CompilerConfig configures the external resource compiler executable.
type CompilerConfig struct {
	// ExecutablePath is the path to the resource compiler binary invoked
	// per spec.md §6's subprocess contract.
	ExecutablePath string `yaml:"executable_path"`
}

// ServerConfig configures the network listener and dispatch loop.
type ServerConfig struct {
	// ListenAddress is the TCP address the network adapter listens on
	// (e.g., ":7420").
	ListenAddress string `yaml:"listen_address"`

	// Workers is the size of the compilation task worker pool.
	Workers int `yaml:"workers"`

	// TickInterval is how often the dispatcher's Update loop runs when
	// idle. Compilation and packaging progress only advance on ticks.
	TickInterval string `yaml:"tick_interval"`
}

// TickIntervalDuration parses ServerConfig.TickInterval, defaulting to
// 50ms (matching the 20Hz cadence real-time game tooling expects) if
// unset or unparsable.
func (s ServerConfig) TickIntervalDuration() time.Duration {
	if s.TickInterval == "" {
		return 50 * time.Millisecond
	}
	d, err := time.ParseDuration(s.TickInterval)
	if err != nil {
		return 50 * time.Millisecond
	}
	return d
}

// Default returns the default configuration. These defaults exist
// primarily to ensure all fields have sensible zero-values, not as a
// fallback -- the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "resourced")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Raw:      filepath.Join(defaultRoot, "raw"),
			Compiled: filepath.Join(defaultRoot, "compiled"),
			Packaged: filepath.Join(defaultRoot, "packaged"),
		},
		Compiler: CompilerConfig{
			ExecutablePath: "resource-compiler",
		},
		Server: ServerConfig{
			ListenAddress: ":7420",
			Workers:       4,
			TickInterval:  "50ms",
		},
	}
}

// Load loads configuration from the RESOURCED_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults -- if RESOURCED_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("RESOURCED_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("RESOURCED_CONFIG environment variable not set; " +
			"set it to the path of your resourced.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			// Production defaults: a larger pool, since a packaging
			// build server typically runs unattended under sustained
			// batch load.
			overrides = &ConfigOverrides{
				Server: &ServerConfig{
					Workers: 16,
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Raw != "" {
			c.Paths.Raw = overrides.Paths.Raw
		}
		if overrides.Paths.Compiled != "" {
			c.Paths.Compiled = overrides.Paths.Compiled
		}
		if overrides.Paths.Packaged != "" {
			c.Paths.Packaged = overrides.Paths.Packaged
		}
	}

	if overrides.Compiler != nil && overrides.Compiler.ExecutablePath != "" {
		c.Compiler.ExecutablePath = overrides.Compiler.ExecutablePath
	}

	if overrides.Server != nil {
		if overrides.Server.ListenAddress != "" {
			c.Server.ListenAddress = overrides.Server.ListenAddress
		}
		if overrides.Server.Workers != 0 {
			c.Server.Workers = overrides.Server.Workers
		}
		if overrides.Server.TickInterval != "" {
			c.Server.TickInterval = overrides.Server.TickInterval
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Raw = expandVars(c.Paths.Raw, vars)
	c.Paths.Compiled = expandVars(c.Paths.Compiled, vars)
	c.Paths.Packaged = expandVars(c.Paths.Packaged, vars)
	c.Compiler.ExecutablePath = expandVars(c.Compiler.ExecutablePath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Raw == "" {
		errs = append(errs, fmt.Errorf("paths.raw is required"))
	}
	if c.Paths.Compiled == "" {
		errs = append(errs, fmt.Errorf("paths.compiled is required"))
	}
	if c.Paths.Packaged == "" {
		errs = append(errs, fmt.Errorf("paths.packaged is required"))
	}
	if c.Compiler.ExecutablePath == "" {
		errs = append(errs, fmt.Errorf("compiler.executable_path is required"))
	}
	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, fmt.Errorf("server.workers must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the three resource roots if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Raw, c.Paths.Compiled, c.Paths.Packaged} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
