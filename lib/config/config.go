// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete bootsign configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Paths   PathsConfig   `yaml:"paths"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Stages  StagesConfig  `yaml:"stages"`
	Signing SigningConfig `yaml:"signing"`
	Sandbox SandboxConfig `yaml:"sandbox"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment sections. Only non-empty values
// replace the base configuration.
type Overrides struct {
	LogLevel string         `yaml:"log_level,omitempty"`
	Paths    *PathsConfig   `yaml:"paths,omitempty"`
	Daemon   *DaemonConfig  `yaml:"daemon,omitempty"`
	Stages   *StagesConfig  `yaml:"stages,omitempty"`
	Signing  *SigningConfig `yaml:"signing,omitempty"`
	Sandbox  *SandboxConfig `yaml:"sandbox,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for all bootsign state.
	Root string `yaml:"root"`

	// State holds per-job scratch directories for the interpreted
	// backend and materialized exec/wasm stages.
	State string `yaml:"state"`

	// Artifacts is the artifact store directory.
	Artifacts string `yaml:"artifacts"`

	// Modules is searched for <name>.wasm when a stage names a module
	// that is not registered as a builtin.
	Modules string `yaml:"modules"`

	// Resources is exposed read-only to stages that mount the
	// "resource" source (the sprd signing key lives here).
	Resources string `yaml:"resources"`
}

// DaemonConfig configures bootsignd.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path"`

	// Workers is the number of jobs processed concurrently.
	Workers int `yaml:"workers"`

	// QueueSize is the number of accepted jobs waiting for a worker.
	QueueSize int `yaml:"queue_size"`

	// EventLog, when set, receives every event as JSONL.
	EventLog string `yaml:"event_log"`
}

// StagesConfig configures the stage runner.
type StagesConfig struct {
	// Timeout bounds one stage invocation, as a Go duration string.
	// Zero disables the timeout.
	Timeout string `yaml:"timeout"`
}

// SigningConfig configures key material and the avbtool backend.
type SigningConfig struct {
	Python  string `yaml:"python"`
	Avbtool string `yaml:"avbtool"`

	// IdentityFile is the age identity that opens sealed key files.
	IdentityFile string `yaml:"identity_file"`

	// VBMetaKey is the PEM private key used for make_vbmeta_image and
	// add_hash_footer. May be age-sealed.
	VBMetaKey string `yaml:"vbmeta_key"`

	// CustomPublicKey is the AVB public key blob installed as the
	// chain partition key of the signed image type.
	CustomPublicKey string `yaml:"custom_public_key"`

	// SprdKey is the PEM private key of the native sprd-sign stage.
	// May be age-sealed.
	SprdKey string `yaml:"sprd_key"`
}

// SandboxConfig configures exec module isolation.
type SandboxConfig struct {
	// Bwrap runs exec modules inside bubblewrap.
	Bwrap bool `yaml:"bwrap"`

	// BwrapPath overrides the bwrap binary location.
	BwrapPath string `yaml:"bwrap_path"`

	// Profile is a YAML sandbox profile replacing the built-in module
	// profile.
	Profile string `yaml:"profile"`
}

// Default returns the zero-state configuration the file is merged
// onto.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	root := filepath.Join(homeDirectory, ".cache", "bootsign")

	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Paths: PathsConfig{
			Root:      root,
			State:     filepath.Join(root, "state"),
			Artifacts: filepath.Join(root, "artifacts"),
			Modules:   filepath.Join(root, "modules"),
			Resources: filepath.Join(root, "resources"),
		},
		Daemon: DaemonConfig{
			SocketPath: "/run/bootsign/bootsign.sock",
			Workers:    2,
			QueueSize:  16,
		},
		Stages: StagesConfig{
			Timeout: "2m",
		},
		Signing: SigningConfig{
			Python:  "python3",
			Avbtool: "avbtool",
		},
		Sandbox: SandboxConfig{
			BwrapPath: "bwrap",
		},
	}
}

// Load loads the file named by BOOTSIGN_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("BOOTSIGN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("BOOTSIGN_CONFIG environment variable not set; " +
			"set it to the path of your bootsign.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, applies the matching
// environment section and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Sandbox: &SandboxConfig{Bwrap: true}}
		}
	}
	if overrides == nil {
		return
	}

	setString(&c.LogLevel, overrides.LogLevel)

	if paths := overrides.Paths; paths != nil {
		setString(&c.Paths.Root, paths.Root)
		setString(&c.Paths.State, paths.State)
		setString(&c.Paths.Artifacts, paths.Artifacts)
		setString(&c.Paths.Modules, paths.Modules)
		setString(&c.Paths.Resources, paths.Resources)
	}
	if daemon := overrides.Daemon; daemon != nil {
		setString(&c.Daemon.SocketPath, daemon.SocketPath)
		setString(&c.Daemon.EventLog, daemon.EventLog)
		if daemon.Workers != 0 {
			c.Daemon.Workers = daemon.Workers
		}
		if daemon.QueueSize != 0 {
			c.Daemon.QueueSize = daemon.QueueSize
		}
	}
	if stages := overrides.Stages; stages != nil {
		setString(&c.Stages.Timeout, stages.Timeout)
	}
	if signing := overrides.Signing; signing != nil {
		setString(&c.Signing.Python, signing.Python)
		setString(&c.Signing.Avbtool, signing.Avbtool)
		setString(&c.Signing.IdentityFile, signing.IdentityFile)
		setString(&c.Signing.VBMetaKey, signing.VBMetaKey)
		setString(&c.Signing.CustomPublicKey, signing.CustomPublicKey)
		setString(&c.Signing.SprdKey, signing.SprdKey)
	}
	if sandbox := overrides.Sandbox; sandbox != nil {
		// Bwrap is a bool, so a present sandbox section always sets it.
		c.Sandbox.Bwrap = sandbox.Bwrap
		setString(&c.Sandbox.BwrapPath, sandbox.BwrapPath)
		setString(&c.Sandbox.Profile, sandbox.Profile)
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"BOOTSIGN_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BOOTSIGN_ROOT"] = c.Paths.Root

	for _, field := range []*string{
		&c.Paths.State,
		&c.Paths.Artifacts,
		&c.Paths.Modules,
		&c.Paths.Resources,
		&c.Daemon.SocketPath,
		&c.Daemon.EventLog,
		&c.Signing.Avbtool,
		&c.Signing.IdentityFile,
		&c.Signing.VBMetaKey,
		&c.Signing.CustomPublicKey,
		&c.Signing.SprdKey,
		&c.Sandbox.Profile,
	} {
		*field = expandVars(*field, vars)
	}
}

// varPattern matches ${NAME} and ${NAME:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Paths.Artifacts == "" {
		errs = append(errs, fmt.Errorf("paths.artifacts is required"))
	}
	if c.Daemon.SocketPath == "" {
		errs = append(errs, fmt.Errorf("daemon.socket_path is required"))
	}
	if c.Daemon.Workers < 1 {
		errs = append(errs, fmt.Errorf("daemon.workers must be at least 1, got %d", c.Daemon.Workers))
	}
	if c.Daemon.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("daemon.queue_size must not be negative, got %d", c.Daemon.QueueSize))
	}
	if _, err := c.StageTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Sandbox.Bwrap && c.Sandbox.BwrapPath == "" {
		errs = append(errs, fmt.Errorf("sandbox.bwrap_path is required when sandbox.bwrap is set"))
	}

	return errors.Join(errs...)
}

// StageTimeout parses Stages.Timeout. An empty value means no timeout.
func (c *Config) StageTimeout() (time.Duration, error) {
	if c.Stages.Timeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Stages.Timeout)
	if err != nil {
		return 0, fmt.Errorf("stages.timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("stages.timeout must not be negative, got %s", timeout)
	}
	return timeout, nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates the configured directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State, c.Paths.Artifacts} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
