// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile defines the bubblewrap confinement for exec modules.
type Profile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Filesystem  []Mount           `yaml:"filesystem,omitempty"`
	Namespaces  NamespaceConfig   `yaml:"namespaces,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Security    SecurityConfig    `yaml:"security,omitempty"`
	CreateDirs  []string          `yaml:"create_dirs,omitempty"`
}

// Mount defines a host filesystem mount in the sandbox, in addition to
// the materialized namespace tree.
type Mount struct {
	Source   string `yaml:"source,omitempty"`
	Dest     string `yaml:"dest"`
	Mode     string `yaml:"mode,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Glob     bool   `yaml:"glob,omitempty"`
}

// MountType constants for the Type field.
const (
	MountTypeBind    = ""         // Default: bind mount
	MountTypeTmpfs   = "tmpfs"    // tmpfs mount
	MountTypeProc    = "proc"     // /proc
	MountTypeDev     = "dev"      // /dev (minimal)
	MountTypeDevBind = "dev-bind" // Device node bind
)

// MountMode constants for the Mode field.
const (
	MountModeRO = "ro" // Read-only
	MountModeRW = "rw" // Read-write
)

// NamespaceConfig defines which namespaces to unshare.
type NamespaceConfig struct {
	PID    bool `yaml:"pid"`
	Net    bool `yaml:"net"`
	IPC    bool `yaml:"ipc"`
	UTS    bool `yaml:"uts"`
	Cgroup bool `yaml:"cgroup"`
	User   bool `yaml:"user"`
}

// SecurityConfig defines security settings for the sandbox.
type SecurityConfig struct {
	NewSession    bool `yaml:"new_session"`
	DieWithParent bool `yaml:"die_with_parent"`
}

// DefaultProfile is the profile exec modules run under when no profile
// file is configured: read-only system directories, no network, and a
// private /tmp.
func DefaultProfile() *Profile {
	return &Profile{
		Name:        "module",
		Description: "stage module with system libraries and no network",
		Filesystem: []Mount{
			{Source: "/usr", Dest: "/usr", Mode: MountModeRO},
			{Source: "/bin", Dest: "/bin", Mode: MountModeRO, Optional: true},
			{Source: "/lib", Dest: "/lib", Mode: MountModeRO, Optional: true},
			{Source: "/lib64", Dest: "/lib64", Mode: MountModeRO, Optional: true},
			{Source: "/etc/alternatives", Dest: "/etc/alternatives", Mode: MountModeRO, Optional: true},
			{Source: "/etc/ssl", Dest: "/etc/ssl", Mode: MountModeRO, Optional: true},
			{Dest: "/tmp", Type: MountTypeTmpfs},
		},
		Namespaces: NamespaceConfig{
			PID: true,
			Net: true,
			IPC: true,
			UTS: true,
		},
		Security: SecurityConfig{
			NewSession:    true,
			DieWithParent: true,
		},
		Environment: map[string]string{
			"PATH": "/usr/local/bin:/usr/bin:/bin",
			"HOME": "/tmp",
		},
	}
}

// LoadProfile reads a single YAML profile and validates it.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sandbox profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parsing sandbox profile %s: %w", path, err)
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Clone creates a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	clone := &Profile{
		Name:        p.Name,
		Description: p.Description,
		Namespaces:  p.Namespaces,
		Security:    p.Security,
	}
	if p.Filesystem != nil {
		clone.Filesystem = make([]Mount, len(p.Filesystem))
		copy(clone.Filesystem, p.Filesystem)
	}
	if p.CreateDirs != nil {
		clone.CreateDirs = make([]string, len(p.CreateDirs))
		copy(clone.CreateDirs, p.CreateDirs)
	}
	if p.Environment != nil {
		clone.Environment = make(map[string]string, len(p.Environment))
		for k, v := range p.Environment {
			clone.Environment[k] = v
		}
	}
	return clone
}

// Validate checks that a profile is valid.
func (p *Profile) Validate() error {
	var errors []string

	for i, m := range p.Filesystem {
		if m.Dest == "" {
			errors = append(errors, fmt.Sprintf("filesystem[%d]: dest is required", i))
		}
		switch m.Type {
		case MountTypeBind, MountTypeDevBind:
			if m.Source == "" {
				errors = append(errors, fmt.Sprintf("filesystem[%d]: source is required for bind mounts", i))
			}
		case MountTypeTmpfs, MountTypeProc, MountTypeDev:
		default:
			errors = append(errors, fmt.Sprintf("filesystem[%d]: unknown type %q", i, m.Type))
		}
		if m.Mode != "" && m.Mode != MountModeRO && m.Mode != MountModeRW {
			errors = append(errors, fmt.Sprintf("filesystem[%d]: invalid mode %q (must be ro or rw)", i, m.Mode))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("profile %q validation failed:\n  %s", p.Name, strings.Join(errors, "\n  "))
	}
	return nil
}
