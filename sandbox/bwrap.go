// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// BwrapOptions holds options for building a bwrap command.
type BwrapOptions struct {
	// Profile is the confinement profile to apply.
	Profile *Profile

	// Root is a host directory holding a materialized namespace. Each
	// top-level directory below it is bind-mounted read-write at the
	// same path inside the sandbox.
	Root string

	// WorkingDirectory is the guest path the command starts in.
	WorkingDirectory string

	// Program is the host path of the module binary. It is mounted
	// read-only at ModuleMountPath.
	Program string

	// ExtraBinds are additional bind mounts.
	// Format: "source:dest:mode" where mode is "ro" or "rw".
	ExtraBinds []string

	// ExtraEnv are additional environment variables.
	ExtraEnv map[string]string

	// Args are passed to the program after its name.
	Args []string
}

// ModuleMountPath is where the module binary appears inside bwrap.
const ModuleMountPath = "/run/bootsign/module"

// BwrapBuilder builds bubblewrap command-line arguments.
type BwrapBuilder struct {
	args []string
	env  map[string]string
}

// NewBwrapBuilder creates a new builder.
func NewBwrapBuilder() *BwrapBuilder {
	return &BwrapBuilder{
		args: []string{},
		env:  make(map[string]string),
	}
}

// Build constructs the bwrap arguments from options.
func (b *BwrapBuilder) Build(opts *BwrapOptions) ([]string, error) {
	if opts.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if opts.Program == "" {
		return nil, fmt.Errorf("program is required")
	}

	b.args = []string{}
	b.env = make(map[string]string)

	b.addNamespaces(opts.Profile.Namespaces)
	b.addSecurity(opts.Profile.Security)
	b.addBaseMounts()

	if err := b.addProfileMounts(opts.Profile); err != nil {
		return nil, err
	}
	if opts.Root != "" {
		if err := b.addNamespaceTree(opts.Root); err != nil {
			return nil, err
		}
	}
	if err := b.addExtraBinds(opts.ExtraBinds); err != nil {
		return nil, err
	}

	b.args = append(b.args, "--ro-bind", opts.Program, ModuleMountPath)

	for _, dir := range opts.Profile.CreateDirs {
		b.args = append(b.args, "--dir", dir)
	}
	if opts.WorkingDirectory != "" {
		b.args = append(b.args, "--chdir", opts.WorkingDirectory)
	}

	// Modules never see the daemon's environment.
	b.args = append(b.args, "--clearenv")
	for key, value := range opts.Profile.Environment {
		b.env[key] = value
	}
	for key, value := range opts.ExtraEnv {
		b.env[key] = value
	}
	if opts.WorkingDirectory != "" {
		b.env["PWD"] = opts.WorkingDirectory
	}

	// Sort keys for deterministic output.
	envKeys := make([]string, 0, len(b.env))
	for key := range b.env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		b.args = append(b.args, "--setenv", key, b.env[key])
	}

	b.args = append(b.args, "--", ModuleMountPath)
	b.args = append(b.args, opts.Args...)

	return b.args, nil
}

// addNamespaces adds namespace unsharing options.
func (b *BwrapBuilder) addNamespaces(ns NamespaceConfig) {
	if ns.PID {
		b.args = append(b.args, "--unshare-pid")
	}
	if ns.Net {
		b.args = append(b.args, "--unshare-net")
	}
	if ns.IPC {
		b.args = append(b.args, "--unshare-ipc")
	}
	if ns.UTS {
		b.args = append(b.args, "--unshare-uts")
	}
	if ns.Cgroup {
		b.args = append(b.args, "--unshare-cgroup")
	}
	if ns.User {
		b.args = append(b.args, "--unshare-user")
	}
}

// addSecurity adds security options.
func (b *BwrapBuilder) addSecurity(sec SecurityConfig) {
	if sec.NewSession {
		b.args = append(b.args, "--new-session")
	}
	if sec.DieWithParent {
		b.args = append(b.args, "--die-with-parent")
	}
}

// addBaseMounts adds standard /proc and /dev mounts.
func (b *BwrapBuilder) addBaseMounts() {
	b.args = append(b.args, "--proc", "/proc")
	b.args = append(b.args, "--dev", "/dev")
}

// addProfileMounts adds mounts from the profile configuration.
func (b *BwrapBuilder) addProfileMounts(profile *Profile) error {
	for _, mount := range profile.Filesystem {
		switch mount.Type {
		case MountTypeTmpfs:
			b.args = append(b.args, "--tmpfs", mount.Dest)

		case MountTypeProc:
			b.args = append(b.args, "--proc", mount.Dest)

		case MountTypeDev:
			b.args = append(b.args, "--dev", mount.Dest)

		case MountTypeDevBind:
			if mount.Optional {
				if _, err := os.Stat(mount.Source); os.IsNotExist(err) {
					continue
				}
			}
			b.args = append(b.args, "--dev-bind", mount.Source, mount.Dest)

		default:
			if mount.Optional {
				if _, err := os.Stat(mount.Source); os.IsNotExist(err) {
					continue
				}
			}

			if mount.Glob {
				matches, err := filepath.Glob(mount.Source)
				if err != nil {
					return fmt.Errorf("invalid glob pattern %q: %w", mount.Source, err)
				}
				for _, match := range matches {
					b.addBind(match, filepath.Join(mount.Dest, filepath.Base(match)), mount.Mode)
				}
				continue
			}

			b.addBind(mount.Source, mount.Dest, mount.Mode)
		}
	}
	return nil
}

// addNamespaceTree binds each top-level directory of a materialized
// namespace at its guest path. Top-level files are not visible.
func (b *BwrapBuilder) addNamespaceTree(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading materialized tree: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b.addBind(filepath.Join(root, entry.Name()), "/"+entry.Name(), MountModeRW)
	}
	return nil
}

// addExtraBinds adds explicitly requested bind mounts.
func (b *BwrapBuilder) addExtraBinds(binds []string) error {
	for _, bind := range binds {
		source, dest, mode, err := parseBindSpec(bind)
		if err != nil {
			return err
		}
		b.addBind(source, dest, mode)
	}
	return nil
}

func (b *BwrapBuilder) addBind(source, dest, mode string) {
	if mode == MountModeRO {
		b.args = append(b.args, "--ro-bind", source, dest)
	} else {
		b.args = append(b.args, "--bind", source, dest)
	}
}

// parseBindSpec parses a bind specification in format "source:dest[:mode]".
func parseBindSpec(spec string) (source, dest, mode string, err error) {
	parts := splitBindSpec(spec)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("invalid bind spec %q: must be source:dest[:mode]", spec)
	}

	source = parts[0]
	dest = parts[1]
	mode = MountModeRW

	if len(parts) >= 3 {
		modeStr := parts[2]
		if modeStr != MountModeRO && modeStr != MountModeRW {
			return "", "", "", fmt.Errorf("invalid bind mode %q: must be ro or rw", modeStr)
		}
		mode = modeStr
	}

	return source, dest, mode, nil
}

// splitBindSpec splits a bind spec in format "source:dest[:mode]".
// Paths containing colons are not supported.
func splitBindSpec(spec string) []string {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2, 3:
		return parts
	default:
		return []string{spec}
	}
}

// BwrapPath resolves the bwrap executable. A configured value
// containing a slash is used as is; a bare name is looked up on PATH,
// then in the standard locations.
func BwrapPath(configured string) (string, error) {
	if configured == "" {
		configured = "bwrap"
	}
	if strings.Contains(configured, "/") {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("bwrap not found at %s: %w", configured, err)
		}
		return configured, nil
	}
	if path, err := exec.LookPath(configured); err == nil {
		return path, nil
	}

	for _, path := range []string{
		"/usr/bin/bwrap",
		"/usr/local/bin/bwrap",
		"/bin/bwrap",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("bwrap not found in PATH or standard locations")
}
