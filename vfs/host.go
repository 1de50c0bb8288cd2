// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// Snapshot records the content digest of every file Materialize wrote,
// keyed by namespace path.
type Snapshot struct {
	Directory string
	digests   map[string][32]byte
}

// Len returns the number of files in the snapshot.
func (s *Snapshot) Len() int { return len(s.digests) }

// Materialize writes every file visible in ns below "/" into the host
// directory dir, preserving paths, and creates the working directory.
// dir must exist.
func Materialize(ns *Namespace, dir string) (*Snapshot, error) {
	files, err := ns.List("/")
	if err != nil {
		return nil, fmt.Errorf("listing namespace %s: %w", ns.ID(), err)
	}

	snapshot := &Snapshot{Directory: dir, digests: make(map[string][32]byte, len(files))}
	for _, name := range files {
		data, err := ns.ReadFile(name)
		if err != nil {
			return nil, err
		}
		hostPath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
			return nil, fmt.Errorf("materializing %s: %w", name, err)
		}
		if err := os.WriteFile(hostPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("materializing %s: %w", name, err)
		}
		snapshot.digests[name] = blake3.Sum256(data)
	}

	workingDirectory := filepath.Join(dir, filepath.FromSlash(ns.WorkingDirectory()))
	if err := os.MkdirAll(workingDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	return snapshot, nil
}

// SyncBack writes files that were created or modified under the
// snapshot's directory back into ns, and removes files that were
// deleted there. It returns the namespace paths it changed, sorted.
//
// A change below a read-only mount fails with ErrReadOnly. All other
// changes are still applied; the errors are joined.
func SyncBack(ns *Namespace, snapshot *Snapshot) ([]string, error) {
	seen := make(map[string]bool, len(snapshot.digests))
	var changed []string
	var errs []error

	walkErr := filepath.WalkDir(snapshot.Directory, func(hostPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relativePath, err := filepath.Rel(snapshot.Directory, hostPath)
		if err != nil {
			return err
		}
		name := path.Join("/", filepath.ToSlash(relativePath))
		seen[name] = true

		data, err := os.ReadFile(hostPath)
		if err != nil {
			return err
		}
		if digest, ok := snapshot.digests[name]; ok && digest == blake3.Sum256(data) {
			return nil
		}
		if err := ns.WriteFile(name, data); err != nil {
			errs = append(errs, err)
			return nil
		}
		changed = append(changed, name)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning %s: %w", snapshot.Directory, walkErr)
	}

	for name := range snapshot.digests {
		if seen[name] {
			continue
		}
		if err := ns.Remove(name); err != nil && !errors.Is(err, ErrPathNotFound) {
			errs = append(errs, err)
			continue
		}
		changed = append(changed, name)
	}

	sort.Strings(changed)
	return changed, errors.Join(errs...)
}
