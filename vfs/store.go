// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrPathNotFound is returned when reading a path that was never
	// written (or was removed).
	ErrPathNotFound = errors.New("path not found")

	// ErrMountConflict is returned when a mount cannot be established:
	// the mount point is already mounted or holds files, or the mount
	// would create a cycle.
	ErrMountConflict = errors.New("mount conflict")

	// ErrReadOnly is returned for a write through a read-only mount.
	ErrReadOnly = fmt.Errorf("%w: write rejected by read-only mount", ErrMountConflict)
)

// FileInfo describes a path.
type FileInfo struct {
	Path  string
	Size  int64
	IsDir bool
}

// FileStore is a flat byte-addressable file namespace. Paths passed to
// a FileStore are always clean and absolute. Implementations must be
// safe for concurrent use and must not retain or alias caller buffers.
type FileStore interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Stat(name string) (FileInfo, error)

	// List returns every file below dir, recursively, sorted.
	List(dir string) ([]string, error)

	Remove(name string) error
}

// MemoryStore is an in-memory FileStore. Reads and writes copy.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Read(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: ErrPathNotFound}
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Write(name string, data []byte) error {
	if name == "/" {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDirLocked(name) {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrExist}
	}
	for parent := path.Dir(name); parent != "/"; parent = path.Dir(parent) {
		if _, ok := s.files[parent]; ok {
			return &fs.PathError{Op: "write", Path: name, Err: fmt.Errorf("parent %s is a file: %w", parent, fs.ErrInvalid)}
		}
	}
	s.files[name] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Stat(name string) (FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.files[name]; ok {
		return FileInfo{Path: name, Size: int64(len(data))}, nil
	}
	if s.isDirLocked(name) {
		return FileInfo{Path: name, IsDir: true}, nil
	}
	return FileInfo{}, &fs.PathError{Op: "stat", Path: name, Err: ErrPathNotFound}
}

func (s *MemoryStore) List(dir string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.files {
		if within(name, dir) && name != dir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: ErrPathNotFound}
	}
	delete(s.files, name)
	return nil
}

// isDirLocked reports whether some file lives below name.
func (s *MemoryStore) isDirLocked(name string) bool {
	prefix := name
	if prefix != "/" {
		prefix += "/"
	}
	for existing := range s.files {
		if strings.HasPrefix(existing, prefix) {
			return true
		}
	}
	return false
}

// within reports whether name is dir or lies below it. Both must be
// clean absolute paths.
func within(name, dir string) bool {
	if dir == "/" || name == dir {
		return true
	}
	return strings.HasPrefix(name, dir+"/")
}

// relative returns name relative to dir, which must contain it. The
// result is "" when name == dir.
func relative(name, dir string) string {
	if name == dir {
		return ""
	}
	if dir == "/" {
		return strings.TrimPrefix(name, "/")
	}
	return strings.TrimPrefix(name, dir+"/")
}
