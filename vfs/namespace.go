// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
)

// Mode is the access a guest has through a mount.
type Mode int

const (
	// ReadOnly rejects guest writes with ErrReadOnly.
	ReadOnly Mode = iota

	// ReadWrite reflects guest writes into host storage.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "rw"
	}
	return "ro"
}

// ParseMode parses "ro" or "rw". The empty string is read-only.
func ParseMode(value string) (Mode, error) {
	switch value {
	case "", "ro":
		return ReadOnly, nil
	case "rw":
		return ReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown mount mode %q (want ro or rw)", value)
	}
}

// Namespace is one execution context's view of the filesystem: a
// private FileStore overlaid with mounts of other namespaces.
type Namespace struct {
	id   string
	root FileStore

	mu               sync.RWMutex
	workingDirectory string
	mounts           map[string]mountEntry
}

// mountEntry is one row of a namespace's mount table.
type mountEntry struct {
	point    string
	host     *Namespace
	hostRoot string
	mode     Mode
}

// NewNamespace returns a namespace backed by a fresh MemoryStore, with
// working directory "/".
func NewNamespace(id string) *Namespace {
	return NewNamespaceWithStore(id, NewMemoryStore())
}

// NewNamespaceWithStore returns a namespace over an existing store.
func NewNamespaceWithStore(id string, store FileStore) *Namespace {
	return &Namespace{
		id:               id,
		root:             store,
		workingDirectory: "/",
		mounts:           make(map[string]mountEntry),
	}
}

// ID returns the namespace identifier given at creation.
func (n *Namespace) ID() string { return n.id }

// WorkingDirectory returns the directory relative paths resolve
// against.
func (n *Namespace) WorkingDirectory() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.workingDirectory
}

// Chdir sets the working directory. The directory need not exist yet.
func (n *Namespace) Chdir(dir string) {
	cleaned := n.Abs(dir)
	n.mu.Lock()
	n.workingDirectory = cleaned
	n.mu.Unlock()
}

// Abs returns the clean absolute form of name.
func (n *Namespace) Abs(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(n.WorkingDirectory(), name)
}

// lookup finds the mount covering name, if any, and the corresponding
// path in the host namespace.
func (n *Namespace) lookup(name string) (mountEntry, string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var best mountEntry
	found := false
	for point, entry := range n.mounts {
		if within(name, point) && (!found || len(point) > len(best.point)) {
			best, found = entry, true
		}
	}
	if !found {
		return mountEntry{}, "", false
	}
	return best, path.Join(best.hostRoot, relative(name, best.point)), true
}

// ReadFile returns a copy of the file at name.
func (n *Namespace) ReadFile(name string) ([]byte, error) {
	return n.read(n.Abs(name))
}

func (n *Namespace) read(name string) ([]byte, error) {
	if entry, hostPath, ok := n.lookup(name); ok {
		data, err := entry.host.read(hostPath)
		return data, rebase(err, name)
	}
	return n.root.Read(name)
}

// WriteFile stores a copy of data at name.
func (n *Namespace) WriteFile(name string, data []byte) error {
	return n.write(n.Abs(name), data)
}

func (n *Namespace) write(name string, data []byte) error {
	if entry, hostPath, ok := n.lookup(name); ok {
		if entry.mode != ReadWrite {
			return &fs.PathError{Op: "write", Path: name, Err: ErrReadOnly}
		}
		return rebase(entry.host.write(hostPath, data), name)
	}
	return n.root.Write(name, data)
}

// Remove deletes the file at name.
func (n *Namespace) Remove(name string) error {
	return n.remove(n.Abs(name))
}

func (n *Namespace) remove(name string) error {
	if entry, hostPath, ok := n.lookup(name); ok {
		if entry.mode != ReadWrite {
			return &fs.PathError{Op: "remove", Path: name, Err: ErrReadOnly}
		}
		return rebase(entry.host.remove(hostPath), name)
	}
	return n.root.Remove(name)
}

// Stat describes name. Mount points and directories holding visible
// files report IsDir.
func (n *Namespace) Stat(name string) (FileInfo, error) {
	return n.stat(n.Abs(name))
}

func (n *Namespace) stat(name string) (FileInfo, error) {
	if entry, hostPath, ok := n.lookup(name); ok {
		info, err := entry.host.stat(hostPath)
		if err != nil {
			if name == entry.point {
				return FileInfo{Path: name, IsDir: true}, nil
			}
			return FileInfo{}, rebase(err, name)
		}
		info.Path = name
		return info, nil
	}
	info, err := n.root.Stat(name)
	if err == nil {
		return info, nil
	}
	// A directory may exist only because a mount lives below it.
	n.mu.RLock()
	defer n.mu.RUnlock()
	for point := range n.mounts {
		if within(point, name) {
			return FileInfo{Path: name, IsDir: true}, nil
		}
	}
	return FileInfo{}, err
}

// Exists reports whether name is a regular file.
func (n *Namespace) Exists(name string) bool {
	info, err := n.Stat(name)
	return err == nil && !info.IsDir
}

// List returns every visible file below dir, recursively and sorted,
// including files reached through mounts.
func (n *Namespace) List(dir string) ([]string, error) {
	return n.list(n.Abs(dir))
}

func (n *Namespace) list(dir string) ([]string, error) {
	if entry, hostPath, ok := n.lookup(dir); ok {
		hostFiles, err := entry.host.list(hostPath)
		if err != nil {
			return nil, rebase(err, dir)
		}
		guestFiles := make([]string, 0, len(hostFiles))
		for _, hostFile := range hostFiles {
			guestFiles = append(guestFiles, path.Join(dir, relative(hostFile, hostPath)))
		}
		return guestFiles, nil
	}

	own, err := n.root.List(dir)
	if err != nil {
		return nil, err
	}

	n.mu.RLock()
	mounts := make([]mountEntry, 0, len(n.mounts))
	for _, entry := range n.mounts {
		mounts = append(mounts, entry)
	}
	n.mu.RUnlock()

	var files []string
	for _, name := range own {
		if !shadowed(name, mounts) {
			files = append(files, name)
		}
	}
	for _, entry := range mounts {
		if !within(entry.point, dir) {
			continue
		}
		mounted, err := n.list(entry.point)
		if err != nil {
			return nil, err
		}
		files = append(files, mounted...)
	}
	sort.Strings(files)
	return files, nil
}

func shadowed(name string, mounts []mountEntry) bool {
	for _, entry := range mounts {
		if within(name, entry.point) {
			return true
		}
	}
	return false
}

// reaches reports whether target is n or is visible from n through
// any chain of mounts.
func (n *Namespace) reaches(target *Namespace) bool {
	if n == target {
		return true
	}
	n.mu.RLock()
	hosts := make([]*Namespace, 0, len(n.mounts))
	for _, entry := range n.mounts {
		hosts = append(hosts, entry.host)
	}
	n.mu.RUnlock()
	for _, host := range hosts {
		if host.reaches(target) {
			return true
		}
	}
	return false
}

// Mount makes host's subtree at hostRoot visible inside guest at
// guestMountPath.
//
// It fails with ErrMountConflict when:
//   - guestMountPath is already a mount point, lies inside one, or
//     contains one;
//   - guest already holds files at or below guestMountPath;
//   - host is guest, or guest is already visible from host (the
//     mount would form a cycle).
func Mount(host, guest *Namespace, hostRoot, guestMountPath string, mode Mode) error {
	if host == nil || guest == nil {
		return fmt.Errorf("mount: host and guest namespaces are required")
	}
	point := guest.Abs(guestMountPath)
	conflict := func(reason string) error {
		return &fs.PathError{Op: "mount", Path: point, Err: fmt.Errorf("%w: %s", ErrMountConflict, reason)}
	}

	if host.reaches(guest) {
		return conflict(fmt.Sprintf("namespace %s is already visible from %s", guest.id, host.id))
	}

	// Own files at the mount point would be hidden.
	own, err := guest.root.List(point)
	if err != nil {
		return err
	}
	if len(own) > 0 {
		return conflict("mount point is not empty")
	}
	if info, err := guest.root.Stat(point); err == nil && !info.IsDir {
		return conflict("mount point is a file")
	}

	guest.mu.Lock()
	defer guest.mu.Unlock()
	for existing := range guest.mounts {
		if within(point, existing) || within(existing, point) {
			return conflict(fmt.Sprintf("overlaps existing mount at %s", existing))
		}
	}
	guest.mounts[point] = mountEntry{
		point:    point,
		host:     host,
		hostRoot: host.Abs(hostRoot),
		mode:     mode,
	}
	return nil
}

// Unmount removes the mount at guestMountPath.
func Unmount(guest *Namespace, guestMountPath string) error {
	point := guest.Abs(guestMountPath)
	guest.mu.Lock()
	defer guest.mu.Unlock()
	if _, ok := guest.mounts[point]; !ok {
		return &fs.PathError{Op: "unmount", Path: point, Err: ErrPathNotFound}
	}
	delete(guest.mounts, point)
	return nil
}

// Mounts returns the guest's mount points, sorted.
func (n *Namespace) Mounts() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	points := make([]string, 0, len(n.mounts))
	for point := range n.mounts {
		points = append(points, point)
	}
	sort.Strings(points)
	return points
}

// WriteFile stores data at name in ns.
func WriteFile(ns *Namespace, name string, data []byte) error {
	return ns.WriteFile(name, data)
}

// ReadFile reads name from ns.
func ReadFile(ns *Namespace, name string) ([]byte, error) {
	return ns.ReadFile(name)
}

// rebase rewrites the path of a *fs.PathError returned by a host
// namespace so the guest sees its own path.
func rebase(err error, guestPath string) error {
	if pathError, ok := err.(*fs.PathError); ok {
		return &fs.PathError{Op: pathError.Op, Path: guestPath, Err: pathError.Err}
	}
	return err
}
