// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vfs is the virtual filesystem bridge between execution
// contexts.
//
// Every execution context owns a [Namespace]: a private [FileStore]
// plus a mount table. [Mount] makes a subtree of one namespace visible
// inside another at a chosen mount point, read-only or read-write.
// Guest reads under the mount point resolve into the host namespace
// (including the host's own mounts); guest writes are rejected with
// [ErrReadOnly] or land in host storage. No bytes are copied to set up
// a mount. This is how the output of one pipeline stage becomes the
// input of the next without the stages sharing memory.
//
// Paths are slash-separated. Relative paths resolve against the
// namespace's working directory; every path is cleaned before use.
// Directories are implicit: a directory exists while some file below
// it exists.
//
// Errors are *fs.PathError values wrapping one of the sentinels
// [ErrPathNotFound], [ErrMountConflict] or [ErrReadOnly]. ErrReadOnly
// wraps ErrMountConflict, so a rejected write matches either.
//
// Modules that run outside the process (host executables, WASM) see a
// namespace through [Materialize], which writes every visible file
// under a host directory, and [SyncBack], which writes changes made
// there back through the namespace, honouring read-only mounts.
package vfs
