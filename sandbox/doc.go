// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox provides execution contexts: isolated instances of a
// stage module, each bound to its own [vfs.Namespace].
//
// A [Registry] resolves module references. A bare name selects a
// builtin registered with [Registry.Register]. "wasm:<path>" (or
// <name>.wasm in the module directory) compiles a WASI module with
// wazero. "exec:<path>" runs a host executable. [Registry.Instantiate]
// returns a [Context] whose [Context.CallMain] runs the module's entry
// point against the namespace; stdout and stderr reach the caller only
// through the line callbacks in [Options].
//
// Builtins operate on the namespace directly. WASM and exec modules
// see a host directory materialized from the namespace with
// [vfs.Materialize], and their changes are written back with
// [vfs.SyncBack]. Exec modules can additionally be confined by
// bubblewrap: [BwrapBuilder] translates a [Profile] plus the
// materialized tree into bwrap arguments, and [DetectCapabilities]
// reports whether the host supports it.
//
// Failures are typed: [ModuleLoadError] when a reference cannot be
// resolved or compiled, [ModuleInitError] when an instance cannot be
// set up, and [EntryPointError] when the entry point exits non-zero.
package sandbox
