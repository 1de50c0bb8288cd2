// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stage runs one pipeline stage: a module instantiated in a
// fresh [sandbox.Context], fed by input mounts, and judged by whether
// it produced its expected output file.
//
// A [Runner] takes a [Spec] and the results of the stages before it.
// Each input mount brings in one of three sources:
//
//   - a job input file, written into the stage's namespace
//   - a resource (signing keys and similar), mounted read-only from a
//     private namespace populated through [Resources]
//   - a subtree of an earlier stage's namespace, mounted read-only or
//     read-write
//
// Args and paths may reference job variables as ${name}; they are
// expanded before the stage runs. A reference to an unknown variable
// fails the stage.
//
// The runner never retries. Module load, init, and entry point
// failures, a missing expected output ([MissingOutputError]) and an
// expired stage timeout ([TimeoutError]) are all returned wrapped in a
// [StageError] carrying the stage index and name.
//
// A successful [Result] keeps its context open so later stages can
// mount its namespace. The caller releases it with [Result.Close] once
// the job is finished.
package stage
