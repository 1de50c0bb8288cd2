// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend holds the process-wide interpreted signing backend.
//
// Preparing the backend is expensive: signing keys are read and
// unsealed, and the avbtool toolchain is checked. A [Handle] runs that
// preparation at most once per process, the first time any job awaits
// it. Jobs that arrive while it is running wait on the same result;
// the result, success or [InitializationError], is kept for the
// lifetime of the handle. [Shared] returns the handle the daemon
// installed with [Install].
//
// The avb-sign module ([RegisterModule]) runs the interpreted signing
// flow against the ready [Environment]. Each invocation copies its
// inputs and the keys into a host directory under the environment
// root named after the namespace's working directory, runs
// [avb.SignImages] there, writes the archive back into the namespace,
// and removes the directory.
package backend
