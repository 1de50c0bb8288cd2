// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for signing keys.
//
// The vbmeta and sprd signing keys are decrypted once when the daemon
// starts and live for the process lifetime. A [Buffer] keeps them in an
// mmap region the garbage collector never sees or copies: locked into
// RAM (mlock), excluded from core dumps (MADV_DONTDUMP), and zeroed on
// Close. Keys are written to a job's scratch directory only for the
// duration of the signing call that needs them.
package secret
