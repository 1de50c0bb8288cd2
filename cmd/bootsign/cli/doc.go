// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree framework of the bootsign CLI:
// nested [Command] values with pflag flag sets, generated help,
// typo suggestions for commands and flags, and the shared logger and
// JSON output helpers.
package cli
