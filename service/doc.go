// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles the signing service from configuration:
// the module registry with the built-in signing modules, the shared
// interpreted backend handle, the stage runner, the artifact store,
// the pipeline coordinator and its worker pool.
//
// bootsignd serves it over the job socket; "bootsign sign" runs one
// job through it in-process.
package service
