// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bootsignd is the signing daemon. It listens on a unix socket for
// job submissions from "bootsign submit", runs them on a fixed pool of
// workers, and serves the resulting artifacts from its content
// addressed store.
//
// Configuration comes from the file named by --config or
// BOOTSIGN_CONFIG. The interpreted backend (the avbtool toolchain) is
// initialized once per process, on the first interpreted job or at
// startup with --warm; jobs submitted while it loads wait for it.
package main
