// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error helper shared by
// bootsign and bootsignd. Both binaries structure main as
//
//	func main() {
//	    if err := run(); err != nil {
//	        process.Fatal(err)
//	    }
//	}
//
// so configuration and logger setup failures are reported the same way
// as runtime failures.
package process
