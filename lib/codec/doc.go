// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR configuration for bootsign.
//
// Two serialization formats are used, with a clear boundary:
//
//   - JSON for external interfaces: the submission and event shapes a
//     controller sees, CLI --json output, topology definitions, and
//     the JSONL event log.
//   - CBOR for internal transport: the daemon's Unix socket protocol
//     and the artifact store's metadata sidecars.
//
// Protocol types carry `json` struct tags only. fxamacker/cbor falls
// back to `json` tags when `cbor` tags are absent, so one tag set
// controls naming in both formats and a socket event decodes into the
// exact field names a JSON controller expects. Types that never leave
// the process boundary as JSON use `cbor` tags. Never put both tags on
// one field.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
