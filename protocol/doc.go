// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the job envelope exchanged between a
// controller and the signing daemon, and the Unix socket transport
// that carries it.
//
// A controller sends a [Submission] naming its input files and signing
// [Parameters]. The daemon answers with a stream of [Event] values for
// that job id: any number of log events, then exactly one success or
// error event. Success carries the artifact URL; error carries the
// failing stage index (-1 when no stage ran) and a reason of the form
// "<ErrorName>: <message>".
//
// On the wire every value is CBOR (see lib/codec). Each connection
// carries one request: submit streams events on the same connection,
// fetch and status return a single [Response].
//
// [EventLog] keeps a JSONL audit trail of every event the daemon sends.
package protocol
