// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the
// select-with-timeout safety valve so that a test waiting on a pipeline
// event fails with a message instead of hanging the suite. They are the
// only place where tests use real wall-clock timeouts; everything under
// test takes a lib/clock.Clock.
//
// [SocketDir] returns a short directory for Unix sockets, whose paths
// are limited to 108 bytes.
//
// [UniqueID] returns monotonically increasing identifiers for job ids
// and file names that must not collide between parallel tests.
package testutil
