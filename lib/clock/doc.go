// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Stage timeouts and socket deadlines take a [Clock] instead of calling
// the time package. Production wiring uses [Real]; tests use [Fake] and
// drive time with [FakeClock.Advance], synchronising with the code
// under test through [FakeClock.WaitForTimers]. A test of a stage that
// hangs therefore runs in microseconds and never flakes on a loaded
// machine.
package clock
