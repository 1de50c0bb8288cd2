// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline coordinates signing jobs.
//
// A [Topology] is an ordered list of stage specs plus the
// prerequisites it needs before its first stage. Two topologies are
// embedded as JSONC: "native" (get-raw-image, imgheaderinsert,
// sprd-sign) and "interpreted" (avb-sign against the shared backend).
// A job's backend parameter names its topology.
//
// The [Coordinator] drives one job through a fixed state machine:
//
//	Idle -> Loading -> Running(0) -> ... -> Running(n-1) -> Succeeded
//	          |            |                    |
//	          +------------+--------------------+--> Failed
//
// Loading awaits the topology's prerequisites and is skipped when
// there are none. A prerequisite failure fails the job with stage -1.
// Stage i+1 starts only after stage i's expected output was read.
// The final stage's output is packaged, stored in the artifact store,
// and announced with a success event.
//
// Every job emits exactly one terminal event, last. The emitter that
// wraps a job's sink enforces this: log events pass until the terminal
// event, the first terminal event passes, and everything after it is
// dropped.
//
// [Pool] runs jobs on a fixed set of workers with a bounded queue.
package pipeline
