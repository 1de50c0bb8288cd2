// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "fmt"

// Phase is a coordinator state without its stage index.
type Phase int

const (
	Idle Phase = iota
	Loading
	Running
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a job's position in the coordinator state machine. Stage
// is meaningful for Running and Failed.
type State struct {
	Phase Phase
	Stage int
}

func (s State) String() string {
	switch s.Phase {
	case Running, Failed:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Stage)
	default:
		return s.Phase.String()
	}
}

// StateObserver is told of every state a job enters.
type StateObserver func(jobID string, state State)
