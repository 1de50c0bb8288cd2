// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"fmt"
	"time"
)

// MissingOutputError reports that a stage's entry point succeeded but
// its expected output file does not exist.
type MissingOutputError struct {
	StageIndex int
	Path       string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("stage %d did not produce %s", e.StageIndex, e.Path)
}

// TimeoutError reports that a stage did not finish within its timeout.
type TimeoutError struct {
	StageIndex int
	After      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %d timed out after %s", e.StageIndex, e.After)
}

// StageError wraps any failure of one stage with its position.
type StageError struct {
	Index int
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
