// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
)

// ErrUnknownModule is wrapped by a ModuleLoadError when a reference
// names no builtin and no module file.
var ErrUnknownModule = errors.New("unknown module")

// ErrContextClosed is returned by CallMain on a closed Context.
var ErrContextClosed = errors.New("execution context closed")

// ModuleLoadError reports that a module reference could not be
// resolved, read, or compiled.
type ModuleLoadError struct {
	Module string
	Err    error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("loading module %s: %v", e.Module, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

// ModuleInitError reports that a loaded module could not produce a
// ready instance: its setup failed, it has no entry point, or the
// automatic first run failed.
type ModuleInitError struct {
	Module string
	Err    error
}

func (e *ModuleInitError) Error() string {
	return fmt.Sprintf("initializing module %s: %v", e.Module, e.Err)
}

func (e *ModuleInitError) Unwrap() error { return e.Err }

// EntryPointError reports a failed entry point invocation. ExitCode is
// the module's exit status, or 1 when the module failed without one.
type EntryPointError struct {
	Module   string
	ExitCode int
	Err      error
}

func (e *EntryPointError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("module %s exited with code %d", e.Module, e.ExitCode)
	}
	return fmt.Sprintf("module %s exited with code %d: %v", e.Module, e.ExitCode, e.Err)
}

func (e *EntryPointError) Unwrap() error { return e.Err }

// ExitStatus is returned by a module that exits with a specific code.
type ExitStatus struct {
	Code int
}

func (e *ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the status code.
func (e *ExitStatus) ExitCode() int { return e.Code }

// exitCode extracts an exit status from err. *exec.ExitError and
// *ExitStatus both carry one; anything else counts as 1.
func exitCode(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if code := coded.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
