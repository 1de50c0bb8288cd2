// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"

	"github.com/bureau-foundation/bootsign/backend"
	"github.com/bureau-foundation/bootsign/sandbox"
	"github.com/bureau-foundation/bootsign/stage"
	"github.com/bureau-foundation/bootsign/vfs"
)

// ErrorName returns the failure taxonomy name for err. The most
// specific cause wins: a backend initialization failure inside a
// module init error is an InitializationError.
func ErrorName(err error) string {
	var (
		initialization *backend.InitializationError
		timeout        *stage.TimeoutError
		missingOutput  *stage.MissingOutputError
		moduleLoad     *sandbox.ModuleLoadError
		moduleInit     *sandbox.ModuleInitError
		entryPoint     *sandbox.EntryPointError
	)
	switch {
	case errors.As(err, &initialization):
		return "InitializationError"
	case errors.As(err, &timeout):
		return "Timeout"
	case errors.As(err, &missingOutput):
		return "MissingOutputError"
	case errors.As(err, &moduleLoad):
		return "ModuleLoadError"
	case errors.As(err, &moduleInit):
		return "ModuleInitError"
	case errors.As(err, &entryPoint):
		return "EntryPointError"
	case errors.Is(err, vfs.ErrMountConflict):
		return "MountConflict"
	case errors.Is(err, vfs.ErrPathNotFound):
		return "PathNotFound"
	default:
		return "Error"
	}
}

// Reason formats err for an error event as "<Name>: <message>". The
// stage position is carried by the event, so a StageError's own prefix
// is left out.
func Reason(err error) string {
	message := err.Error()
	var stageErr *stage.StageError
	if errors.As(err, &stageErr) {
		message = stageErr.Err.Error()
	}
	return ErrorName(err) + ": " + message
}
