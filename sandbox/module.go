// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"io"

	"github.com/bureau-foundation/bootsign/vfs"
)

// Module is a loaded unit of stage code that can produce any number of
// independent instances.
type Module interface {
	// Name identifies the module in errors and logs.
	Name() string

	// Instantiate prepares an instance bound to ns. Errors are
	// reported to callers as ModuleInitError.
	Instantiate(ctx context.Context, ns *vfs.Namespace) (Instance, error)
}

// Instance is one set-up copy of a module.
type Instance interface {
	// Main runs the entry point once. A non-nil error is a failed
	// run; errors carrying ExitCode() report that status.
	Main(ctx context.Context, invocation *Invocation) error

	// Close releases the instance. It must be safe to call while Main
	// is still running on a cancelled context.
	Close(ctx context.Context) error
}

// Invocation is the input to a single entry point run.
type Invocation struct {
	// Args excludes the program name.
	Args []string

	// FS is the context's namespace.
	FS *vfs.Namespace

	// Stdout and Stderr deliver output to the context's callbacks.
	Stdout io.Writer
	Stderr io.Writer
}

// MainFunc is the entry point of a builtin module.
type MainFunc func(ctx context.Context, invocation *Invocation) error

// Options configures a new Context.
type Options struct {
	// ID names the context's namespace. Defaults to the module name.
	ID string

	// NoAutoRun suppresses the implicit entry point run during
	// Instantiate.
	NoAutoRun bool

	// AutoRunArgs are passed to the implicit run.
	AutoRunArgs []string

	// OnStdout and OnStderr receive output one line at a time. They
	// are the only progress channel out of a context.
	OnStdout func(line string)
	OnStderr func(line string)

	// WorkingDirectory is the namespace directory relative paths
	// resolve against. Defaults to "/".
	WorkingDirectory string
}
