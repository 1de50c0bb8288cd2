// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/bootsign/vfs"
)

// Context is one isolated execution context: a module instance, its
// namespace, and its output channels.
type Context struct {
	module   string
	instance Instance
	fs       *vfs.Namespace
	stdout   *lineWriter
	stderr   *lineWriter

	// lifetime is cancelled by Close so in-flight runs observe it.
	lifetime context.Context
	cancel   context.CancelFunc

	// calls serializes entry point runs.
	calls sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newContext(module string, instance Instance, ns *vfs.Namespace, options Options) *Context {
	lifetime, cancel := context.WithCancel(context.Background())
	return &Context{
		module:   module,
		instance: instance,
		fs:       ns,
		stdout:   newLineWriter(options.OnStdout),
		stderr:   newLineWriter(options.OnStderr),
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// Module returns the name of the module the context runs.
func (c *Context) Module() string { return c.module }

// FS returns the context's namespace.
func (c *Context) FS() *vfs.Namespace { return c.fs }

// CallMain runs the module entry point with args (excluding the
// program name). A failed run returns *EntryPointError. Runs on the
// same context are serialized.
func (c *Context) CallMain(ctx context.Context, args []string) error {
	if c.lifetime.Err() != nil {
		return ErrContextClosed
	}

	c.calls.Lock()
	defer c.calls.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.lifetime, cancel)
	defer stop()

	err := c.instance.Main(runCtx, &Invocation{
		Args:   append([]string(nil), args...),
		FS:     c.fs,
		Stdout: c.stdout,
		Stderr: c.stderr,
	})
	c.stdout.Flush()
	c.stderr.Flush()

	if err == nil {
		return nil
	}
	if c.lifetime.Err() != nil {
		return fmt.Errorf("module %s: %w", c.module, ErrContextClosed)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &EntryPointError{Module: c.module, ExitCode: exitCode(err), Err: ctxErr}
	}
	return &EntryPointError{Module: c.module, ExitCode: exitCode(err), Err: err}
}

// Close tears down the context. It is idempotent and does not wait for
// an in-flight CallMain, which observes cancellation.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.instance.Close(context.Background())
	})
	return c.closeErr
}
