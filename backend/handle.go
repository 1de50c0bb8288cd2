// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/lib/clock"
)

// Environment is a ready interpreted backend.
type Environment struct {
	// Root is the host directory job directories are created under.
	Root string

	Signer avb.Signer

	// Files are copied into every job directory, keyed by file name:
	// the vbmeta signing keys and, when configured, the custom public
	// key.
	Files map[string][]byte
}

// Initializer prepares an Environment.
type Initializer func(ctx context.Context) (*Environment, error)

// InitializationError reports that the backend could not be prepared.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("interpreted backend initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// Handle is a single in-flight initialization whose result is cached.
type Handle struct {
	initialize Initializer
	logger     *slog.Logger
	clock      clock.Clock

	start sync.Once
	done  chan struct{}

	// Written before done is closed.
	environment *Environment
	err         error
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithClock sets the clock initialization time is measured with.
func WithClock(c clock.Clock) HandleOption {
	return func(h *Handle) { h.clock = c }
}

// WithLogger sets the logger for initialization progress.
func WithLogger(logger *slog.Logger) HandleOption {
	return func(h *Handle) { h.logger = logger }
}

// NewHandle returns a handle that runs initialize on first use.
func NewHandle(initialize Initializer, options ...HandleOption) *Handle {
	handle := &Handle{
		initialize: initialize,
		done:       make(chan struct{}),
		clock:      clock.Real(),
	}
	for _, option := range options {
		option(handle)
	}
	if handle.logger == nil {
		handle.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return handle
}

// Start begins initialization if it has not begun. It does not block.
func (h *Handle) Start() {
	h.start.Do(func() {
		go h.run()
	})
}

// run executes the initializer detached from any awaiter's context,
// so one job giving up does not fail initialization for the rest.
func (h *Handle) run() {
	defer close(h.done)
	started := h.clock.Now()
	h.logger.Info("initializing interpreted backend")

	environment, err := h.initialize(context.Background())
	if err == nil && environment == nil {
		err = fmt.Errorf("initializer returned no environment")
	}
	if err != nil {
		h.err = &InitializationError{Err: err}
		h.logger.Error("interpreted backend initialization failed",
			"error", err,
			"duration", h.clock.Now().Sub(started),
		)
		return
	}
	h.environment = environment
	h.logger.Info("interpreted backend ready",
		"root", environment.Root,
		"files", len(environment.Files),
		"duration", h.clock.Now().Sub(started),
	)
}

// Await starts initialization if needed and waits for its result or
// for ctx to end. A failed initialization returns the same
// *InitializationError to every caller.
func (h *Handle) Await(ctx context.Context) (*Environment, error) {
	h.Start()
	select {
	case <-h.done:
		return h.environment, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when initialization has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Ready reports whether initialization finished successfully.
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
		return h.err == nil
	default:
		return false
	}
}

var shared atomic.Pointer[Handle]

// Install makes handle the process-wide handle returned by Shared. The
// first installed handle wins; Install reports whether handle is it.
func Install(handle *Handle) bool {
	return shared.CompareAndSwap(nil, handle)
}

// Shared returns the process-wide handle, or nil if none is installed.
func Shared() *Handle { return shared.Load() }
