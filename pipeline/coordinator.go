// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/backend"
	"github.com/bureau-foundation/bootsign/lib/clock"
	"github.com/bureau-foundation/bootsign/protocol"
	"github.com/bureau-foundation/bootsign/stage"
)

// ArtifactStore keeps finished artifacts and returns their URLs.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Prerequisite blocks until a shared dependency is ready.
type Prerequisite func(ctx context.Context) error

// HandlePrerequisite adapts a backend handle.
func HandlePrerequisite(handle *backend.Handle) Prerequisite {
	return func(ctx context.Context) error {
		_, err := handle.Await(ctx)
		return err
	}
}

// Outcome is a job's result: *Success or *Failure.
type Outcome interface {
	outcome()
}

// Success is a job that produced an artifact.
type Success struct {
	ArtifactName  string
	ArtifactURL   string
	ArtifactBytes []byte
}

// Failure is a job that stopped at Stage (-1 before any stage).
type Failure struct {
	Stage  int
	Reason string
	Err    error
}

func (*Success) outcome() {}
func (*Failure) outcome() {}

// Coordinator runs jobs through their topology.
type Coordinator struct {
	runner        *stage.Runner
	store         ArtifactStore
	topologies    map[string]*Topology
	prerequisites map[string]Prerequisite
	observer      StateObserver
	clock         clock.Clock
	logger        *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTopology adds or replaces a topology.
func WithTopology(topology *Topology) CoordinatorOption {
	return func(c *Coordinator) { c.topologies[topology.Name] = topology }
}

// WithPrerequisite registers a named prerequisite topologies may
// require.
func WithPrerequisite(name string, prerequisite Prerequisite) CoordinatorOption {
	return func(c *Coordinator) { c.prerequisites[name] = prerequisite }
}

// WithStateObserver sets a function told of every state change.
func WithStateObserver(observer StateObserver) CoordinatorOption {
	return func(c *Coordinator) { c.observer = observer }
}

// WithCoordinatorClock sets the clock job durations are measured
// with.
func WithCoordinatorClock(c clock.Clock) CoordinatorOption {
	return func(coordinator *Coordinator) { coordinator.clock = c }
}

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator returns a coordinator with the embedded topologies
// plus any given as options. Every topology is validated.
func NewCoordinator(runner *stage.Runner, store ArtifactStore, options ...CoordinatorOption) (*Coordinator, error) {
	topologies, err := Builtin()
	if err != nil {
		return nil, err
	}
	coordinator := &Coordinator{
		runner:        runner,
		store:         store,
		topologies:    topologies,
		prerequisites: map[string]Prerequisite{},
		clock:         clock.Real(),
	}
	for _, option := range options {
		option(coordinator)
	}
	if coordinator.logger == nil {
		coordinator.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var errs []error
	for _, name := range topologyNames(coordinator.topologies) {
		if err := coordinator.topologies[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return coordinator, nil
}

// Topology returns the named topology.
func (c *Coordinator) Topology(name string) (*Topology, bool) {
	topology, ok := c.topologies[name]
	return topology, ok
}

// NewJob validates submission and binds it to the topology its
// backend names.
func (c *Coordinator) NewJob(submission *protocol.Submission) (*Job, error) {
	if err := submission.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	name := string(submission.Parameters.Backend)
	topology, ok := c.topologies[name]
	if !ok {
		return nil, fmt.Errorf("no topology for backend %q (have %v)", name, topologyNames(c.topologies))
	}
	return newJob(submission, topology), nil
}

// Run executes job and emits its events to sink. It always emits
// exactly one terminal event, and returns the matching Outcome.
func (c *Coordinator) Run(ctx context.Context, job *Job, sink protocol.Sink) Outcome {
	emit := newEmitter(job.ID, sink)
	started := c.clock.Now()
	logger := c.logger.With("job_id", job.ID, "topology", job.Topology.Name)
	c.observe(job.ID, State{Phase: Idle})

	if len(job.Topology.Requires) > 0 {
		c.observe(job.ID, State{Phase: Loading})
		if err := c.awaitPrerequisites(ctx, job.Topology.Requires); err != nil {
			return c.fail(job, emit, logger, started, -1, err)
		}
	}

	stageJob := &stage.Job{
		ID:        job.ID,
		Inputs:    job.Inputs,
		Variables: job.Variables(),
		Log:       emit.log,
	}
	results := make([]*stage.Result, 0, len(job.Topology.Stages))
	defer func() {
		for _, result := range results {
			result.Close()
		}
	}()

	for index, spec := range job.Topology.Stages {
		c.observe(job.ID, State{Phase: Running, Stage: index})
		result, err := c.runner.Run(ctx, stageJob, index, spec, results)
		if err != nil {
			return c.fail(job, emit, logger, started, index, err)
		}
		results = append(results, result)
	}

	last := len(results) - 1
	name, data, err := job.Topology.pack(results[last])
	if err != nil {
		return c.fail(job, emit, logger, started, last, err)
	}
	url, err := c.store.Put(ctx, name, data)
	if err != nil {
		return c.fail(job, emit, logger, started, last, fmt.Errorf("storing artifact: %w", err))
	}

	emit.emit(protocol.Success(job.ID, url, name))
	c.observe(job.ID, State{Phase: Succeeded})
	logger.Info("job succeeded",
		"artifact", url,
		"artifact_bytes", len(data),
		"duration", c.clock.Now().Sub(started),
	)
	return &Success{ArtifactName: name, ArtifactURL: url, ArtifactBytes: data}
}

func (c *Coordinator) awaitPrerequisites(ctx context.Context, names []string) error {
	for _, name := range names {
		prerequisite, ok := c.prerequisites[name]
		if !ok {
			return &backend.InitializationError{Err: fmt.Errorf("prerequisite %q is not configured", name)}
		}
		if err := prerequisite(ctx); err != nil {
			var initErr *backend.InitializationError
			if errors.As(err, &initErr) {
				return err
			}
			return &backend.InitializationError{Err: fmt.Errorf("awaiting %s: %w", name, err)}
		}
	}
	return nil
}

func (c *Coordinator) fail(job *Job, emit *emitter, logger *slog.Logger, started time.Time, index int, err error) Outcome {
	reason := Reason(err)
	emit.emit(protocol.Failure(job.ID, index, reason))
	c.observe(job.ID, State{Phase: Failed, Stage: index})
	logger.Warn("job failed",
		"stage", index,
		"error", err,
		"duration", c.clock.Now().Sub(started),
	)
	return &Failure{Stage: index, Reason: reason, Err: err}
}

func (c *Coordinator) observe(jobID string, state State) {
	if c.observer != nil {
		c.observer(jobID, state)
	}
}

// pack turns the final stage result into the artifact.
func (t *Topology) pack(result *stage.Result) (string, []byte, error) {
	if t.Package == nil {
		return path.Base(result.OutputPath), result.Output, nil
	}
	archive, err := avb.PackZip([]avb.ZipEntry{{Name: t.Package.Entry, Data: result.Output}})
	if err != nil {
		return "", nil, fmt.Errorf("packaging artifact: %w", err)
	}
	return t.Package.Archive, archive, nil
}
