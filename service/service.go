// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/backend"
	"github.com/bureau-foundation/bootsign/lib/artifactstore"
	"github.com/bureau-foundation/bootsign/lib/clock"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/lib/sealed"
	"github.com/bureau-foundation/bootsign/pipeline"
	"github.com/bureau-foundation/bootsign/protocol"
	"github.com/bureau-foundation/bootsign/sandbox"
	"github.com/bureau-foundation/bootsign/stage"
)

// Service is an assembled signing service.
type Service struct {
	Config      *config.Config
	Registry    *sandbox.Registry
	Backend     *backend.Handle
	Store       *artifactstore.Store
	Coordinator *pipeline.Coordinator
	Pool        *pipeline.Pool
	Events      *protocol.EventLog

	identity *sealed.Identity
	logger   *slog.Logger
}

type options struct {
	logger     *slog.Logger
	clock      clock.Clock
	signer     avb.Signer
	resources  stage.Resources
	topologies []*pipeline.Topology
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for stage timeouts and job and
// initialization durations.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSigner replaces the avbtool command signer.
func WithSigner(signer avb.Signer) Option {
	return func(o *options) { o.signer = signer }
}

// WithResources puts resources ahead of the configured resource
// directory.
func WithResources(resources stage.Resources) Option {
	return func(o *options) { o.resources = resources }
}

// WithTopology adds or replaces a pipeline topology.
func WithTopology(topology *pipeline.Topology) Option {
	return func(o *options) { o.topologies = append(o.topologies, topology) }
}

// New validates cfg and assembles the service. The interpreted backend
// is not initialized until a job needs it or Warm is called.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	timeout, err := cfg.StageTimeout()
	if err != nil {
		return nil, err
	}

	service := &Service{Config: cfg, logger: logger}
	success := false
	defer func() {
		if !success {
			service.Close(context.Background())
		}
	}()

	if cfg.Signing.IdentityFile != "" {
		service.identity, err = sealed.ReadIdentity(cfg.Signing.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("reading identity: %w", err)
		}
	}

	registryOptions := []sandbox.RegistryOption{
		sandbox.WithLogger(logger.With("component", "sandbox")),
		sandbox.WithModuleDirectory(cfg.Paths.Modules),
	}
	if cfg.Sandbox.Bwrap {
		var profile *sandbox.Profile
		if cfg.Sandbox.Profile != "" {
			profile, err = sandbox.LoadProfile(cfg.Sandbox.Profile)
			if err != nil {
				return nil, err
			}
		}
		registryOptions = append(registryOptions, sandbox.WithBwrap(cfg.Sandbox.BwrapPath, profile))
	}
	service.Registry = sandbox.NewRegistry(registryOptions...)
	if err := avb.RegisterModules(service.Registry); err != nil {
		return nil, err
	}

	service.Backend = backend.NewHandle(backend.ConfigInitializer(cfg, o.signer),
		backend.WithClock(o.clock),
		backend.WithLogger(logger.With("component", "backend")))
	if err := backend.RegisterModule(service.Registry, service.Backend); err != nil {
		return nil, err
	}

	resources := chainResources{}
	if o.resources != nil {
		resources = append(resources, o.resources)
	}
	keys := map[string]string{}
	if cfg.Signing.SprdKey != "" {
		keys[avb.SprdKeyName] = cfg.Signing.SprdKey
	}
	resources = append(resources, &keyResources{
		files:    keys,
		identity: service.identity,
		fallback: &stage.DirResources{Dir: cfg.Paths.Resources, Identity: service.identity},
	})

	runner := stage.NewRunner(service.Registry,
		stage.WithClock(o.clock),
		stage.WithTimeout(timeout),
		stage.WithResources(resources),
		stage.WithLogger(logger.With("component", "stage")),
	)

	service.Store, err = artifactstore.New(cfg.Paths.Artifacts,
		artifactstore.WithLogger(logger.With("component", "artifacts")))
	if err != nil {
		return nil, err
	}

	coordinatorOptions := []pipeline.CoordinatorOption{
		pipeline.WithPrerequisite("backend", pipeline.HandlePrerequisite(service.Backend)),
		pipeline.WithCoordinatorClock(o.clock),
		pipeline.WithCoordinatorLogger(logger.With("component", "pipeline")),
		pipeline.WithStateObserver(func(jobID string, state pipeline.State) {
			logger.Debug("job state", "job_id", jobID, "state", state.String())
		}),
	}
	for _, topology := range o.topologies {
		coordinatorOptions = append(coordinatorOptions, pipeline.WithTopology(topology))
	}
	service.Coordinator, err = pipeline.NewCoordinator(runner, service.Store, coordinatorOptions...)
	if err != nil {
		return nil, err
	}

	service.Pool = pipeline.NewPool(service.Coordinator,
		pipeline.WithWorkers(cfg.Daemon.Workers),
		pipeline.WithQueueSize(cfg.Daemon.QueueSize),
		pipeline.WithLogger(logger.With("component", "pool")),
	)

	if cfg.Daemon.EventLog != "" {
		service.Events, err = protocol.OpenEventLog(cfg.Daemon.EventLog, logger)
		if err != nil {
			return nil, err
		}
	}

	success = true
	return service, nil
}

// Warm starts interpreted backend initialization in the background.
func (s *Service) Warm() {
	s.Backend.Start()
}

// Server returns the job socket server for the service.
func (s *Service) Server() *protocol.Server {
	return protocol.NewServer(s.Config.Daemon.SocketPath, s.Pool,
		protocol.WithFetcher(s.Store),
		protocol.WithEventLog(s.Events),
		protocol.WithServerLogger(s.logger.With("component", "server")),
	)
}

// Sign runs one submission to completion on the calling goroutine,
// bypassing the pool.
func (s *Service) Sign(ctx context.Context, submission *protocol.Submission, sink protocol.Sink) (pipeline.Outcome, error) {
	job, err := s.Coordinator.NewJob(submission)
	if err != nil {
		return nil, err
	}
	return s.Coordinator.Run(ctx, job, s.Events.Wrap(sinkOrDiscard(sink))), nil
}

// Close drains the pool and releases the registry, event log and
// identity.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.Registry != nil {
		errs = append(errs, s.Registry.Close(ctx))
	}
	errs = append(errs, s.Events.Close())
	if s.identity != nil {
		errs = append(errs, s.identity.Close())
	}
	return errors.Join(errs...)
}

func sinkOrDiscard(sink protocol.Sink) protocol.Sink {
	if sink == nil {
		return protocol.SinkFunc(func(protocol.Event) {})
	}
	return sink
}
