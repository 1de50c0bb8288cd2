// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/bootsign/lib/clock"
	"github.com/bureau-foundation/bootsign/sandbox"
	"github.com/bureau-foundation/bootsign/vfs"
)

// Job is the per-job state a stage runs against.
type Job struct {
	ID     string
	Inputs map[string][]byte

	// Variables are substituted for ${name} in stage specs.
	Variables map[string]string

	// Log receives every line the stage writes to stdout or stderr,
	// prefixed with "[stage-name] ". It is not called after Run
	// returns.
	Log func(line string)
}

// Result is the outcome of a successful stage.
type Result struct {
	StageIndex int
	Name       string

	// Output is a private copy of the expected output file.
	Output []byte

	// OutputPath is the absolute path Output was read from.
	OutputPath string

	LogLines []string

	// Namespace is the stage's filesystem, mountable by later stages.
	Namespace *vfs.Namespace

	execution *sandbox.Context
}

// Close releases the stage's execution context. The namespace stays
// readable.
func (r *Result) Close() error {
	if r == nil || r.execution == nil {
		return nil
	}
	return r.execution.Close()
}

// Runner executes stages against a module registry.
type Runner struct {
	registry  *sandbox.Registry
	clock     clock.Clock
	timeout   time.Duration
	resources Resources
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock stage timeouts are measured on.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithTimeout bounds each stage invocation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.timeout = timeout }
}

// WithResources sets the provider for resource mounts.
func WithResources(resources Resources) Option {
	return func(r *Runner) { r.resources = resources }
}

// WithLogger sets the logger for stage lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner returns a Runner loading modules from registry.
func NewRunner(registry *sandbox.Registry, options ...Option) *Runner {
	runner := &Runner{
		registry:  registry,
		clock:     clock.Real(),
		resources: MapResources{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(runner)
	}
	if runner.logger == nil {
		runner.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return runner
}

// Run executes stage index of job. prior holds the results of stages
// 0 to index-1. Every error is a *StageError.
func (r *Runner) Run(ctx context.Context, job *Job, index int, spec Spec, prior []*Result) (*Result, error) {
	result, err := r.run(ctx, job, index, spec, prior)
	if err != nil {
		return nil, &StageError{Index: index, Name: spec.Name, Err: err}
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, job *Job, index int, spec Spec, prior []*Result) (*Result, error) {
	expanded, err := ExpandSpec(spec, job.Variables)
	if err != nil {
		return nil, err
	}
	if err := expanded.Validate(index); err != nil {
		return nil, err
	}

	logs := &logSink{prefix: "[" + spec.Name + "] ", forward: job.Log}
	defer logs.seal()

	started := r.clock.Now()
	execution, err := r.registry.Instantiate(ctx, expanded.Module, sandbox.Options{
		ID:               fmt.Sprintf("%s/%d-%s", job.ID, index, spec.Name),
		NoAutoRun:        true,
		WorkingDirectory: expanded.WorkingDirectory,
		OnStdout:         logs.line,
		OnStderr:         logs.line,
	})
	if err != nil {
		return nil, err
	}
	keep := false
	defer func() {
		if !keep {
			execution.Close()
		}
	}()

	if err := r.bindInputs(ctx, job, index, expanded.Inputs, execution.FS(), prior); err != nil {
		return nil, err
	}

	r.logger.Debug("running stage",
		"job_id", job.ID,
		"stage", spec.Name,
		"index", index,
		"module", expanded.Module,
	)
	if err := r.call(ctx, index, execution, expanded.Args); err != nil {
		return nil, err
	}

	ns := execution.FS()
	outputPath := ns.Abs(expanded.ExpectedOutput)
	info, err := ns.Stat(outputPath)
	if err != nil || info.IsDir {
		return nil, &MissingOutputError{StageIndex: index, Path: outputPath}
	}
	output, err := ns.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading output %s: %w", outputPath, err)
	}

	r.logger.Debug("stage finished",
		"job_id", job.ID,
		"stage", spec.Name,
		"output_bytes", len(output),
		"duration", r.clock.Now().Sub(started),
	)
	keep = true
	return &Result{
		StageIndex: index,
		Name:       spec.Name,
		Output:     output,
		OutputPath: outputPath,
		LogLines:   logs.lines(),
		Namespace:  ns,
		execution:  execution,
	}, nil
}

// call runs the entry point, bounded by the runner timeout and ctx.
// On timeout the context is closed and the call's eventual result is
// discarded.
func (r *Runner) call(ctx context.Context, index int, execution *sandbox.Context, args []string) error {
	done := make(chan error, 1)
	go func() { done <- execution.CallMain(ctx, args) }()

	var expired <-chan struct{}
	if r.timeout > 0 {
		timedOut := make(chan struct{})
		timer := r.clock.AfterFunc(r.timeout, func() { close(timedOut) })
		defer timer.Stop()
		expired = timedOut
	}

	select {
	case err := <-done:
		return err
	case <-expired:
		execution.Close()
		return &TimeoutError{StageIndex: index, After: r.timeout}
	case <-ctx.Done():
		execution.Close()
		return ctx.Err()
	}
}

// bindInputs populates ns from the stage's input mounts.
func (r *Runner) bindInputs(ctx context.Context, job *Job, index int, inputs []Mount, ns *vfs.Namespace, prior []*Result) error {
	resourceDirs := map[string][]Mount{}
	for _, input := range inputs {
		switch input.Source {
		case SourceJob:
			data, ok := job.Inputs[input.Name]
			if !ok {
				return fmt.Errorf("job has no input %q", input.Name)
			}
			if err := ns.WriteFile(input.Path, data); err != nil {
				return fmt.Errorf("writing input %s: %w", input.Name, err)
			}

		case SourceResource:
			point := ns.Abs(input.Path)
			resourceDirs[point] = append(resourceDirs[point], input)

		case SourceStage:
			if input.Stage >= len(prior) || prior[input.Stage] == nil {
				return fmt.Errorf("stage %d has no result to mount", input.Stage)
			}
			root := input.Root
			if root == "" {
				root = "/"
			}
			if err := vfs.Mount(prior[input.Stage].Namespace, ns, root, input.Path, input.mode()); err != nil {
				return err
			}
		}
	}

	points := make([]string, 0, len(resourceDirs))
	for point := range resourceDirs {
		points = append(points, point)
	}
	sort.Strings(points)
	for _, point := range points {
		resourceNamespace := vfs.NewNamespace(fmt.Sprintf("%s/%d-resources%s", job.ID, index, point))
		for _, input := range resourceDirs[point] {
			data, err := r.resources.Resource(ctx, input.Name)
			if err != nil {
				return err
			}
			if err := resourceNamespace.WriteFile(path.Join("/", input.Name), data); err != nil {
				return err
			}
		}
		if err := vfs.Mount(resourceNamespace, ns, "/", point, vfs.ReadOnly); err != nil {
			return err
		}
	}
	return nil
}

// logSink tags and records module output lines, and stops forwarding
// once sealed.
type logSink struct {
	prefix  string
	forward func(string)

	mu       sync.Mutex
	sealed   bool
	recorded []string
}

func (s *logSink) line(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	tagged := s.prefix + text
	s.recorded = append(s.recorded, tagged)
	if s.forward != nil {
		s.forward(tagged)
	}
}

func (s *logSink) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

func (s *logSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recorded...)
}
