// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/bootsign/protocol"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is
	// taken.
	ErrQueueFull = errors.New("job queue is full")

	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("job pool is closed")

	// ErrDuplicateJob is returned by Submit while a job with the same
	// ID is queued or running.
	ErrDuplicateJob = errors.New("a job with this id is already in flight")
)

type task struct {
	job  *Job
	sink protocol.Sink
}

// Pool runs jobs on a fixed number of workers. Each worker runs one
// job at a time; stages within a job are sequential.
type Pool struct {
	coordinator *Coordinator
	logger      *slog.Logger
	workers     int
	queue       chan task

	wg sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inFlight map[string]struct{}

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent jobs.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many accepted jobs may wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.queue = make(chan task, n)
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool starts the workers.
func NewPool(coordinator *Coordinator, options ...PoolOption) *Pool {
	pool := &Pool{
		coordinator: coordinator,
		workers:     2,
		queue:       make(chan task, 16),
		inFlight:    make(map[string]struct{}),
	}
	for _, option := range options {
		option(pool)
	}
	if pool.logger == nil {
		pool.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for worker := range pool.workers {
		pool.wg.Add(1)
		go pool.work(worker + 1)
	}
	return pool
}

// Submit validates submission and queues it. Events go to sink from a
// worker goroutine.
func (p *Pool) Submit(submission *protocol.Submission, sink protocol.Sink) error {
	job, err := p.coordinator.NewJob(submission)
	if err != nil {
		return err
	}
	return p.SubmitJob(job, sink)
}

// SubmitJob queues job without blocking.
func (p *Pool) SubmitJob(job *Job, sink protocol.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.inFlight[job.ID]; ok {
		p.logger.Warn("job rejected, id in flight", "job_id", job.ID)
		return ErrDuplicateJob
	}
	select {
	case p.queue <- task{job: job, sink: sink}:
		p.inFlight[job.ID] = struct{}{}
		p.logger.Info("job queued", "job_id", job.ID, "topology", job.Topology.Name)
		return nil
	default:
		p.logger.Warn("job rejected, queue full", "job_id", job.ID)
		return ErrQueueFull
	}
}

func (p *Pool) work(worker int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.running.Add(1)
		outcome := p.coordinator.Run(context.Background(), task.job, task.sink)
		p.running.Add(-1)
		p.mu.Lock()
		delete(p.inFlight, task.job.ID)
		p.mu.Unlock()
		if _, ok := outcome.(*Success); ok {
			p.completed.Add(1)
		} else {
			p.failed.Add(1)
		}
		p.logger.Debug("job finished", "job_id", task.job.ID, "worker", worker)
	}
}

// Close stops accepting jobs and waits for queued and running jobs to
// finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Status returns current pool counters.
func (p *Pool) Status() protocol.Status {
	return protocol.Status{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Running:   int(p.running.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
