// Package workers provides the scan orchestrator for scanweave: a bounded
// worker pool that draws jobs from a shared queue, applies retry with
// exponential backoff on transient failures, and emits one terminal outcome
// per job. It integrates with the structured logging and metrics systems.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
	"github.com/scanweave/scanweave/internal/metrics"
	"github.com/scanweave/scanweave/internal/scanning"
)

// Config holds configuration for the orchestrator pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration
	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of job launches per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Size:              10,
		QueueSize:         256,
		RetryDelay:        2 * time.Second,
		BackoffMultiplier: 2.0,
		ShutdownTimeout:   30 * time.Second,
		RateLimit:         0,
	}
}

// sanitize fills in zero values so a partially specified config behaves.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.Size <= 0 {
		c.Size = def.Size
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// Pool manages a pool of worker goroutines executing scan jobs.
type Pool struct {
	config      Config
	runner      scanning.Runner
	jobs        chan *scanning.Job
	outcomes    chan scanning.Outcome
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	rateLimiter *time.Ticker
	startOnce   sync.Once

	// mu orders Submit against Shutdown's close of the jobs channel.
	mu       sync.RWMutex
	shutdown bool
}

// New creates an orchestrator pool bound to ctx. Cancelling ctx stops
// dispatch of new jobs, kills running subprocesses, and drains queued jobs
// as canceled outcomes.
func New(ctx context.Context, runner scanning.Runner, config Config) *Pool {
	config = config.sanitize()
	poolCtx, cancel := context.WithCancel(ctx)

	pool := &Pool{
		config:   config,
		runner:   runner,
		jobs:     make(chan *scanning.Job, config.QueueSize),
		outcomes: make(chan scanning.Outcome, config.QueueSize),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	if config.RateLimit > 0 {
		interval := time.Second / time.Duration(config.RateLimit)
		pool.rateLimiter = time.NewTicker(interval)
	}

	return pool
}

// Start begins the worker goroutines.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Info("Starting orchestrator",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
	})
}

// Submit adds a job to the queue, blocking while the queue is full. It
// fails once the pool is shut down; after cancellation the job is drained
// as a canceled outcome instead of executed. Submit is safe to call
// concurrently with Shutdown: Shutdown waits for in-flight submissions
// before closing the queue.
func (p *Pool) Submit(job *scanning.Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shutdown {
		return fmt.Errorf("orchestrator is shut down")
	}

	select {
	case p.jobs <- job:
		metrics.GetGlobalMetrics().SetQueuedJobs(len(p.jobs))
		logging.Debug("Job submitted",
			"job_id", job.ID.String(),
			"target", job.Host,
			"mode", job.Options.Mode.String())
		return nil
	case <-p.ctx.Done():
		// Cancellation still owes the caller one outcome per job.
		p.emit(scanning.CanceledOutcome(job))
		return nil
	}
}

// Outcomes returns the channel on which terminal job outcomes are emitted.
// Outcomes arrive as jobs complete, not in submission order.
func (p *Pool) Outcomes() <-chan scanning.Outcome {
	return p.outcomes
}

// Cancel requests cooperative cancellation: no new dispatches, best-effort
// kill of running subprocesses, queued jobs drained as canceled.
func (p *Pool) Cancel() {
	p.cancel()
}

// Shutdown closes the queue, waits for in-flight work up to the shutdown
// timeout, and closes the outcomes channel.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Orchestrator shutdown timeout, cancelling in-flight jobs")
		p.cancel()
		<-done
	}

	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}
	p.cancel()
	close(p.outcomes)

	logging.Info("Orchestrator shutdown completed")
	return nil
}

// run is the worker loop: pull a job, execute it (or drain it as canceled
// after cancellation), emit exactly one terminal outcome.
func (p *Pool) run(id int) {
	defer p.wg.Done()

	logging.Debug("Worker started", "worker_id", id)
	defer logging.Debug("Worker stopped", "worker_id", id)

	for job := range p.jobs {
		metrics.GetGlobalMetrics().SetQueuedJobs(len(p.jobs))

		if p.ctx.Err() != nil {
			p.emit(scanning.CanceledOutcome(job))
			continue
		}

		p.executeJob(id, job)
	}
}

// executeJob runs a job with retry and backoff. Transient failures are
// retried up to the job's budget; exhaustion converts the last transient
// failure into a terminal retries-exhausted outcome.
func (p *Pool) executeJob(workerID int, job *scanning.Job) {
	metrics.GetGlobalMetrics().AddActiveWorkers(1)
	defer metrics.GetGlobalMetrics().AddActiveWorkers(-1)

	if p.rateLimiter != nil {
		select {
		case <-p.rateLimiter.C:
		case <-p.ctx.Done():
			p.emit(scanning.CanceledOutcome(job))
			return
		}
	}

	delay := p.config.RetryDelay
	maxAttempts := job.MaxRetries + 1
	var lastTransient scanning.Outcome

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome := p.runner.Execute(p.ctx, job)
		outcome.Attempts = attempt

		if outcome.Status != scanning.StatusTransient {
			p.emit(outcome)
			logging.Debug("Job finished",
				"job_id", job.ID.String(),
				"target", job.Host,
				"status", string(outcome.Status),
				"attempts", attempt,
				"worker_id", workerID)
			return
		}

		lastTransient = outcome

		if attempt < maxAttempts {
			metrics.GetGlobalMetrics().IncrementJobRetries(job.Options.Mode.String())
			logging.Debug("Transient failure, retrying",
				"job_id", job.ID.String(),
				"target", job.Host,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", delay,
				"error", outcome.Err)

			select {
			case <-time.After(delay):
			case <-p.ctx.Done():
				p.emit(scanning.CanceledOutcome(job))
				return
			}
			delay = time.Duration(float64(delay) * p.config.BackoffMultiplier)
		}
	}

	exhausted := lastTransient
	exhausted.Status = scanning.StatusFatal
	exhausted.Attempts = maxAttempts
	exhausted.Err = scanerrors.ErrRetriesExhausted(job.Host, maxAttempts, lastTransient.Err)
	p.emit(exhausted)

	logging.ErrorScan("Job failed after exhausting retries", job.Host, exhausted.Err,
		"job_id", job.ID.String(),
		"attempts", maxAttempts)
}

// emit delivers one terminal outcome and records it.
func (p *Pool) emit(outcome scanning.Outcome) {
	metrics.GetGlobalMetrics().IncrementJobsTotal(outcome.Mode.String(), string(outcome.Status))
	p.outcomes <- outcome
}

// Run submits a finite batch of jobs to a fresh pool and returns the
// outcome stream, which closes after every job has a terminal outcome.
// Cancelling ctx stops dispatch and drains the remainder as canceled.
func Run(ctx context.Context, runner scanning.Runner, config Config, jobs []*scanning.Job) <-chan scanning.Outcome {
	pool := New(ctx, runner, config)
	pool.Start()

	go func() {
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				pool.emit(scanning.CanceledOutcome(job))
			}
		}
		_ = pool.Shutdown()
	}()

	return pool.Outcomes()
}
