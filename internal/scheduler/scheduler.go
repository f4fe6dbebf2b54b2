// Package scheduler runs recurring scan sweeps on cron expressions, used
// by watch mode to re-scan a target set on an interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/scanweave/scanweave/internal/logging"
)

// SweepFunc executes one scheduled sweep.
type SweepFunc func(ctx context.Context)

// Scheduler wraps a cron runner and serializes sweeps: a tick that fires
// while the previous sweep is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	log     *logging.Logger
	mu      sync.Mutex
	running bool
}

// New creates a scheduler bound to ctx. Sweeps receive ctx and should stop
// promptly when it is canceled.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		ctx:  ctx,
		log:  logging.Default().WithComponent("scheduler"),
	}
}

// Add registers a sweep under the given cron expression. Standard five-field
// expressions and descriptors like "@every 10m" are accepted.
func (s *Scheduler) Add(spec string, name string, fn SweepFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.running {
			s.mu.Unlock()
			s.log.Warn("Skipping sweep, previous run still in progress", "sweep", name)
			return
		}
		s.running = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		s.log.Info("Starting scheduled sweep", "sweep", name, "schedule", spec)
		fn(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop stops firing schedules and waits for an in-progress sweep to return.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("Scheduler stopped")
}
