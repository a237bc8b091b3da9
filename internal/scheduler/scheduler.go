// Package scheduler runs backups on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// Scheduler triggers a job on a standard cron expression. Overlapping ticks
// are skipped while a run is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// New creates a scheduler that logs through logger.
func New(logger zerolog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Add registers job under spec.
func (s *Scheduler) Add(ctx context.Context, spec string, job Job) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info().Str("schedule", spec).Msg("scheduled run starting")
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled run failed")
			return
		}
		s.logger.Info().Msg("scheduled run completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule run: %w", err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done. Running jobs are
// waited for before it returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	for _, e := range s.cron.Entries() {
		s.logger.Info().Time("next", e.Next).Msg("scheduler started")
	}

	<-ctx.Done()
	s.Stop()
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("scheduler stopped")
}

// IsRunning reports whether the scheduler is started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
