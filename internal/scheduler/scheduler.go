// Package scheduler runs digest jobs on a cron schedule with fixed-delay
// retries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/retry"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

// Config controls when jobs run and how failures are retried
type Config struct {
	// Spec is a standard 5-field cron expression or a descriptor such as
	// "@every 24h"
	Spec       string
	RetryDelay time.Duration
	MaxRetries int
	// RunNow runs every job once when the scheduler starts
	RunNow   bool
	Location *time.Location
}

// DefaultConfig runs daily and retries three times a minute apart
func DefaultConfig() Config {
	return Config{Spec: "@every 24h", RetryDelay: time.Minute, MaxRetries: 3, RunNow: true}
}

// Scheduler runs named jobs. A job never overlaps with itself: a tick that
// arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron  *cron.Cron
	cfg   Config
	retry retry.Policy
	log   zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	wg        sync.WaitGroup
	executing sync.Map // job name -> start time
}

// New validates cfg.Spec and creates a stopped Scheduler
func New(cfg Config, log zerolog.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultConfig().Spec
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	cronLog := log.With().Str("component", "cron").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cron.PrintfLogger(&cronLog)),
		),
		cfg:     cfg,
		retry:   retry.Fixed(cfg.MaxRetries+1, cfg.RetryDelay),
		log:     log,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
	}, nil
}

// Add registers job under name
func (s *Scheduler) Add(name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	id, err := s.cron.AddFunc(s.cfg.Spec, func() { s.execute(name, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = job
	s.entries[name] = id
	return nil
}

// Start begins running jobs. Jobs receive a context that is cancelled by
// Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.log.Info().Str("spec", s.cfg.Spec).Int("jobs", len(s.jobs)).Msg("Scheduler started")
	for name, id := range s.entries {
		s.log.Info().Str("job", name).Time("next_run", s.cron.Entry(id).Next).Msg("Job scheduled")
	}

	if s.cfg.RunNow {
		for name, job := range s.jobs {
			go s.execute(name, job)
		}
	}
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// execute runs job unless a previous run is still in progress
func (s *Scheduler) execute(name string, job Job) {
	if _, busy := s.executing.LoadOrStore(name, time.Now()); busy {
		s.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		return
	}
	defer s.executing.Delete(name)

	s.mu.Lock()
	ctx := s.ctx
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if err := s.RunWithRetry(ctx, name, job); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Job failed after retries, waiting for next run")
	}
}

// RunWithRetry runs job, retrying with a fixed delay up to MaxRetries times
func (s *Scheduler) RunWithRetry(ctx context.Context, name string, job Job) error {
	attempt := 0
	start := time.Now()
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := job(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("job", name).Int("attempt", attempt).Int("max_attempts", s.retry.MaxAttempts).Msg("Job attempt failed")
		}
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", name).Int("attempts", attempt).Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}
