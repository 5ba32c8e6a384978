// Package scheduler runs a task periodically on a gocron scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is the unit of work the scheduler runs.
type Task func(ctx context.Context) error

// Config holds the configuration for the Scheduler.
// Exactly one of Every and Cron must be set.
type Config struct {
	Logger *slog.Logger
	Task   Task
	Name   string
	// Every runs the task at a fixed interval, starting immediately.
	Every time.Duration
	// Cron runs the task on a cron expression evaluated in UTC.
	Cron string
	// Timeout bounds a single run (defaults to 5 minutes).
	Timeout time.Duration
}

// Scheduler wraps a gocron scheduler with a single job.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	task      Task
	name      string
	every     time.Duration
	cron      string
	timeout   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	runs   int
	fails  int
}

// New creates a new Scheduler.
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("scheduler config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Task == nil {
		return nil, errors.New("task cannot be nil")
	}
	if (cfg.Every > 0) == (cfg.Cron != "") {
		return nil, errors.New("exactly one of interval or cron expression must be set")
	}

	name := cfg.Name
	if name == "" {
		name = "task"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		logger:    cfg.Logger.With("job", name),
		task:      cfg.Task,
		name:      name,
		every:     cfg.Every,
		cron:      cfg.Cron,
		timeout:   timeout,
	}, nil
}

// Start schedules the job and starts the scheduler in the background.
// Runs are canceled when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var job *gocron.Scheduler
	if s.cron != "" {
		job = s.scheduler.Cron(s.cron)
	} else {
		job = s.scheduler.Every(s.every)
	}

	if _, err := job.Tag(s.name).Do(s.run, ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "every", s.every, "cron", s.cron)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("scheduled run starting")
	err := s.task(ctx)

	s.mu.Lock()
	s.runs++
	if err != nil {
		s.fails++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run completed", "duration", time.Since(start))
}

// Runs returns how many runs finished and how many of them failed.
func (s *Scheduler) Runs() (total, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.fails
}

// Stop cancels the running task, if any, and stops future runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}
