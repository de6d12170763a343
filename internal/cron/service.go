package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/metrics"
	"github.com/autevo/filmtechos-backend/pkg/types"
)

const defaultInterval = time.Hour

var (
	// ErrUnknownJob is returned by Trigger for a name no job is registered under.
	ErrUnknownJob = errors.New("unknown cron job")
	// ErrLocked is returned by Trigger while another run holds the cron lock.
	ErrLocked = errors.New("cron run already in progress")
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service executes registered cron jobs on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes every registered job once immediately and then on each tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.runCycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	ctx = s.logg.WithField(ctx, "trigger", "schedule")
	err := s.withLock(ctx, func() {
		for _, job := range s.registry.Jobs() {
			_, _ = s.runJob(ctx, job)
		}
	})
	switch {
	case errors.Is(err, ErrLocked):
		s.logg.Info(ctx, "cron.cycle_skipped_locked")
	case err != nil:
		s.logg.Error(ctx, "cron.cycle_failed", err)
	}
}

// Trigger runs one job on demand under the shared lock. Sweep jobs return their report,
// including when some items failed.
func (s *Service) Trigger(ctx context.Context, name string) (*types.SweepReport, error) {
	job, ok := s.registry.Find(name)
	if !ok {
		return nil, ErrUnknownJob
	}
	var (
		report *types.SweepReport
		runErr error
	)
	if err := s.withLock(ctx, func() {
		report, runErr = s.runJob(s.logg.WithField(ctx, "trigger", "http"), job)
	}); err != nil {
		return nil, err
	}
	return report, runErr
}

func (s *Service) withLock(ctx context.Context, fn func()) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.IncLockContended()
		return ErrLocked
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()
	fn()
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) (*types.SweepReport, error) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	s.logg.Info(ctx, "cron.job_started")

	start := time.Now()
	var (
		report *types.SweepReport
		err    error
	)
	if sweeper, ok := job.(Sweeper); ok {
		report, err = sweeper.Sweep(ctx)
	} else {
		err = job.Run(ctx)
	}
	elapsed := time.Since(start)

	migrated := 0
	if report != nil {
		migrated = report.Migrated
	}
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.ObserveRun(job.Name(), metrics.OutcomeFailed, elapsed, migrated)
		s.logg.Error(ctx, "cron.job_failed", err)
		return report, err
	}
	s.metrics.ObserveRun(job.Name(), metrics.OutcomeSucceeded, elapsed, migrated)
	s.logg.Info(ctx, "cron.job_completed")
	return report, nil
}
