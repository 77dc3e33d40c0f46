package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	// Schedule names the cadence group in logs, e.g. "frequent" or "daily".
	Schedule string
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds each job run. Defaults to the interval.
	JobTimeout time.Duration
}

// Service runs one schedule's jobs every Interval, on whichever instance
// holds the schedule's lock. Jobs run in registry order; a failing or
// panicking job does not stop the ones after it.
type Service struct {
	schedule   string
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	case p.Registry == nil || len(p.Registry.Jobs()) == 0:
		return nil, errors.New("at least one job required")
	}
	s := &Service{
		schedule:   p.Schedule,
		logg:       p.Logger,
		registry:   p.Registry,
		lock:       p.Lock,
		metrics:    p.Metrics,
		interval:   p.Interval,
		jobTimeout: p.JobTimeout,
	}
	if s.schedule == "" {
		s.schedule = "default"
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = s.interval
	}
	return s, nil
}

// Run fires one cycle immediately and then one per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"schedule": s.schedule, "interval": s.interval.String()})
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron schedule stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs every job once if the lock can be taken. The returned error
// joins the failures of individual jobs.
func (s *Service) Tick(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		if reporter, ok := s.lock.(holderReporter); ok {
			if holder, err := reporter.Holder(ctx); err == nil && holder != "" {
				ctx = s.logg.WithField(ctx, "lock_holder", holder)
			}
		}
		s.logg.Info(ctx, "schedule held by another instance, skipping")
		return nil
	}
	defer func() {
		// release even when shutdown cancelled ctx mid-cycle
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	var failed []error
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			failed = append(failed, ctx.Err())
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errors.Join(failed...)
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			ctx = s.logg.WithField(ctx, "panic_stack", string(debug.Stack()))
		}
		took := time.Since(start)
		s.metrics.ObserveRun(job.Name(), took, err)
		ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
		if err != nil {
			s.logg.Error(ctx, "job failed", err)
			return
		}
		s.logg.Info(ctx, "job completed")
	}()
	return job.Run(jobCtx)
}
