package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
)

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Outbox       publishedOutboxPurger
	DLQ          dlqPurger
	Metrics      *metrics.CronJobMetrics
	Retention    int
	DLQRetention int
}

type publishedOutboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = dlqRetentionDays
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		outbox:       params.Outbox,
		dlq:          params.DLQ,
		metrics:      params.Metrics,
		retention:    retention,
		dlqRetention: dlqRetention,
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	outbox       publishedOutboxPurger
	dlq          dlqPurger
	metrics      *metrics.CronJobMetrics
	retention    int
	dlqRetention int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges published outbox rows and old dead letters. Both deletes run
// even when one of them fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-time.Duration(j.retention) * 24 * time.Hour)
	dlqCutoff := now.Add(-time.Duration(j.dlqRetention) * 24 * time.Hour)

	var errs error
	published, err := j.outbox.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("outbox retention: %w", err))
	}
	deadLetters, err := j.dlq.DeleteBefore(ctx, dlqCutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("dlq retention: %w", err))
	}
	j.metrics.AddAffected(j.Name(), published+deadLetters)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"dlq_cutoff":       dlqCutoff,
		"rows_deleted":     published,
		"dlq_rows_deleted": deadLetters,
	})
	if errs != nil {
		return errs
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
