package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
)

const (
	defaultRetrySweepLimit  = 500
	defaultMessageRetention = 90 * 24 * time.Hour
	whatsAppRetryJobName    = "whatsapp-retry"
	whatsAppCleanupJobName  = "whatsapp-cleanup"
)

type retryRequeuer interface {
	RequeueDue(ctx context.Context, limit int) (int, error)
}

type WhatsAppRetryJobParams struct {
	Logger   *logger.Logger
	Messages retryRequeuer
	Metrics  *metrics.CronJobMetrics
	Limit    int
}

func NewWhatsAppRetryJob(params WhatsAppRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Messages == nil {
		return nil, fmt.Errorf("whatsapp service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRetrySweepLimit
	}
	return &whatsAppRetryJob{
		logg:     params.Logger,
		messages: params.Messages,
		metrics:  params.Metrics,
		limit:    limit,
	}, nil
}

type whatsAppRetryJob struct {
	logg     *logger.Logger
	messages retryRequeuer
	metrics  *metrics.CronJobMetrics
	limit    int
}

func (j *whatsAppRetryJob) Name() string { return whatsAppRetryJobName }

func (j *whatsAppRetryJob) Run(ctx context.Context) error {
	requeued, err := j.messages.RequeueDue(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("requeue due messages: %w", err)
	}
	j.metrics.AddAffected(j.Name(), int64(requeued))
	if requeued > 0 {
		j.logg.Info(j.logg.WithField(ctx, "requeued", requeued), "due whatsapp messages requeued")
	}
	return nil
}

type finishedMessagePurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type WhatsAppCleanupJobParams struct {
	Logger     *logger.Logger
	Repository finishedMessagePurger
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
}

func NewWhatsAppCleanupJob(params WhatsAppCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("whatsapp repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultMessageRetention
	}
	return &whatsAppCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

type whatsAppCleanupJob struct {
	logg      *logger.Logger
	repo      finishedMessagePurger
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *whatsAppCleanupJob) Name() string { return whatsAppCleanupJobName }

func (j *whatsAppCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("whatsapp cleanup: %w", err)
	}
	j.metrics.AddAffected(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "whatsapp message cleanup complete")
	return nil
}
