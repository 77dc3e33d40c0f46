package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
	"github.com/angelmondragon/groceryhub-backend/pkg/twilio"
)

const maxErrorLength = 1000

// DispatcherParams bundles the dependencies required to deliver queued messages.
type DispatcherParams struct {
	Repo    *Repository
	Sender  twilio.Sender
	Config  config.WhatsAppConfig
	Metrics *metrics.WhatsAppMetrics
	Logger  *logger.Logger
}

// Dispatcher delivers queued messages through the provider, one at a time
// with a randomized pause between sends.
type Dispatcher struct {
	repo    *Repository
	sender  twilio.Sender
	cfg     config.WhatsAppConfig
	metrics *metrics.WhatsAppMetrics
	logg    *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(minMS, maxMS int) time.Duration
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("whatsapp repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("whatsapp sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		repo:    params.Repo,
		sender:  params.Sender,
		cfg:     cfg,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
		sleep:   sleepContext,
		jitter:  randomDelay,
	}, nil
}

// DispatchChunk attempts every message in ids. Provider failures are recorded
// on the message; only storage errors are returned.
func (d *Dispatcher) DispatchChunk(ctx context.Context, ids []uuid.UUID) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.dispatchOne(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", id, err))
		}
	}
	return multierr.Combine(errs...)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, id uuid.UUID) error {
	logCtx := d.logg.WithField(ctx, "message_id", id.String())

	msg, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			d.logg.Warn(logCtx, "whatsapp message vanished before dispatch")
			return nil
		}
		return err
	}
	if !msg.Status.Dispatchable() {
		d.logg.Info(d.logg.WithField(logCtx, "status", string(msg.Status)), "whatsapp message not dispatchable")
		return nil
	}

	if err := d.sleep(ctx, d.jitter(d.cfg.MinDelayMS, d.cfg.MaxDelayMS)); err != nil {
		return err
	}

	claimed, err := d.repo.Claim(ctx, id, d.now().UTC())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	started := d.now()
	sid, sendErr := d.sender.Send(sendCtx, twilio.Message{
		To:       msg.ToNumber,
		Body:     msg.Body,
		MediaURL: derefString(msg.MediaURL),
	})
	cancel()
	took := d.now().Sub(started)

	// The outcome is recorded even when ctx ended mid-send; otherwise the
	// row would stay in sending.
	settleCtx := context.WithoutCancel(logCtx)
	now := d.now().UTC()
	if sendErr == nil {
		d.metrics.ObserveSend(string(msg.Kind), string(enums.WhatsAppStatusSent), took)
		if err := d.repo.MarkSent(settleCtx, id, sid, now); err != nil {
			return err
		}
		d.logg.Info(d.logg.WithField(logCtx, "provider_sid", sid), "whatsapp.sent")
		return nil
	}

	if err := d.recordFailure(settleCtx, msg, sendErr, now, took); err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, msg *models.WhatsAppMessage, sendErr error, now time.Time, took time.Duration) error {
	attempts := msg.Attempts + 1
	status := enums.WhatsAppStatusFailed
	var next *time.Time
	if attempts < d.cfg.MaxAttempts {
		status = enums.WhatsAppStatusRetrying
		at := now.Add(d.cfg.RetryBackoff)
		next = &at
	}
	d.metrics.ObserveSend(string(msg.Kind), string(status), took)

	reason := sendErr.Error()
	if errors.Is(sendErr, context.DeadlineExceeded) {
		reason = "send timed out"
	}
	if len(reason) > maxErrorLength {
		reason = reason[:maxErrorLength]
	}
	if err := d.repo.MarkAttemptFailed(ctx, msg.ID, attempts, status, reason, next, now); err != nil {
		return err
	}
	d.logg.Error(d.logg.WithFields(ctx, map[string]any{
		"attempts": attempts,
		"status":   string(status),
	}), "whatsapp.send_failed", sendErr)
	return nil
}

func randomDelay(minMS, maxMS int) time.Duration {
	if maxMS <= minMS {
		return time.Duration(minMS) * time.Millisecond
	}
	return time.Duration(minMS+rand.IntN(maxMS-minMS+1)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
