package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type fakeRequeuer struct {
	limit int
	count int
	err   error
}

func (f *fakeRequeuer) RequeueDue(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.count, f.err
}

func TestWhatsAppRetryJobUsesDefaultLimit(t *testing.T) {
	requeuer := &fakeRequeuer{count: 3}
	job, err := NewWhatsAppRetryJob(WhatsAppRetryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Messages: requeuer,
	})
	if err != nil {
		t.Fatalf("NewWhatsAppRetryJob: %v", err)
	}
	if job.Name() != "whatsapp-retry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if requeuer.limit != defaultRetrySweepLimit {
		t.Fatalf("expected limit %d, got %d", defaultRetrySweepLimit, requeuer.limit)
	}

	requeuer.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected requeue error to propagate")
	}
}

func TestWhatsAppCleanupJobAppliesRetention(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakePurger{deleted: 40}
	jobIface, err := NewWhatsAppCleanupJob(WhatsAppCleanupJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Retention:  48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewWhatsAppCleanupJob: %v", err)
	}
	job := jobIface.(*whatsAppCleanupJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.lastCutoff)
	}

	if _, err := NewWhatsAppCleanupJob(WhatsAppCleanupJobParams{Logger: job.logg}); err == nil {
		t.Fatal("expected missing repository error")
	}
}
