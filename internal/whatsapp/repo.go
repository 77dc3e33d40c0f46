package whatsapp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

const interruptedSendError = "delivery interrupted before the outcome was recorded"

// ListFilter narrows the message log.
type ListFilter struct {
	Status      *enums.WhatsAppMessageStatus
	Kind        *enums.WhatsAppMessageKind
	CustomerID  *uuid.UUID
	BroadcastID *uuid.UUID
}

// Repository persists whatsapp_messages rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) CreateBatch(ctx context.Context, rows []models.WhatsAppMessage) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WhatsAppMessage, error) {
	var msg models.WhatsAppMessage
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.WhatsAppMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.WhatsAppMessage
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.WhatsAppMessage, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.WhatsAppMessage{}).Scopes(filterScope(filter)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.WhatsAppMessage
	err := r.db.WithContext(ctx).
		Scopes(filterScope(filter), params.Scope()).
		Order("created_at DESC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Claim moves a dispatchable message to sending. It reports false when
// another worker got there first or the message is no longer dispatchable.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WhatsAppMessage{}).
		Where("id = ? AND status IN ?", id, []enums.WhatsAppMessageStatus{enums.WhatsAppStatusQueued, enums.WhatsAppStatusRetrying}).
		Updates(map[string]any{
			"status":     enums.WhatsAppStatusSending,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sid string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WhatsAppMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.WhatsAppStatusSent,
			"provider_sid":    sid,
			"sent_at":         at,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      nil,
			"next_attempt_at": nil,
			"updated_at":      at,
		}).Error
}

// MarkAttemptFailed records a failed attempt. next is nil for a terminal failure.
func (r *Repository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, status enums.WhatsAppMessageStatus, lastErr string, next *time.Time, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WhatsAppMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": next,
			"updated_at":      at,
		}).Error
}

// DueForRetry returns retrying messages whose backoff has elapsed, oldest first.
func (r *Repository) DueForRetry(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&models.WhatsAppMessage{}).
		Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?", enums.WhatsAppStatusRetrying, now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}

// ReclaimStale settles messages left in sending since before cutoff, which
// happens when a worker dies between claim and settle. Each counts as a failed
// attempt: rows that still have budget become retrying and due at now, the
// rest fail. It returns how many rows were reclaimed.
func (r *Repository) ReclaimStale(ctx context.Context, cutoff, now time.Time, maxAttempts int) (int64, error) {
	var reclaimed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := func() *gorm.DB {
			return tx.Model(&models.WhatsAppMessage{}).
				Where("status = ? AND updated_at < ?", enums.WhatsAppStatusSending, cutoff)
		}
		exhausted := stale().
			Where("attempts + 1 >= ?", maxAttempts).
			Updates(map[string]any{
				"status":          enums.WhatsAppStatusFailed,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      interruptedSendError,
				"next_attempt_at": nil,
				"updated_at":      now,
			})
		if exhausted.Error != nil {
			return exhausted.Error
		}
		retrying := stale().
			Updates(map[string]any{
				"status":          enums.WhatsAppStatusRetrying,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      interruptedSendError,
				"next_attempt_at": now,
				"updated_at":      now,
			})
		if retrying.Error != nil {
			return retrying.Error
		}
		reclaimed = exhausted.RowsAffected + retrying.RowsAffected
		return nil
	})
	return reclaimed, err
}

// Requeue puts messages back to queued. resetAttempts gives a manual retry a
// fresh attempt budget.
func (r *Repository) Requeue(ctx context.Context, ids []uuid.UUID, resetAttempts bool, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]any{
		"status":          enums.WhatsAppStatusQueued,
		"next_attempt_at": nil,
		"updated_at":      now,
	}
	if resetAttempts {
		updates["attempts"] = 0
	}
	return r.db.WithContext(ctx).
		Model(&models.WhatsAppMessage{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

// DeleteFinishedBefore removes sent and failed messages last touched before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.WhatsAppMessageStatus{enums.WhatsAppStatusSent, enums.WhatsAppStatusFailed}, cutoff).
		Delete(&models.WhatsAppMessage{})
	return res.RowsAffected, res.Error
}

func filterScope(filter ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.Status != nil {
			db = db.Where("status = ?", *filter.Status)
		}
		if filter.Kind != nil {
			db = db.Where("kind = ?", *filter.Kind)
		}
		if filter.CustomerID != nil {
			db = db.Where("customer_id = ?", *filter.CustomerID)
		}
		if filter.BroadcastID != nil {
			db = db.Where("broadcast_id = ?", *filter.BroadcastID)
		}
		return db
	}
}
