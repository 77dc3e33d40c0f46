package priceupdates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

// HistoryFilter narrows the audit trail listing.
type HistoryFilter struct {
	ProductID  *uuid.UUID
	BatchID    *uuid.UUID
	ChangeType *enums.PriceChangeType
	From       *time.Time
	To         *time.Time
}

// Repository persists price update rows and the product price writes made by
// bulk updates.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, rows ...*models.PriceUpdate) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// List returns the newest rows first with the product preloaded.
func (r *Repository) List(ctx context.Context, filter HistoryFilter, params pagination.Params) ([]models.PriceUpdate, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.PriceUpdate{}).Scopes(historyScope(filter)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.PriceUpdate
	if err := r.db.WithContext(ctx).
		Scopes(historyScope(filter), params.Scope()).
		Preload("Product").
		Order("created_at DESC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func historyScope(filter HistoryFilter) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if filter.ProductID != nil {
			query = query.Where("product_id = ?", *filter.ProductID)
		}
		if filter.BatchID != nil {
			query = query.Where("batch_id = ?", *filter.BatchID)
		}
		if filter.ChangeType != nil {
			query = query.Where("change_type = ?", *filter.ChangeType)
		}
		if filter.From != nil {
			query = query.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("created_at < ?", *filter.To)
		}
		return query
	}
}

// LockProducts loads the products for a bulk update. On postgres the rows are
// locked FOR UPDATE until the surrounding transaction ends.
func (r *Repository) LockProducts(ctx context.Context, productIDs, categoryIDs []uuid.UUID) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	switch {
	case len(productIDs) > 0:
		query = query.Where("id IN ?", productIDs)
	case len(categoryIDs) > 0:
		query = query.Where("category_id IN ?", categoryIDs)
	default:
		return nil, nil
	}
	var rows []models.Product
	if err := query.Order("item_code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) UpdateProductPrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{"price": price, "updated_at": time.Now().UTC()}).Error
}
