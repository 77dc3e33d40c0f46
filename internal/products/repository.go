package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

// Repository wires together all product-related persistence helpers.
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

// FindByID loads the product with its category.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Preload("Category").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindForUpdate loads the product and, on postgres, locks the row until the
// transaction ends.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var product models.Product
	if err := query.First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ItemCodeTaken reports whether another product already uses code.
func (r *Repository) ItemCodeTaken(ctx context.Context, code string, exclude *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("item_code = ?", code)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error
}

// UpdateProduct writes every mutable column, including nulls.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(product).
		Omit(clause.Associations).
		Select("category_id", "item_code", "name", "description", "unit", "price",
			"discount_type", "discount_value", "discount_start_date", "discount_end_date",
			"stock", "image_url", "is_active").
		Updates(product).Error
}

// DeleteProduct removes a product by ID.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{}).Error
}

func (r *Repository) SetStock(ctx context.Context, id uuid.UUID, stock int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{"stock": stock, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) SetImageURL(ctx context.Context, id uuid.UUID, url *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{"image_url": url, "updated_at": time.Now().UTC()}).Error
}

// ListProducts returns one page of products matching query.
func (r *Repository) ListProducts(ctx context.Context, query listQuery, params pagination.Params) ([]models.Product, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Scopes(query.scope()).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Preload("Category").
		Scopes(query.scope(), query.Sort.scope(), params.Scope()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListActiveForCatalog returns active products ordered for price lists and
// the web order form, optionally restricted to a set of categories.
func (r *Repository) ListActiveForCatalog(ctx context.Context, categoryIDs []uuid.UUID) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Preload("Category").
		Joins("JOIN categories ON categories.id = products.category_id").
		Where("products.is_active = ?", true)
	if len(categoryIDs) > 0 {
		query = query.Where("products.category_id IN ?", categoryIDs)
	}
	var rows []models.Product
	err := query.
		Order("categories.sort_order ASC").
		Order("categories.name ASC").
		Order("products.name ASC").
		Find(&rows).Error
	return rows, err
}

// onDiscountClause matches rows whose discount is active on the bound date.
const onDiscountClause = `(products.discount_type <> ? AND products.discount_value IS NOT NULL AND products.discount_value > 0
AND (products.discount_start_date IS NULL OR products.discount_start_date <= ?)
AND (products.discount_end_date IS NULL OR products.discount_end_date >= ?))`

func onDiscountArgs(today time.Time) []any {
	return []any{enums.DiscountTypeNone, today, today}
}
