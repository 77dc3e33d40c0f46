package categories

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

// ListFilter narrows the flat category listing.
type ListFilter struct {
	ParentID  *uuid.UUID
	RootsOnly bool
	IsActive  *bool
	Search    string
}

// Repository persists categories.
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// SlugTaken reports whether another category already uses slug.
func (r *Repository) SlugTaken(ctx context.Context, slug string, exclude *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Category{}).Where("slug = ?", slug)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) Create(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *Repository) Update(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).
		Model(category).
		Select("name", "slug", "description", "parent_id", "sort_order", "is_active").
		Updates(category).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Category{}, "id = ?", id).Error
}

func (r *Repository) CountChildren(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("parent_id = ?", id).Count(&count).Error
	return count, err
}

func (r *Repository) CountProducts(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Where("category_id = ?", id).Count(&count).Error
	return count, err
}

// List returns one page of categories ordered by sort_order then name.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Category, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Scopes(filterScope(filter)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Category
	if err := r.db.WithContext(ctx).
		Scopes(filterScope(filter), params.Scope()).
		Order("sort_order ASC").Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func filterScope(filter ListFilter) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		switch {
		case filter.ParentID != nil:
			query = query.Where("parent_id = ?", *filter.ParentID)
		case filter.RootsOnly:
			query = query.Where("parent_id IS NULL")
		}
		if filter.IsActive != nil {
			query = query.Where("is_active = ?", *filter.IsActive)
		}
		if term := strings.TrimSpace(filter.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			query = query.Where("LOWER(name) LIKE ? OR LOWER(slug) LIKE ?", like, like)
		}
		return query
	}
}

// ListAll loads every category for tree assembly.
func (r *Repository) ListAll(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	query := r.db.WithContext(ctx).Model(&models.Category{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.Category
	if err := query.Order("sort_order ASC").Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type parentLink struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
}

// ParentLinks maps every category id to its parent id.
func (r *Repository) ParentLinks(ctx context.Context) (map[uuid.UUID]*uuid.UUID, error) {
	var rows []parentLink
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Select("id", "parent_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	links := make(map[uuid.UUID]*uuid.UUID, len(rows))
	for _, row := range rows {
		links[row.ID] = row.ParentID
	}
	return links, nil
}
