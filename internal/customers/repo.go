package customers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

// ListFilter narrows the customer listing.
type ListFilter struct {
	Search        string
	WhatsAppOptIn *bool
	IsActive      *bool
}

// Repository persists customers.
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByWhatsApp looks a customer up by its normalized WhatsApp number.
func (r *Repository) FindByWhatsApp(ctx context.Context, number string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "whatsapp_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// ColumnTaken reports whether another customer already uses value in column.
// Only email and whatsapp_number are accepted.
func (r *Repository) ColumnTaken(ctx context.Context, column, value string, exclude *uuid.UUID) (bool, error) {
	if column != "email" && column != "whatsapp_number" {
		return false, nil
	}
	query := r.db.WithContext(ctx).Model(&models.Customer{}).Where(column+" = ?", value)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *Repository) Update(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).
		Model(customer).
		Select("name", "email", "phone", "whatsapp_number", "address", "notes", "whatsapp_opt_in", "is_active").
		Updates(customer).Error
}

func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Customer{}, "id = ?", id).Error
}

func (r *Repository) CountOrders(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("customer_id = ?", id).Count(&count).Error
	return count, err
}

// List returns one page of customers ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Customer, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Customer{}).Scopes(filterScope(filter)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Customer
	err := r.db.WithContext(ctx).
		Scopes(filterScope(filter), params.Scope()).
		Order("name ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListOptedIn returns active customers that accept WhatsApp messages and have
// a number to send to. A non-empty ids restricts the result.
func (r *Repository) ListOptedIn(ctx context.Context, ids []uuid.UUID) ([]models.Customer, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND whatsapp_opt_in = ? AND whatsapp_number IS NOT NULL", true, true)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	var rows []models.Customer
	err := query.Order("name ASC").Find(&rows).Error
	return rows, err
}

// Orders returns one page of the customer's orders, newest first.
func (r *Repository) Orders(ctx context.Context, id uuid.UUID, params pagination.Params) ([]models.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("customer_id = ?", id).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ?", id).
		Order("placed_at DESC").
		Order("id ASC").
		Scopes(params.Scope()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func filterScope(filter ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if term := strings.TrimSpace(filter.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			db = db.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ? OR COALESCE(phone, '') LIKE ? OR COALESCE(whatsapp_number, '') LIKE ?)",
				like, like, like, like)
		}
		if filter.WhatsAppOptIn != nil {
			db = db.Where("whatsapp_opt_in = ?", *filter.WhatsAppOptIn)
		}
		if filter.IsActive != nil {
			db = db.Where("is_active = ?", *filter.IsActive)
		}
		return db
	}
}
