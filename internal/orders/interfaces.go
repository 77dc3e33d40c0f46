package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and the product stock
// they move.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error
	CountOrdersPlacedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// counterStore issues the daily order sequence.
type counterStore interface {
	CounterKey(name string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// PhoneNormalizer converts a guest phone number to E.164.
type PhoneNormalizer interface {
	NormalizeOptional(raw *string) (*string, error)
}

// ListFilters narrow the admin order listing. DateFrom and DateTo bound the
// placement date and are both inclusive.
type ListFilters struct {
	Status     *enums.OrderStatus
	Source     *enums.OrderSource
	CustomerID *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
	Query      string
}
