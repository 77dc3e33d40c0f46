package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
)

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	CategoryID           *uuid.UUID
	IncludeSubcategories bool
	Search               string
	MinPrice             *decimal.Decimal
	MaxPrice             *decimal.Decimal
	InStock              *bool
	OnDiscount           *bool
	IsActive             *bool
}

// ListProductsInput captures the inputs needed to paginate/filter products.
type ListProductsInput struct {
	Filters    ProductListFilters
	Sort       string
	Pagination pagination.Params
}

// SortOrder is a validated sort column and direction.
type SortOrder struct {
	Column string
	Desc   bool
}

var sortColumns = map[string]string{
	"name":       "products.name",
	"price":      "products.price",
	"created_at": "products.created_at",
	"stock":      "products.stock",
}

// ParseSort accepts "name", "-price" and so on. Empty input sorts by name.
func ParseSort(raw string) (SortOrder, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SortOrder{Column: sortColumns["name"]}, nil
	}
	desc := strings.HasPrefix(raw, "-")
	key := strings.TrimPrefix(raw, "-")
	column, ok := sortColumns[key]
	if !ok {
		return SortOrder{}, fmt.Errorf("sort must be one of name, price, created_at, stock with an optional - prefix")
	}
	return SortOrder{Column: column, Desc: desc}, nil
}

func (s SortOrder) scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		return db.Order(s.Column + " " + dir).Order("products.id ASC")
	}
}

type listQuery struct {
	Filters     ProductListFilters
	CategoryIDs []uuid.UUID
	Sort        SortOrder
	Today       time.Time
}

func (q listQuery) scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		f := q.Filters
		if len(q.CategoryIDs) > 0 {
			db = db.Where("products.category_id IN ?", q.CategoryIDs)
		}
		if term := strings.TrimSpace(f.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			db = db.Where("(LOWER(products.name) LIKE ? OR LOWER(products.item_code) LIKE ?)", like, like)
		}
		if f.MinPrice != nil {
			db = db.Where("products.price >= ?", *f.MinPrice)
		}
		if f.MaxPrice != nil {
			db = db.Where("products.price <= ?", *f.MaxPrice)
		}
		if f.InStock != nil {
			if *f.InStock {
				db = db.Where("products.stock > 0")
			} else {
				db = db.Where("products.stock <= 0")
			}
		}
		if f.OnDiscount != nil {
			today := pricing.DateOf(q.Today)
			if *f.OnDiscount {
				db = db.Where(onDiscountClause, onDiscountArgs(today)...)
			} else {
				db = db.Not(onDiscountClause, onDiscountArgs(today)...)
			}
		}
		if f.IsActive != nil {
			db = db.Where("products.is_active = ?", *f.IsActive)
		}
		return db
	}
}
