package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// Product is a sellable catalog item.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID        uuid.UUID           `gorm:"column:category_id;type:uuid;not null;index:idx_products_category_id"`
	Category          *Category           `gorm:"foreignKey:CategoryID"`
	ItemCode          string              `gorm:"column:item_code;not null;uniqueIndex:idx_products_item_code"`
	Name              string              `gorm:"column:name;not null"`
	Description       *string             `gorm:"column:description"`
	Unit              enums.ProductUnit   `gorm:"column:unit;type:varchar(16);not null"`
	Price             decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountType      enums.DiscountType  `gorm:"column:discount_type;type:varchar(16);not null"`
	DiscountValue     decimal.NullDecimal `gorm:"column:discount_value;type:numeric(12,2)"`
	DiscountStartDate *time.Time          `gorm:"column:discount_start_date;type:date"`
	DiscountEndDate   *time.Time          `gorm:"column:discount_end_date;type:date"`
	Stock             int                 `gorm:"column:stock;not null"`
	ImageURL          *string             `gorm:"column:image_url"`
	IsActive          bool                `gorm:"column:is_active;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if p.DiscountType == "" {
		p.DiscountType = enums.DiscountTypeNone
	}
	return nil
}
