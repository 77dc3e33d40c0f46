package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// PriceUpdate is an append-only audit row written whenever a product's price
// or discount changes.
type PriceUpdate struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:idx_price_updates_product_id"`
	Product          *Product              `gorm:"foreignKey:ProductID"`
	OldPrice         decimal.Decimal       `gorm:"column:old_price;type:numeric(12,2);not null"`
	NewPrice         decimal.Decimal       `gorm:"column:new_price;type:numeric(12,2);not null"`
	OldDiscountType  enums.DiscountType    `gorm:"column:old_discount_type;type:varchar(16);not null"`
	NewDiscountType  enums.DiscountType    `gorm:"column:new_discount_type;type:varchar(16);not null"`
	OldDiscountValue decimal.NullDecimal   `gorm:"column:old_discount_value;type:numeric(12,2)"`
	NewDiscountValue decimal.NullDecimal   `gorm:"column:new_discount_value;type:numeric(12,2)"`
	ChangeType       enums.PriceChangeType `gorm:"column:change_type;type:varchar(16);not null"`
	Reason           *string               `gorm:"column:reason"`
	ChangedBy        *uuid.UUID            `gorm:"column:changed_by;type:uuid"`
	BatchID          *uuid.UUID            `gorm:"column:batch_id;type:uuid;index:idx_price_updates_batch_id"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (p *PriceUpdate) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
