package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// Order is a placed order with its snapshot line items.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex:idx_orders_order_number"`
	CustomerID      *uuid.UUID        `gorm:"column:customer_id;type:uuid;index:idx_orders_customer_id"`
	Customer        *Customer         `gorm:"foreignKey:CustomerID"`
	CustomerName    string            `gorm:"column:customer_name;not null"`
	CustomerPhone   *string           `gorm:"column:customer_phone"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(20);not null;index:idx_orders_status"`
	Source          enums.OrderSource `gorm:"column:source;type:varchar(10);not null"`
	Subtotal        decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountTotal   decimal.Decimal   `gorm:"column:discount_total;type:numeric(12,2);not null"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Notes           *string           `gorm:"column:notes"`
	DeliveryAddress *string           `gorm:"column:delivery_address"`
	PlacedAt        time.Time         `gorm:"column:placed_at;not null"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	CancelReason    *string           `gorm:"column:cancel_reason"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots a product at the moment the order was placed.
type OrderItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:idx_order_items_order_id"`
	ProductID      *uuid.UUID        `gorm:"column:product_id;type:uuid;index:idx_order_items_product_id"`
	ItemCode       string            `gorm:"column:item_code;not null"`
	ProductName    string            `gorm:"column:product_name;not null"`
	Unit           enums.ProductUnit `gorm:"column:unit;type:varchar(16);not null"`
	UnitPrice      decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountAmount decimal.Decimal   `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	FinalUnitPrice decimal.Decimal   `gorm:"column:final_unit_price;type:numeric(12,2);not null"`
	Quantity       int               `gorm:"column:quantity;not null"`
	LineTotal      decimal.Decimal   `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
