package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is a store customer that can order and receive WhatsApp messages.
type Customer struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Email          *string   `gorm:"column:email;uniqueIndex:idx_customers_email"`
	Phone          *string   `gorm:"column:phone"`
	WhatsAppNumber *string   `gorm:"column:whatsapp_number;uniqueIndex:idx_customers_whatsapp_number"`
	Address        *string   `gorm:"column:address"`
	Notes          *string   `gorm:"column:notes"`
	WhatsAppOptIn  bool      `gorm:"column:whatsapp_opt_in;not null"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
