package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// WhatsAppMessage is one outbound WhatsApp message and its delivery state.
type WhatsAppMessage struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID    *uuid.UUID                  `gorm:"column:customer_id;type:uuid;index:idx_whatsapp_messages_customer_id"`
	ToNumber      string                      `gorm:"column:to_number;not null"`
	Body          string                      `gorm:"column:body;not null"`
	MediaURL      *string                     `gorm:"column:media_url"`
	Kind          enums.WhatsAppMessageKind   `gorm:"column:kind;type:varchar(20);not null"`
	BroadcastID   *uuid.UUID                  `gorm:"column:broadcast_id;type:uuid;index:idx_whatsapp_messages_broadcast_id"`
	Status        enums.WhatsAppMessageStatus `gorm:"column:status;type:varchar(16);not null;index:idx_whatsapp_messages_status_next"`
	Attempts      int                         `gorm:"column:attempts;not null"`
	LastError     *string                     `gorm:"column:last_error"`
	ProviderSID   *string                     `gorm:"column:provider_sid"`
	NextAttemptAt *time.Time                  `gorm:"column:next_attempt_at;index:idx_whatsapp_messages_status_next"`
	SentAt        *time.Time                  `gorm:"column:sent_at"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (WhatsAppMessage) TableName() string {
	return "whatsapp_messages"
}

func (m *WhatsAppMessage) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	if m.Status == "" {
		m.Status = enums.WhatsAppStatusQueued
	}
	return nil
}
