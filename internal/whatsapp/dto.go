package whatsapp

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
)

type MessageDTO struct {
	ID            uuid.UUID  `json:"id"`
	CustomerID    *uuid.UUID `json:"customer_id"`
	ToNumber      string     `json:"to_number"`
	Body          string     `json:"body"`
	MediaURL      *string    `json:"media_url"`
	Kind          string     `json:"kind"`
	BroadcastID   *uuid.UUID `json:"broadcast_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error"`
	ProviderSID   *string    `json:"provider_sid"`
	NextAttemptAt *time.Time `json:"next_attempt_at"`
	SentAt        *time.Time `json:"sent_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewMessageDTO(m *models.WhatsAppMessage) MessageDTO {
	return MessageDTO{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		ToNumber:      m.ToNumber,
		Body:          m.Body,
		MediaURL:      m.MediaURL,
		Kind:          string(m.Kind),
		BroadcastID:   m.BroadcastID,
		Status:        string(m.Status),
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		ProviderSID:   m.ProviderSID,
		NextAttemptAt: m.NextAttemptAt,
		SentAt:        m.SentAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// BroadcastResult summarizes a queued broadcast.
type BroadcastResult struct {
	BroadcastID uuid.UUID `json:"broadcast_id"`
	Kind        string    `json:"kind"`
	Recipients  int       `json:"recipients"`
	Chunks      int       `json:"chunks"`
	MediaURL    *string   `json:"media_url,omitempty"`
}
