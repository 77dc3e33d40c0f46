package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// OrderPlacedEvent is emitted once an order and its stock movements commit.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	CustomerID  *uuid.UUID        `json:"customerId,omitempty"`
	Status      enums.OrderStatus `json:"status"`
	Total       decimal.Decimal   `json:"total"`
	ItemCount   int               `json:"itemCount"`
	Source      enums.OrderSource `json:"source"`
	PlacedAt    time.Time         `json:"placedAt"`
}

// OrderStatusChangedEvent is emitted on every legal status transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	CustomerID     *uuid.UUID        `json:"customerId,omitempty"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
	Status         enums.OrderStatus `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	ChangedAt      time.Time         `json:"changedAt"`
}

// WhatsAppDispatchEvent carries one chunk of message ids to deliver.
type WhatsAppDispatchEvent struct {
	MessageIDs  []uuid.UUID `json:"messageIds"`
	BroadcastID *uuid.UUID  `json:"broadcastId,omitempty"`
	Chunk       int         `json:"chunk"`
	Retry       bool        `json:"retry,omitempty"`
}
