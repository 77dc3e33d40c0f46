package customers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

type CustomerDTO struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          *string   `json:"email"`
	Phone          *string   `json:"phone"`
	WhatsAppNumber *string   `json:"whatsapp_number"`
	Address        *string   `json:"address"`
	Notes          *string   `json:"notes"`
	WhatsAppOptIn  bool      `json:"whatsapp_opt_in"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewCustomerDTO(c *models.Customer) CustomerDTO {
	return CustomerDTO{
		ID:             c.ID,
		Name:           c.Name,
		Email:          c.Email,
		Phone:          c.Phone,
		WhatsAppNumber: c.WhatsAppNumber,
		Address:        c.Address,
		Notes:          c.Notes,
		WhatsAppOptIn:  c.WhatsAppOptIn,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// OrderSummaryDTO is the compact order row shown in a customer's history.
type OrderSummaryDTO struct {
	ID            uuid.UUID   `json:"id"`
	OrderNumber   string      `json:"order_number"`
	Status        string      `json:"status"`
	Source        string      `json:"source"`
	ItemCount     int         `json:"item_count"`
	Subtotal      types.Money `json:"subtotal"`
	DiscountTotal types.Money `json:"discount_total"`
	Total         types.Money `json:"total"`
	PlacedAt      time.Time   `json:"placed_at"`
}

func newOrderSummaryDTO(o *models.Order) OrderSummaryDTO {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return OrderSummaryDTO{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		Source:        string(o.Source),
		ItemCount:     count,
		Subtotal:      types.NewMoney(o.Subtotal),
		DiscountTotal: types.NewMoney(o.DiscountTotal),
		Total:         types.NewMoney(o.Total),
		PlacedAt:      o.PlacedAt,
	}
}
