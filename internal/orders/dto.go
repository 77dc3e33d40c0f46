package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

// OrderItemDTO is the persisted snapshot of one line.
type OrderItemDTO struct {
	ID             uuid.UUID   `json:"id"`
	ProductID      *uuid.UUID  `json:"product_id"`
	ItemCode       string      `json:"item_code"`
	ProductName    string      `json:"product_name"`
	Unit           string      `json:"unit"`
	UnitPrice      types.Money `json:"unit_price"`
	DiscountAmount types.Money `json:"discount_amount"`
	FinalUnitPrice types.Money `json:"final_unit_price"`
	Quantity       int         `json:"quantity"`
	LineTotal      types.Money `json:"line_total"`
}

// OrderCustomerDTO is the customer block rendered on an order.
type OrderCustomerDTO struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Phone          *string   `json:"phone"`
	WhatsAppNumber *string   `json:"whatsapp_number"`
}

type OrderDTO struct {
	ID                 uuid.UUID         `json:"id"`
	OrderNumber        string            `json:"order_number"`
	CustomerID         *uuid.UUID        `json:"customer_id"`
	Customer           *OrderCustomerDTO `json:"customer,omitempty"`
	CustomerName       string            `json:"customer_name"`
	CustomerPhone      *string           `json:"customer_phone"`
	Status             string            `json:"status"`
	AllowedTransitions []string          `json:"allowed_transitions"`
	Source             string            `json:"source"`
	Subtotal           types.Money       `json:"subtotal"`
	DiscountTotal      types.Money       `json:"discount_total"`
	Total              types.Money       `json:"total"`
	Notes              *string           `json:"notes"`
	DeliveryAddress    *string           `json:"delivery_address"`
	PlacedAt           time.Time         `json:"placed_at"`
	CancelledAt        *time.Time        `json:"cancelled_at"`
	CancelReason       *string           `json:"cancel_reason"`
	Items              []OrderItemDTO    `json:"items"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// ItemCount sums the quantities of every line.
func (o OrderDTO) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

func NewOrderDTO(o *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		CustomerName:       o.CustomerName,
		CustomerPhone:      o.CustomerPhone,
		Status:             o.Status.String(),
		AllowedTransitions: statusStrings(o.Status.AllowedTransitions()),
		Source:             string(o.Source),
		Subtotal:           types.NewMoney(o.Subtotal),
		DiscountTotal:      types.NewMoney(o.DiscountTotal),
		Total:              types.NewMoney(o.Total),
		Notes:              o.Notes,
		DeliveryAddress:    o.DeliveryAddress,
		PlacedAt:           o.PlacedAt,
		CancelledAt:        o.CancelledAt,
		CancelReason:       o.CancelReason,
		Items:              make([]OrderItemDTO, 0, len(o.Items)),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if c := o.Customer; c != nil {
		dto.Customer = &OrderCustomerDTO{ID: c.ID, Name: c.Name, Phone: c.Phone, WhatsAppNumber: c.WhatsAppNumber}
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ItemCode:       item.ItemCode,
			ProductName:    item.ProductName,
			Unit:           item.Unit.String(),
			UnitPrice:      types.NewMoney(item.UnitPrice),
			DiscountAmount: types.NewMoney(item.DiscountAmount),
			FinalUnitPrice: types.NewMoney(item.FinalUnitPrice),
			Quantity:       item.Quantity,
			LineTotal:      types.NewMoney(item.LineTotal),
		})
	}
	return dto
}

func statusStrings(in []enums.OrderStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, s.String())
	}
	return out
}
