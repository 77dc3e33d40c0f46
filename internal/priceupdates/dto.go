package priceupdates

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

// PriceUpdateDTO is one audit row as returned to clients.
type PriceUpdateDTO struct {
	ID               uuid.UUID    `json:"id"`
	ProductID        uuid.UUID    `json:"product_id"`
	ProductName      string       `json:"product_name,omitempty"`
	ItemCode         string       `json:"item_code,omitempty"`
	OldPrice         types.Money  `json:"old_price"`
	NewPrice         types.Money  `json:"new_price"`
	OldDiscountType  string       `json:"old_discount_type"`
	OldDiscountValue *types.Money `json:"old_discount_value"`
	NewDiscountType  string       `json:"new_discount_type"`
	NewDiscountValue *types.Money `json:"new_discount_value"`
	ChangeType       string       `json:"change_type"`
	Reason           *string      `json:"reason,omitempty"`
	ChangedBy        *uuid.UUID   `json:"changed_by"`
	BatchID          *uuid.UUID   `json:"batch_id"`
	CreatedAt        time.Time    `json:"created_at"`
}

// BulkResult reports the outcome of a bulk price update.
type BulkResult struct {
	BatchID      uuid.UUID        `json:"batch_id"`
	UpdatedCount int              `json:"updated_count"`
	Products     []BulkProductDTO `json:"products"`
}

type BulkProductDTO struct {
	ProductID uuid.UUID   `json:"product_id"`
	ItemCode  string      `json:"item_code"`
	OldPrice  types.Money `json:"old_price"`
	NewPrice  types.Money `json:"new_price"`
}

func NewPriceUpdateDTO(row *models.PriceUpdate) PriceUpdateDTO {
	dto := PriceUpdateDTO{
		ID:               row.ID,
		ProductID:        row.ProductID,
		OldPrice:         types.NewMoney(row.OldPrice),
		NewPrice:         types.NewMoney(row.NewPrice),
		OldDiscountType:  row.OldDiscountType.String(),
		OldDiscountValue: types.NewMoneyPtr(row.OldDiscountValue),
		NewDiscountType:  row.NewDiscountType.String(),
		NewDiscountValue: types.NewMoneyPtr(row.NewDiscountValue),
		ChangeType:       string(row.ChangeType),
		Reason:           row.Reason,
		ChangedBy:        row.ChangedBy,
		BatchID:          row.BatchID,
		CreatedAt:        row.CreatedAt,
	}
	if row.Product != nil {
		dto.ProductName = row.Product.Name
		dto.ItemCode = row.Product.ItemCode
	}
	return dto
}
