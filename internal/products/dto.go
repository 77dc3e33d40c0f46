package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

// ProductDTO represents the product payload returned to clients. The price
// fields after DiscountEndDate are derived for the day the DTO was built.
type ProductDTO struct {
	ID                uuid.UUID              `json:"id"`
	CategoryID        uuid.UUID              `json:"category_id"`
	Category          *categories.SummaryDTO `json:"category,omitempty"`
	ItemCode          string                 `json:"item_code"`
	Name              string                 `json:"name"`
	Description       *string                `json:"description,omitempty"`
	Unit              string                 `json:"unit"`
	Price             types.Money            `json:"price"`
	DiscountType      string                 `json:"discount_type"`
	DiscountValue     *types.Money           `json:"discount_value"`
	DiscountStartDate *string                `json:"discount_start_date"`
	DiscountEndDate   *string                `json:"discount_end_date"`
	FinalPrice        types.Money            `json:"final_price"`
	DiscountAmount    types.Money            `json:"discount_amount"`
	HasActiveDiscount bool                   `json:"has_active_discount"`
	DiscountLabel     string                 `json:"discount_label,omitempty"`
	Stock             int                    `json:"stock"`
	InStock           bool                   `json:"in_stock"`
	ImageURL          *string                `json:"image_url"`
	IsActive          bool                   `json:"is_active"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// DiscountOf extracts the discount configuration of a product.
func DiscountOf(p *models.Product) pricing.Discount {
	return pricing.Discount{
		Type:      p.DiscountType.OrNone(),
		Value:     p.DiscountValue,
		StartDate: p.DiscountStartDate,
		EndDate:   p.DiscountEndDate,
	}
}

// NewProductDTO builds a DTO from the persisted model, pricing it as of now.
func NewProductDTO(p *models.Product, now time.Time) ProductDTO {
	quote := pricing.QuoteFor(p.Price, DiscountOf(p), now)
	dto := ProductDTO{
		ID:                p.ID,
		CategoryID:        p.CategoryID,
		Category:          categories.NewSummaryDTO(p.Category),
		ItemCode:          p.ItemCode,
		Name:              p.Name,
		Description:       p.Description,
		Unit:              p.Unit.String(),
		Price:             types.NewMoney(quote.BasePrice),
		DiscountType:      p.DiscountType.OrNone().String(),
		DiscountStartDate: types.FormatDate(p.DiscountStartDate),
		DiscountEndDate:   types.FormatDate(p.DiscountEndDate),
		FinalPrice:        types.NewMoney(quote.FinalPrice),
		DiscountAmount:    types.NewMoney(quote.DiscountAmount),
		HasActiveDiscount: quote.HasActiveDiscount,
		DiscountLabel:     quote.DiscountLabel,
		Stock:             p.Stock,
		InStock:           p.Stock > 0,
		ImageURL:          p.ImageURL,
		IsActive:          p.IsActive,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if dto.DiscountType != "none" {
		dto.DiscountValue = types.NewMoneyPtr(p.DiscountValue)
	}
	return dto
}
