package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// Line is the priced snapshot of one order item.
type Line struct {
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalUnitPrice decimal.Decimal
	Quantity       int
	LineTotal      decimal.Decimal
}

// LineFor prices qty units using the discount active at placedAt.
func LineFor(price decimal.Decimal, d Discount, placedAt time.Time, qty int) Line {
	q := QuoteFor(price, d, placedAt)
	return Line{
		UnitPrice:      q.BasePrice,
		DiscountAmount: q.DiscountAmount,
		FinalUnitPrice: q.FinalPrice,
		Quantity:       qty,
		LineTotal:      q.FinalPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
}

// Summarize adds up lines. Total always equals the sum of line totals.
func Summarize(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		t.Subtotal = t.Subtotal.Add(l.UnitPrice.Mul(qty))
		t.DiscountTotal = t.DiscountTotal.Add(l.DiscountAmount.Mul(qty))
		t.Total = t.Total.Add(l.LineTotal)
	}
	return t
}

// AdjustPrice applies a bulk adjustment. Percentage amounts are relative, so
// 10 means +10% and -5 means -5%. The result is rounded but not clamped; the
// caller decides whether a non-positive price is acceptable.
func AdjustPrice(price decimal.Decimal, kind enums.BulkAdjustmentType, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case enums.BulkAdjustmentPercentage:
		return Round2(price.Add(price.Mul(amount).Div(hundred)))
	case enums.BulkAdjustmentFixed:
		return Round2(price.Add(amount))
	default:
		return price
	}
}
