// Package pricing holds the discount rules and price arithmetic shared by the
// catalog, order placement and bulk price updates.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Discount is the discount configuration attached to a product.
type Discount struct {
	Type      enums.DiscountType
	Value     decimal.NullDecimal
	StartDate *time.Time
	EndDate   *time.Time
}

// FieldErrors maps a request field name to a human readable message.
type FieldErrors map[string]string

// Normalize clears the value and window of a "none" discount and maps the
// empty type to "none".
func Normalize(d Discount) Discount {
	d.Type = d.Type.OrNone()
	if d.Type == enums.DiscountTypeNone {
		return Discount{Type: enums.DiscountTypeNone}
	}
	if d.StartDate != nil {
		start := DateOf(*d.StartDate)
		d.StartDate = &start
	}
	if d.EndDate != nil {
		end := DateOf(*d.EndDate)
		d.EndDate = &end
	}
	return d
}

// Validate checks d against price. It returns nil when the combination is valid.
func Validate(price decimal.Decimal, d Discount) FieldErrors {
	errs := FieldErrors{}
	if !price.IsPositive() {
		errs["price"] = "price must be greater than 0"
	}

	d.Type = d.Type.OrNone()
	if !d.Type.IsValid() {
		errs["discount_type"] = "discount_type must be one of none, fixed, percentage"
		return errs
	}

	if d.Type != enums.DiscountTypeNone {
		switch {
		case !d.Value.Valid:
			errs["discount_value"] = "discount_value is required when discount_type is " + d.Type.String()
		case !d.Value.Decimal.IsPositive():
			errs["discount_value"] = "discount_value must be greater than 0"
		case d.Type == enums.DiscountTypeFixed && price.IsPositive() && d.Value.Decimal.GreaterThanOrEqual(price):
			errs["discount_value"] = "fixed discount must be less than the price"
		case d.Type == enums.DiscountTypePercentage && d.Value.Decimal.GreaterThan(hundred):
			errs["discount_value"] = "percentage discount must not exceed 100"
		}
	}

	if d.StartDate != nil && d.EndDate != nil && DateOf(*d.EndDate).Before(DateOf(*d.StartDate)) {
		errs["discount_end_date"] = "discount_end_date must be on or after discount_start_date"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// DateOf truncates t to its calendar date, keeping the year/month/day as seen
// in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsActive reports whether d applies on the calendar date of on. Both window
// bounds are inclusive and a nil bound is open.
func IsActive(d Discount, on time.Time) bool {
	if d.Type.OrNone() == enums.DiscountTypeNone || !d.Value.Valid || !d.Value.Decimal.IsPositive() {
		return false
	}
	day := DateOf(on)
	if d.StartDate != nil && day.Before(DateOf(*d.StartDate)) {
		return false
	}
	if d.EndDate != nil && day.After(DateOf(*d.EndDate)) {
		return false
	}
	return true
}

// Round2 rounds half away from zero to two decimals, which is half-up for
// the non-negative amounts this package produces.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// FinalPrice applies d to price when it is active on the given date.
func FinalPrice(price decimal.Decimal, d Discount, on time.Time) decimal.Decimal {
	if !IsActive(d, on) {
		return Round2(price)
	}
	var final decimal.Decimal
	switch d.Type {
	case enums.DiscountTypeFixed:
		final = price.Sub(d.Value.Decimal)
	case enums.DiscountTypePercentage:
		final = price.Sub(price.Mul(d.Value.Decimal).Div(hundred))
	default:
		final = price
	}
	final = Round2(final)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

// Label renders the discount for display: "10%" or "-5.00". It is empty for
// "none".
func Label(d Discount) string {
	if !d.Value.Valid {
		return ""
	}
	switch d.Type {
	case enums.DiscountTypePercentage:
		return d.Value.Decimal.String() + "%"
	case enums.DiscountTypeFixed:
		return "-" + d.Value.Decimal.StringFixed(2)
	default:
		return ""
	}
}

// Quote is the set of derived price fields rendered alongside a product.
type Quote struct {
	BasePrice         decimal.Decimal
	FinalPrice        decimal.Decimal
	DiscountAmount    decimal.Decimal
	HasActiveDiscount bool
	DiscountLabel     string
}

func QuoteFor(price decimal.Decimal, d Discount, on time.Time) Quote {
	final := FinalPrice(price, d, on)
	active := IsActive(d, on)
	q := Quote{
		BasePrice:         Round2(price),
		FinalPrice:        final,
		DiscountAmount:    Round2(price).Sub(final),
		HasActiveDiscount: active,
	}
	if active {
		q.DiscountLabel = Label(d)
	}
	return q
}
