package enums

import "fmt"

// DiscountType describes how a product discount is applied to the base price.
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "none"
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

var validDiscountTypes = []DiscountType{
	DiscountTypeNone,
	DiscountTypeFixed,
	DiscountTypePercentage,
}

// String implements fmt.Stringer.
func (d DiscountType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DiscountType.
func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// OrNone maps the zero value to DiscountTypeNone.
func (d DiscountType) OrNone() DiscountType {
	if d == "" {
		return DiscountTypeNone
	}
	return d
}

// ParseDiscountType converts raw input into a DiscountType. Empty input is "none".
func ParseDiscountType(value string) (DiscountType, error) {
	if value == "" {
		return DiscountTypeNone, nil
	}
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}
