package enums

import "fmt"

// PriceChangeType classifies a price_updates audit row.
type PriceChangeType string

const (
	PriceChangeManual   PriceChangeType = "manual"
	PriceChangeBulk     PriceChangeType = "bulk"
	PriceChangeDiscount PriceChangeType = "discount"
)

var validPriceChangeTypes = []PriceChangeType{
	PriceChangeManual,
	PriceChangeBulk,
	PriceChangeDiscount,
}

// IsValid reports whether the value is a known PriceChangeType.
func (p PriceChangeType) IsValid() bool {
	for _, candidate := range validPriceChangeTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePriceChangeType converts raw input into a PriceChangeType.
func ParsePriceChangeType(value string) (PriceChangeType, error) {
	for _, candidate := range validPriceChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price change type %q", value)
}

// BulkAdjustmentType selects how a bulk price update modifies each price.
type BulkAdjustmentType string

const (
	BulkAdjustmentPercentage BulkAdjustmentType = "percentage"
	BulkAdjustmentFixed      BulkAdjustmentType = "fixed"
)

// IsValid reports whether the value is a known BulkAdjustmentType.
func (b BulkAdjustmentType) IsValid() bool {
	return b == BulkAdjustmentPercentage || b == BulkAdjustmentFixed
}
