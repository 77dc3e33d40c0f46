package enums

import "fmt"

// ProductUnit is the stock-keeping unit a product is sold in.
type ProductUnit string

const (
	ProductUnitPiece ProductUnit = "pcs"
	ProductUnitKG    ProductUnit = "kg"
	ProductUnitGram  ProductUnit = "g"
	ProductUnitLiter ProductUnit = "l"
	ProductUnitML    ProductUnit = "ml"
	ProductUnitPack  ProductUnit = "pack"
	ProductUnitBox   ProductUnit = "box"
	ProductUnitDozen ProductUnit = "dozen"
)

var validProductUnits = []ProductUnit{
	ProductUnitPiece,
	ProductUnitKG,
	ProductUnitGram,
	ProductUnitLiter,
	ProductUnitML,
	ProductUnitPack,
	ProductUnitBox,
	ProductUnitDozen,
}

// String implements fmt.Stringer.
func (u ProductUnit) String() string {
	return string(u)
}

// IsValid reports whether the value is a known ProductUnit.
func (u ProductUnit) IsValid() bool {
	for _, candidate := range validProductUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseProductUnit converts raw input into a ProductUnit.
func ParseProductUnit(value string) (ProductUnit, error) {
	for _, candidate := range validProductUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product unit %q", value)
}

// ProductUnitValues lists the accepted unit strings, used in validation messages.
func ProductUnitValues() []string {
	out := make([]string, 0, len(validProductUnits))
	for _, u := range validProductUnits {
		out = append(out, string(u))
	}
	return out
}
