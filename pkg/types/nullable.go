package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// presence classifies a raw JSON member: absent members never reach
// UnmarshalJSON, so anything seen here was sent explicitly.
func presence(data []byte) (trimmed []byte, present, null bool) {
	trimmed = bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, false
	}
	return trimmed, true, bytes.Equal(trimmed, []byte("null"))
}

// NullableDecimal tracks whether a decimal field was explicitly present in JSON.
// Both JSON numbers and numeric strings are accepted.
type NullableDecimal struct {
	Valid bool
	Value *decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	trimmed, present, null := presence(data)
	if !present {
		return nil
	}
	n.Valid, n.Value = true, nil
	if null {
		return nil
	}
	var parsed decimal.Decimal
	if err := parsed.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("invalid decimal: %w", err)
	}
	n.Value = &parsed
	return nil
}

// NullDecimal converts to the nullable form stored on models.
func (n NullableDecimal) NullDecimal() decimal.NullDecimal {
	if n.Value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*n.Value)
}

// NullableDate tracks whether a YYYY-MM-DD field was explicitly present in JSON.
type NullableDate struct {
	Valid bool
	Value *time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableDate) UnmarshalJSON(data []byte) error {
	trimmed, present, null := presence(data)
	if !present {
		return nil
	}
	n.Valid, n.Value = true, nil
	if null {
		return nil
	}
	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if raw == "" {
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// NullableUUID tracks whether an id field was sent. null and "" both clear
// the reference, e.g. moving a category back to the top level.
type NullableUUID struct {
	Valid bool
	Value *uuid.UUID
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableUUID) UnmarshalJSON(data []byte) error {
	trimmed, present, null := presence(data)
	if !present {
		return nil
	}
	n.Valid, n.Value = true, nil
	if null {
		return nil
	}
	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("id must be a string: %w", err)
	}
	if raw == "" {
		return nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	n.Value = &parsed
	return nil
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must use the YYYY-MM-DD format")
	}
	return parsed, nil
}

// FormatDate renders t as YYYY-MM-DD, or nil when t is nil.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
