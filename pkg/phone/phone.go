// Package phone normalizes customer phone numbers to E.164.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const whatsappPrefix = "whatsapp:"

var ErrInvalid = errors.New("invalid phone number")

// Normalizer formats numbers to E.164 using a default region for national
// formats such as "0812-3456-789".
type Normalizer struct {
	region string
}

func NewNormalizer(defaultRegion string) *Normalizer {
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if region == "" {
		region = "ID"
	}
	return &Normalizer{region: region}
}

// Normalize returns the E.164 form of raw. A "whatsapp:" prefix is dropped.
// Normalize(Normalize(x)) == Normalize(x) for every valid x.
func (n *Normalizer) Normalize(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if len(cleaned) >= len(whatsappPrefix) && strings.EqualFold(cleaned[:len(whatsappPrefix)], whatsappPrefix) {
		cleaned = strings.TrimSpace(cleaned[len(whatsappPrefix):])
	}
	if cleaned == "" {
		return "", ErrInvalid
	}
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}

	num, err := phonenumbers.Parse(cleaned, n.region)
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeOptional treats a blank input as "no number".
func (n *Normalizer) NormalizeOptional(raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	out, err := n.Normalize(*raw)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WhatsAppAddress formats an E.164 number as a Twilio WhatsApp address.
func WhatsAppAddress(e164 string) string {
	if strings.HasPrefix(e164, whatsappPrefix) {
		return e164
	}
	return whatsappPrefix + e164
}
