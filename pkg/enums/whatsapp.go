package enums

import "fmt"

// WhatsAppMessageStatus tracks delivery of a queued WhatsApp message.
type WhatsAppMessageStatus string

const (
	WhatsAppStatusQueued   WhatsAppMessageStatus = "queued"
	WhatsAppStatusSending  WhatsAppMessageStatus = "sending"
	WhatsAppStatusSent     WhatsAppMessageStatus = "sent"
	WhatsAppStatusRetrying WhatsAppMessageStatus = "retrying"
	WhatsAppStatusFailed   WhatsAppMessageStatus = "failed"
)

var validWhatsAppStatuses = []WhatsAppMessageStatus{
	WhatsAppStatusQueued,
	WhatsAppStatusSending,
	WhatsAppStatusSent,
	WhatsAppStatusRetrying,
	WhatsAppStatusFailed,
}

// IsValid reports whether the value is a known WhatsAppMessageStatus.
func (s WhatsAppMessageStatus) IsValid() bool {
	for _, candidate := range validWhatsAppStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Dispatchable reports whether a worker may attempt delivery.
func (s WhatsAppMessageStatus) Dispatchable() bool {
	return s == WhatsAppStatusQueued || s == WhatsAppStatusRetrying
}

// ParseWhatsAppMessageStatus converts raw input into a WhatsAppMessageStatus.
func ParseWhatsAppMessageStatus(value string) (WhatsAppMessageStatus, error) {
	for _, candidate := range validWhatsAppStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid whatsapp message status %q", value)
}

// WhatsAppMessageKind records why a message was queued.
type WhatsAppMessageKind string

const (
	WhatsAppKindSingle      WhatsAppMessageKind = "single"
	WhatsAppKindBroadcast   WhatsAppMessageKind = "broadcast"
	WhatsAppKindPriceList   WhatsAppMessageKind = "price_list"
	WhatsAppKindOrderUpdate WhatsAppMessageKind = "order_update"
)

var validWhatsAppKinds = []WhatsAppMessageKind{
	WhatsAppKindSingle,
	WhatsAppKindBroadcast,
	WhatsAppKindPriceList,
	WhatsAppKindOrderUpdate,
}

// IsValid reports whether the value is a known WhatsAppMessageKind.
func (k WhatsAppMessageKind) IsValid() bool {
	for _, candidate := range validWhatsAppKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseWhatsAppMessageKind converts raw input into a WhatsAppMessageKind.
func ParseWhatsAppMessageKind(value string) (WhatsAppMessageKind, error) {
	for _, candidate := range validWhatsAppKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid whatsapp message kind %q", value)
}
