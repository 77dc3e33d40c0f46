package whatsapp

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

// orderUpdateBody renders the customer-facing text for an order event. An
// empty result means the status is not announced.
func orderUpdateBody(store, customer string, input OrderUpdateInput) string {
	greeting := "Hi"
	if name := strings.TrimSpace(customer); name != "" {
		greeting = "Hi " + name
	}
	if store == "" {
		store = "our store"
	}
	number := input.OrderNumber

	var line string
	switch input.Status {
	case enums.OrderStatusPending:
		line = fmt.Sprintf("thank you for ordering at %s. We received order %s", store, number)
		if input.Total != nil {
			line += " with a total of " + *input.Total
		}
		line += " and will confirm it shortly."
	case enums.OrderStatusConfirmed:
		line = fmt.Sprintf("your order %s has been confirmed.", number)
	case enums.OrderStatusProcessing:
		line = fmt.Sprintf("we are now preparing your order %s.", number)
	case enums.OrderStatusReady:
		line = fmt.Sprintf("your order %s is ready.", number)
	case enums.OrderStatusDelivered:
		line = fmt.Sprintf("your order %s has been delivered. Thank you for shopping at %s!", number, store)
	case enums.OrderStatusCancelled:
		line = fmt.Sprintf("your order %s has been cancelled.", number)
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			line += " Reason: " + reason
		}
	default:
		return ""
	}
	return greeting + ", " + line
}
