package models

// All lists every persisted model. Used by sqlite bootstrapping and tests.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&Customer{},
		&Order{},
		&OrderItem{},
		&PriceUpdate{},
		&WhatsAppMessage{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
