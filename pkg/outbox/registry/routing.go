// Package registry maps outbox event types to their Pub/Sub topic and payload
// type, for the publisher, and to versioned decoders, for consumers.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
)

// ErrUnroutable marks events this publisher has no topic for.
var ErrUnroutable = errors.New("unroutable event")

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row checked against its descriptor. Payload is
// a pointer to the typed event body.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, error) {
			out := new(T)
			if err := json.Unmarshal(data, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// NewEventRegistry routes order events to the orders topic and dispatch
// requests to the WhatsApp topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.WhatsAppTopic == "":
		return nil, errors.New("whatsapp topic is required")
	}
	routes := []EventDescriptor{
		route[payloads.OrderPlacedEvent](enums.EventOrderPlaced, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.WhatsAppDispatchEvent](enums.EventWhatsAppDispatch, enums.AggregateWhatsAppMessage, cfg.WhatsAppTopic),
	}
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, d := range routes {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Resolve checks the row's type, aggregate and envelope and decodes the
// body. Every failure is a NonRetryableError; unknown types also wrap
// ErrUnroutable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	fail := func(format string, args ...any) (*ResolvedEvent, error) {
		return nil, NewNonRetryableError(fmt.Errorf(format, args...))
	}

	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return fail("%w: type %s", ErrUnroutable, event.EventType)
	case desc.AggregateType != event.AggregateType:
		return fail("%s belongs to %s aggregates, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return fail("%s row has no aggregate id", event.EventType)
	}

	envelope, eventID, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return fail("decode envelope: %w", err)
	}
	if event.ID != uuid.Nil && eventID != event.ID {
		return fail("envelope event id %s does not match row %s", eventID, event.ID)
	}
	if !envelope.HasData() {
		return fail("%s envelope has no data", event.EventType)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return fail("decode %s data: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
