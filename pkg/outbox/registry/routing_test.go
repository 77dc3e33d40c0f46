package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic", WhatsAppTopic: "whatsapp-topic"})
	require.NoError(t, err)
	return reg
}

// row builds an outbox row whose envelope id matches the row id.
func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data string) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return models.OutboxEvent{ID: id, EventType: eventType, AggregateType: aggregate, AggregateID: uuid.New(), Payload: payload}
}

func TestResolveOrderPlaced(t *testing.T) {
	orderID := uuid.New()
	body, err := json.Marshal(payloads.OrderPlacedEvent{
		OrderID:     orderID,
		OrderNumber: "ORD-20260101-0001",
		Status:      enums.OrderStatusPending,
		Total:       decimal.RequireFromString("42.50"),
		ItemCount:   2,
	})
	require.NoError(t, err)
	event := row(t, enums.EventOrderPlaced, enums.AggregateOrder, string(body))

	resolved, err := testRegistry(t).Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.Equal(t, event.ID.String(), resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.True(t, payload.Total.Equal(decimal.RequireFromString("42.5")))
}

func TestResolveRoutesByType(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		eventType enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		data      string
		topic     string
	}{
		{enums.EventOrderStatusChanged, enums.AggregateOrder, `{"orderNumber":"ORD-20260101-0002","status":"confirmed"}`, "orders-topic"},
		{enums.EventWhatsAppDispatch, enums.AggregateWhatsAppMessage, `{"messageIds":["` + uuid.NewString() + `"]}`, "whatsapp-topic"},
	}
	for _, tc := range cases {
		resolved, err := reg.Resolve(row(t, tc.eventType, tc.aggregate, tc.data))
		require.NoError(t, err, tc.eventType)
		assert.Equal(t, tc.topic, resolved.Descriptor.Topic, tc.eventType)
	}
}

func TestResolveFailuresAreNonRetryable(t *testing.T) {
	reg := testRegistry(t)

	unknown := row(t, "inventory.recounted", enums.AggregateOrder, `{}`)
	mismatch := row(t, enums.EventOrderPlaced, enums.AggregateWhatsAppMessage, `{}`)
	noAggregate := row(t, enums.EventOrderPlaced, enums.AggregateOrder, `{}`)
	noAggregate.AggregateID = uuid.Nil
	nullData := row(t, enums.EventOrderStatusChanged, enums.AggregateOrder, `null`)
	broken := row(t, enums.EventOrderStatusChanged, enums.AggregateOrder, `{}`)
	broken.Payload = json.RawMessage(`{"version":`)
	foreignID := row(t, enums.EventOrderStatusChanged, enums.AggregateOrder, `{}`)
	foreignID.ID = uuid.New()
	badBody := row(t, enums.EventOrderStatusChanged, enums.AggregateOrder, `{"status":42}`)

	cases := map[string]models.OutboxEvent{
		"unknown event":        unknown,
		"aggregate mismatch":   mismatch,
		"missing aggregate id": noAggregate,
		"null data":            nullData,
		"broken envelope":      broken,
		"envelope of another":  foreignID,
		"wrong body shape":     badBody,
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry), "got %T", err)
			assert.Equal(t, name == "unknown event", errors.Is(err, ErrUnroutable))
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	assert.ErrorContains(t, err, "whatsapp topic")
	_, err = NewEventRegistry(config.PubSubConfig{WhatsAppTopic: "wa"})
	assert.ErrorContains(t, err, "orders topic")
}
