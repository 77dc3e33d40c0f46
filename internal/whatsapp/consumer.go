package whatsapp

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/registry"
)

const orderNotificationConsumer = "whatsapp-order-notifications"

// orderEvents lists the order payload versions this consumer understands.
var orderEvents = func() *registry.DecoderRegistry {
	r := registry.NewDecoderRegistry()
	registry.RegisterJSON[payloads.OrderPlacedEvent](r, enums.EventOrderPlaced, 1)
	registry.RegisterJSON[payloads.OrderStatusChangedEvent](r, enums.EventOrderStatusChanged, 1)
	return r
}()

type orderNotifier interface {
	QueueOrderUpdate(ctx context.Context, input OrderUpdateInput) (*MessageDTO, error)
}

// OrderConsumer watches order events and queues customer notifications.
type OrderConsumer struct {
	notifier     orderNotifier
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewOrderConsumer builds an order notification consumer.
func NewOrderConsumer(notifier orderNotifier, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*OrderConsumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("whatsapp service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &OrderConsumer{
		notifier:     notifier,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *OrderConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *OrderConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !orderEvents.Handles(eventType) {
		c.logg.Info(logCtx, "skipping non-order event")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	decoded, err := orderEvents.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	input, ok := orderUpdateFromEvent(decoded)
	if !ok {
		c.logg.Info(logCtx, "guest order, nothing to notify")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"order_number": input.OrderNumber,
		"customer_id":  input.CustomerID.String(),
		"status":       string(input.Status),
	})
	var queued *MessageDTO
	ran, err := c.idempotency.Once(ctx, orderNotificationConsumer, eventID, func(ctx context.Context) error {
		var qerr error
		queued, qerr = c.notifier.QueueOrderUpdate(ctx, input)
		return qerr
	})
	switch {
	case err != nil && !ran:
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	case err != nil:
		c.logg.Error(logCtx, "order notification failed", err)
		return processResult{nack: true}
	case !ran:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case queued == nil:
		c.logg.Info(logCtx, "customer not reachable on whatsapp")
		return processResult{ack: true}
	}
	c.logg.Info(c.logg.WithField(logCtx, "whatsapp_message_id", queued.ID.String()), "order update queued")
	return processResult{ack: true}
}

// orderUpdateFromEvent reports false when the order has no customer to notify.
func orderUpdateFromEvent(decoded any) (OrderUpdateInput, bool) {
	switch event := decoded.(type) {
	case payloads.OrderPlacedEvent:
		if event.CustomerID == nil {
			return OrderUpdateInput{}, false
		}
		total := event.Total.StringFixed(2)
		return OrderUpdateInput{
			CustomerID:  *event.CustomerID,
			OrderNumber: event.OrderNumber,
			Status:      event.Status,
			Total:       &total,
		}, true
	case payloads.OrderStatusChangedEvent:
		if event.CustomerID == nil {
			return OrderUpdateInput{}, false
		}
		return OrderUpdateInput{
			CustomerID:  *event.CustomerID,
			OrderNumber: event.OrderNumber,
			Status:      event.Status,
			Reason:      event.Reason,
		}, true
	default:
		return OrderUpdateInput{}, false
	}
}
