package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
)

type chunkDispatcher interface {
	DispatchChunk(ctx context.Context, ids []uuid.UUID) error
}

// DispatchConsumer drains whatsapp.dispatch chunks. Redelivered chunks are
// safe because only queued or retrying messages are claimed.
type DispatchConsumer struct {
	dispatcher   chunkDispatcher
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewDispatchConsumer(dispatcher chunkDispatcher, subscription *pubsub.Subscriber, logg *logger.Logger) (*DispatchConsumer, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("whatsapp subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &DispatchConsumer{dispatcher: dispatcher, subscription: subscription, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *DispatchConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *DispatchConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})
	if eventType != enums.EventWhatsAppDispatch {
		c.logg.Info(logCtx, "skipping non-dispatch event")
		return processResult{ack: true}
	}

	envelope, _, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	var payload payloads.WhatsAppDispatchEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"chunk":    payload.Chunk,
		"messages": len(payload.MessageIDs),
		"retry":    payload.Retry,
	})
	if err := c.dispatcher.DispatchChunk(ctx, payload.MessageIDs); err != nil {
		if errors.Is(err, context.Canceled) {
			c.logg.Warn(logCtx, "dispatch interrupted by shutdown")
		} else {
			c.logg.Error(logCtx, "dispatch chunk failed", err)
		}
		return processResult{nack: true}
	}
	c.logg.Info(logCtx, "dispatch chunk done")
	return processResult{ack: true}
}
