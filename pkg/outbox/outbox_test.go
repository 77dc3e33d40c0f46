package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

func TestEmitUsesRowIDAsEnvelopeEventID(t *testing.T) {
	conn := dbtest.Open(t)
	eventID := uuid.New()
	svc := NewService(NewRepository(conn), nil)
	svc.newID = func() uuid.UUID { return eventID }

	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "staff"}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data:          map[string]string{"orderNumber": "ORD-20260310-0001"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", eventID).Error)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	envelope, decodedID, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, eventID, decodedID)
	assert.Equal(t, CurrentVersion, envelope.Version)
	assert.Equal(t, actor, envelope.Actor)
	assert.JSONEq(t, `{"orderNumber":"ORD-20260310-0001"}`, string(envelope.Data))
}

func TestEmitRejectsBadEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPlaced}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "order.exploded", AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderPlaced}))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelopeRequiresEventID(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte(`{"version":1,"data":{}}`))
	assert.ErrorIs(t, err, errMissingEventID)

	_, _, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"nope","data":{}}`))
	assert.Error(t, err)

	env := PayloadEnvelope{Data: []byte(" null ")}
	assert.False(t, env.HasData())
}

func TestDeadLetterInsertAndRetention(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  7,
	}
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.AddDate(0, 2, 0)

	cause := errors.New(strings.Repeat("é", maxDeadLetterMessage))
	require.NoError(t, repo.InsertTx(conn, DeadLetter(event, enums.OutboxDLQReasonMaxAttempts, cause, old)))
	require.NoError(t, repo.InsertTx(conn, DeadLetter(event, enums.OutboxDLQReasonUnroutable, nil, recent)))
	assert.Error(t, repo.InsertTx(conn, DeadLetter(event, "gave_up", nil, recent)))

	var rows []models.OutboxDLQ
	require.NoError(t, conn.Order("failed_at").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ErrorMessage)
	assert.LessOrEqual(t, len(*rows[0].ErrorMessage), maxDeadLetterMessage)
	assert.Equal(t, 7, rows[0].AttemptCount)
	assert.Nil(t, rows[1].ErrorMessage)

	deleted, err := repo.DeleteBefore(context.Background(), old.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestClipMessageKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ab", clipMessage("ab", 4))
	assert.Equal(t, "a", clipMessage("aé", 2))
	assert.Equal(t, "aé", clipMessage("aéb", 3))
}
