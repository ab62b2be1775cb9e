package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/movements"
	"stockledger/internal/infrastructure/storage/postgres"
)

func outboxMessage() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: movements.AggregateItem,
		AggregateID:   id.New(),
		EventType:     movements.EventMovementRecorded,
		Payload:       []byte(`{"quantityMoved":5}`),
		CreatedAt:     time.Now(),
	}
}

func TestOutboxHandler_KeysByAggregate(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer func() { _ = producer.Close() }()

	msg := outboxMessage()
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		key, err := pm.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != msg.AggregateID.String() {
			return errors.New("unexpected key " + string(key))
		}
		if pm.Topic != DefaultTopic {
			return errors.New("unexpected topic " + pm.Topic)
		}
		return nil
	})

	h := NewOutboxHandler(producer, "")
	require.NoError(t, h.Handle(context.Background(), msg))
}

func TestOutboxHandler_PropagatesFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer func() { _ = producer.Close() }()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	h := NewOutboxHandler(producer, "custom.topic")
	err := h.Handle(context.Background(), outboxMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestOutboxHandler_Headers(t *testing.T) {
	h := NewOutboxHandler(nil, "t")
	msg := outboxMessage()

	pm := h.message(msg)
	headers := make(map[string]string, len(pm.Headers))
	for _, hd := range pm.Headers {
		headers[string(hd.Key)] = string(hd.Value)
	}

	assert.Equal(t, movements.EventMovementRecorded, headers["event-type"])
	assert.Equal(t, msg.ID.String(), headers["event-id"])
	assert.Equal(t, movements.AggregateItem, headers["aggregate-type"])
}

func TestOutboxHandler_CancelledContext(t *testing.T) {
	h := NewOutboxHandler(nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, h.Handle(ctx, outboxMessage()), context.Canceled)
}
