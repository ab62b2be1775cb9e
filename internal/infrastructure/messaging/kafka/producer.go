// Package kafka delivers outbox messages to Kafka.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// DefaultTopic carries every movement event.
const DefaultTopic = "inventory.movements"

// Config configures the producer.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	Acks     string // "0", "1" or "all"
	Retries  int
	Timeout  time.Duration
}

// NewSyncProducer builds an idempotent sarama producer from cfg.
func NewSyncProducer(cfg Config) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}

	switch cfg.Acks {
	case "0":
		// Idempotence requires acks from all replicas.
		sc.Producer.Idempotent = false
		sc.Producer.RequiredAcks = sarama.NoResponse
	case "1":
		sc.Producer.Idempotent = false
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

var _ postgres.OutboxHandler = (*OutboxHandler)(nil)

// OutboxHandler publishes outbox messages to one topic, keyed by aggregate
// id so all events of an item stay ordered on a single partition.
type OutboxHandler struct {
	producer sarama.SyncProducer
	topic    string
}

// NewOutboxHandler creates a handler over producer.
func NewOutboxHandler(producer sarama.SyncProducer, topic string) *OutboxHandler {
	if topic == "" {
		topic = DefaultTopic
	}
	return &OutboxHandler{producer: producer, topic: topic}
}

// Handle sends msg and waits for the broker acknowledgement.
func (h *OutboxHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := h.producer.SendMessage(h.message(msg))
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.EventType, err)
	}

	logger.Debug(ctx, "event published to kafka",
		"topic", h.topic,
		"partition", partition,
		"offset", offset,
		"event_type", msg.EventType,
		"message_id", msg.ID,
	)
	return nil
}

func (h *OutboxHandler) message(msg *postgres.OutboxMessage) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: h.topic,
		Key:   sarama.StringEncoder(msg.AggregateID.String()),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(msg.EventType)},
			{Key: []byte("event-id"), Value: []byte(msg.ID.String())},
			{Key: []byte("aggregate-type"), Value: []byte(msg.AggregateType)},
			{Key: []byte("timestamp"), Value: []byte(msg.CreatedAt.UTC().Format(time.RFC3339Nano))},
		},
		Timestamp: msg.CreatedAt,
	}
}

// Close closes the underlying producer.
func (h *OutboxHandler) Close() error {
	if h.producer != nil {
		return h.producer.Close()
	}
	return nil
}
