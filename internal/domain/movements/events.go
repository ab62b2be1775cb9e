package movements

import (
	"context"

	"stockledger/internal/core/id"
)

// EventMovementRecorded is emitted once per appended record.
const EventMovementRecorded = "MovementRecorded"

// AggregateItem is the aggregate type of movement events. The aggregate id
// is the item id, so every event of one item lands on the same partition.
const AggregateItem = "InventoryItem"

// Event is a domain event written to the transactional outbox.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher writes events within the caller's transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
