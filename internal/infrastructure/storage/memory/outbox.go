package memory

import (
	"context"

	"stockledger/internal/domain/movements"
)

var _ movements.Publisher = (*Outbox)(nil)

// Outbox collects events in the store; rolled back with the transaction.
type Outbox struct {
	store *Store
}

// NewOutbox creates an outbox over store.
func NewOutbox(store *Store) *Outbox {
	return &Outbox{store: store}
}

// Publish appends an event.
func (o *Outbox) Publish(ctx context.Context, event movements.Event) error {
	defer o.store.lock(ctx)()
	o.store.outbox = append(o.store.outbox, event)
	return nil
}

// Events returns a copy of every published event.
func (o *Outbox) Events(ctx context.Context) []movements.Event {
	defer o.store.lock(ctx)()
	out := make([]movements.Event, len(o.store.outbox))
	copy(out, o.store.outbox)
	return out
}
