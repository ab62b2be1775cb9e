// Package ledger provides the authoritative quantity store keyed by (item, location).
package ledger

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines storage operations for ledger entries.
// Implementations must honour the transaction carried by ctx.
type Repository interface {
	// GetEntry returns the entry or nil when the item is absent from the location.
	GetEntry(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error)

	// GetEntryForUpdate is GetEntry with a row lock held until the transaction ends.
	GetEntryForUpdate(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error)

	// Apply persists a transition. Update and delete succeed only if the stored
	// version still equals t.ExpectedVersion(); insert fails if a row appeared
	// meanwhile. Both cases return an apperror ConcurrentModification.
	Apply(ctx context.Context, t entity.EntryTransition) error

	// ListEntries returns entries matching filter ordered by (location, item).
	ListEntries(ctx context.Context, filter EntryFilter) ([]entity.InventoryEntry, error)
}

// EntryFilter narrows ListEntries. Empty filter returns the whole snapshot.
type EntryFilter struct {
	ItemID     *id.ID
	LocationID *id.ID
}
