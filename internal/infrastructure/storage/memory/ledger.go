package memory

import (
	"bytes"
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo stores inventory entries.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a ledger repository over store.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

// GetEntry returns the entry or nil.
func (r *LedgerRepo) GetEntry(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error) {
	defer r.store.lock(ctx)()
	e, ok := r.store.entries[entryKey{itemID, locationID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// GetEntryForUpdate is GetEntry; the transaction already excludes other writers.
func (r *LedgerRepo) GetEntryForUpdate(ctx context.Context, itemID, locationID id.ID) (*entity.InventoryEntry, error) {
	return r.GetEntry(ctx, itemID, locationID)
}

// Apply persists a transition with an optimistic version check.
func (r *LedgerRepo) Apply(ctx context.Context, t entity.EntryTransition) error {
	defer r.store.lock(ctx)()

	key := entryKey{t.ItemID, t.LocationID}
	stored, exists := r.store.entries[key]

	switch t.Op {
	case entity.EntryOpNone:
		return nil
	case entity.EntryOpInsert:
		if exists {
			return conflict(t)
		}
		r.store.entries[key] = *t.After
	case entity.EntryOpUpdate:
		if !exists || stored.Version != t.ExpectedVersion() {
			return conflict(t)
		}
		r.store.entries[key] = *t.After
	case entity.EntryOpDelete:
		if !exists || stored.Version != t.ExpectedVersion() {
			return conflict(t)
		}
		delete(r.store.entries, key)
	}
	return nil
}

func conflict(t entity.EntryTransition) error {
	return apperror.NewConcurrentModification("inventory_entry", t.ItemID.String()+"@"+t.LocationID.String())
}

// ListEntries returns matching entries ordered by (location, item).
func (r *LedgerRepo) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]entity.InventoryEntry, error) {
	defer r.store.lock(ctx)()

	out := make([]entity.InventoryEntry, 0)
	for k, e := range r.store.entries {
		if filter.ItemID != nil && k.item != *filter.ItemID {
			continue
		}
		if filter.LocationID != nil && k.location != *filter.LocationID {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].LocationID[:], out[j].LocationID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].ItemID[:], out[j].ItemID[:]) < 0
	})
	return out, nil
}
