// Package entity provides the inventory core's domain entities and the pure
// state transitions applied to them.
package entity

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// InventoryEntry is the current quantity of one item at one location.
// An entry exists only while Quantity > 0; reaching zero deletes it.
type InventoryEntry struct {
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	Quantity int64 `db:"quantity" json:"quantity"`

	// Version for optimistic locking (starts at 1, bumped on every update)
	Version int `db:"version" json:"version"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// EntryOp tells the repository how to persist a transition.
type EntryOp int

const (
	EntryOpNone EntryOp = iota
	EntryOpInsert
	EntryOpUpdate
	EntryOpDelete
)

func (o EntryOp) String() string {
	switch o {
	case EntryOpInsert:
		return "insert"
	case EntryOpUpdate:
		return "update"
	case EntryOpDelete:
		return "delete"
	default:
		return "none"
	}
}

// EntryTransition is the before/after snapshot of one ledger key.
// Before is nil when the entry was absent; After is nil when it is deleted.
type EntryTransition struct {
	ItemID     id.ID
	LocationID id.ID
	Before     *InventoryEntry
	After      *InventoryEntry
	Op         EntryOp
}

// QuantityBefore returns the pre-transition quantity (0 when absent).
func (t EntryTransition) QuantityBefore() int64 {
	if t.Before == nil {
		return 0
	}
	return t.Before.Quantity
}

// QuantityAfter returns the post-transition quantity (0 when deleted).
func (t EntryTransition) QuantityAfter() int64 {
	if t.After == nil {
		return 0
	}
	return t.After.Quantity
}

// ExpectedVersion is the version the stored row must still have at commit.
func (t EntryTransition) ExpectedVersion() int {
	if t.Before == nil {
		return 0
	}
	return t.Before.Version
}

// ApplyDelta computes the transition of adding delta to current.
// current is nil when no entry exists. The result never holds a zero or
// negative entry: zero deletes, negative fails with InsufficientQuantity.
func ApplyDelta(current *InventoryEntry, itemID, locationID id.ID, delta int64, now time.Time) (EntryTransition, error) {
	t := EntryTransition{ItemID: itemID, LocationID: locationID, Before: current}

	available := int64(0)
	if current != nil {
		available = current.Quantity
	}

	next := available + delta
	switch {
	case next < 0:
		return t, apperror.NewInsufficientQuantity(itemID.String(), locationID.String(), -delta, available)
	case delta == 0:
		t.After = current
		t.Op = EntryOpNone
	case current == nil:
		t.After = &InventoryEntry{
			ItemID:     itemID,
			LocationID: locationID,
			Quantity:   next,
			Version:    1,
			UpdatedAt:  now,
		}
		t.Op = EntryOpInsert
	case next == 0:
		t.After = nil
		t.Op = EntryOpDelete
	default:
		after := *current
		after.Quantity = next
		after.Version = current.Version + 1
		after.UpdatedAt = now
		t.After = &after
		t.Op = EntryOpUpdate
	}

	return t, nil
}

// TransferPlan is the pair of transitions making up one move.
type TransferPlan struct {
	Quantity int64
	Source   EntryTransition
	Dest     EntryTransition
}

// PlanTransfer computes both halves of moving quantity from source to dest.
// dest may already hold the item; the quantity is merged into it.
func PlanTransfer(source, dest *InventoryEntry, itemID, fromID, toID id.ID, quantity int64, now time.Time) (TransferPlan, error) {
	if fromID == toID {
		return TransferPlan{}, apperror.NewInvalidMovement("source and destination are the same location")
	}
	if quantity <= 0 {
		return TransferPlan{}, apperror.NewInvalidMovement("quantity must be positive")
	}

	src, err := ApplyDelta(source, itemID, fromID, -quantity, now)
	if err != nil {
		return TransferPlan{}, err
	}
	dst, err := ApplyDelta(dest, itemID, toID, quantity, now)
	if err != nil {
		return TransferPlan{}, err
	}

	return TransferPlan{Quantity: quantity, Source: src, Dest: dst}, nil
}
