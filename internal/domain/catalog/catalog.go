// Package catalog describes the item and location records owned by the
// cataloging subsystems. The inventory core only reads them: to validate
// references, to price movements and to enforce capacity and status rules.
package catalog

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// ItemStatus is the lifecycle state of an item.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusReserved ItemStatus = "reserved"
	ItemStatusDamaged  ItemStatus = "damaged"
	ItemStatusDisposed ItemStatus = "disposed"
)

// Item is the subset of an item record the core needs.
type Item struct {
	ID       id.ID       `db:"id" json:"id"`
	Name     string      `db:"name" json:"name"`
	Category string      `db:"category" json:"category,omitempty"`
	Status   ItemStatus  `db:"status" json:"status"`
	Value    types.Money `db:"value" json:"value"`
}

// Location is the subset of a location record the core needs.
type Location struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	ParentID *id.ID `db:"parent_id" json:"parentId,omitempty"`

	// Capacity is the maximum total quantity the location may hold; nil is unbounded.
	Capacity *int64 `db:"capacity" json:"capacity,omitempty"`
}

// Lookup resolves items and locations.
// Both methods return an apperror NotFound when the record does not exist.
type Lookup interface {
	GetItem(ctx context.Context, itemID id.ID) (*Item, error)
	GetLocation(ctx context.Context, locationID id.ID) (*Location, error)
}

// Items resolves a set of items, skipping ids that do not exist.
func Items(ctx context.Context, lookup Lookup, ids []id.ID) (map[id.ID]*Item, error) {
	out := make(map[id.ID]*Item, len(ids))
	for _, itemID := range ids {
		if _, seen := out[itemID]; seen {
			continue
		}
		item, err := lookup.GetItem(ctx, itemID)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[itemID] = item
	}
	return out, nil
}
