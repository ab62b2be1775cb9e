// Package inventory exposes the inventory core operations: validated
// movements that mutate the ledger and append to the audit log in one
// transaction, rule administration and the read-side views.
package inventory

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/validation"
)

// MoveRequest asks to transfer quantity between two locations.
type MoveRequest struct {
	ItemID         id.ID  `json:"itemId"`
	FromLocationID id.ID  `json:"fromLocationId"`
	ToLocationID   id.ID  `json:"toLocationId"`
	Quantity       int64  `json:"quantity"`
	Reason         string `json:"reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// CreationRequest asks to bring new quantity into a location.
type CreationRequest struct {
	ItemID     id.ID  `json:"itemId"`
	LocationID id.ID  `json:"locationId"`
	Quantity   int64  `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// AdjustmentRequest asks to set the quantity at a location.
type AdjustmentRequest struct {
	ItemID     id.ID `json:"itemId"`
	LocationID id.ID `json:"locationId"`
	Quantity   int64 `json:"quantity"`

	// ExpectedQuantity guards against lost updates: when set, the adjustment
	// fails with ConcurrentModification unless the stored quantity matches.
	ExpectedQuantity *int64 `json:"expectedQuantity,omitempty"`

	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// RemovalRequest asks to take quantity out of the system.
type RemovalRequest struct {
	ItemID     id.ID  `json:"itemId"`
	LocationID id.ID  `json:"locationId"`
	Quantity   int64  `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// BulkItem is one movement of a batch.
type BulkItem struct {
	validation.Request
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// MovementResult is the outcome of one committed operation.
type MovementResult struct {
	Records  []entity.MovementRecord `json:"records"`
	Entries  []entity.InventoryEntry `json:"entries"`
	Warnings []string                `json:"warnings"`
}

// BulkOutcome is what happened to one batch item.
type BulkOutcome struct {
	Index     int                     `json:"index"`
	Committed bool                    `json:"committed"`
	Records   []entity.MovementRecord `json:"records,omitempty"`
	Errors    []string                `json:"errors,omitempty"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// BulkCommitResult is the outcome of committing a batch.
type BulkCommitResult struct {
	Atomic     bool                   `json:"atomic"`
	Committed  int                    `json:"committed"`
	Outcomes   []BulkOutcome          `json:"outcomes"`
	Validation *validation.BulkResult `json:"validation"`
}
