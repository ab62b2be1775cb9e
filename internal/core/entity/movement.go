package entity

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType classifies an audit record.
type MovementType string

const (
	// MovementCreate brings quantity into existence at a location.
	MovementCreate MovementType = "create"
	// MovementMove is one leg of a transfer between two locations.
	MovementMove MovementType = "move"
	// MovementAdjust corrects the quantity at one location.
	MovementAdjust MovementType = "adjust"
	// MovementRemove takes quantity out of the system.
	MovementRemove MovementType = "remove"
)

// MovementTypes lists every type in reporting order.
var MovementTypes = []MovementType{MovementCreate, MovementMove, MovementAdjust, MovementRemove}

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementCreate, MovementMove, MovementAdjust, MovementRemove:
		return true
	}
	return false
}

// MovementRecord is one immutable audit-log row describing a single
// quantity change at one location. Records are never updated or deleted.
//
// Exactly one of FromLocationID / ToLocationID is set: From marks a
// decrement leg, To an increment leg. Both legs of a transfer share
// TransactionID and QuantityMoved.
type MovementRecord struct {
	ID            id.ID `db:"id" json:"id"`
	TransactionID id.ID `db:"transaction_id" json:"transactionId"`
	ItemID        id.ID `db:"item_id" json:"itemId"`

	FromLocationID *id.ID `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID `db:"to_location_id" json:"toLocationId,omitempty"`

	QuantityMoved  int64        `db:"quantity_moved" json:"quantityMoved"`
	QuantityBefore int64        `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  int64        `db:"quantity_after" json:"quantityAfter"`
	MovementType   MovementType `db:"movement_type" json:"movementType"`

	Reason         string       `db:"reason" json:"reason,omitempty"`
	Notes          string       `db:"notes" json:"notes,omitempty"`
	EstimatedValue *types.Money `db:"estimated_value" json:"estimatedValue,omitempty"`
	UserID         *string      `db:"user_id" json:"userId,omitempty"`
	SystemNotes    string       `db:"system_notes" json:"systemNotes,omitempty"`

	// Warnings raised by validation when the movement was committed.
	Warnings []string `db:"-" json:"warnings,omitempty"`
	// RuleMetadata holds the measured values behind those warnings.
	RuleMetadata map[string]any `db:"-" json:"ruleMetadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// LocationID returns whichever endpoint this leg touches.
func (m *MovementRecord) LocationID() id.ID {
	if m.FromLocationID != nil {
		return *m.FromLocationID
	}
	if m.ToLocationID != nil {
		return *m.ToLocationID
	}
	return id.ID{}
}

// SignedDelta is the change this leg applied to its location's quantity.
func (m *MovementRecord) SignedDelta() int64 {
	if m.FromLocationID != nil {
		return -m.QuantityMoved
	}
	return m.QuantityMoved
}

// Validate checks the leg invariant without touching storage.
func (m *MovementRecord) Validate() error {
	if id.IsNil(m.ItemID) {
		return apperror.NewValidation("item_id is required")
	}
	if !m.MovementType.IsValid() {
		return apperror.NewValidation("unknown movement type").WithDetail("movement_type", string(m.MovementType))
	}
	if m.QuantityMoved <= 0 {
		return apperror.NewInvalidMovement("quantity must be positive")
	}
	switch {
	case m.FromLocationID != nil && m.ToLocationID != nil:
		return apperror.NewInvalidMovement("a record describes one leg; set only one endpoint")
	case m.FromLocationID != nil:
		if m.QuantityAfter != m.QuantityBefore-m.QuantityMoved {
			return apperror.NewValidation("decrement leg does not balance").
				WithDetail("quantity_before", m.QuantityBefore).
				WithDetail("quantity_moved", m.QuantityMoved).
				WithDetail("quantity_after", m.QuantityAfter)
		}
	case m.ToLocationID != nil:
		if m.QuantityAfter != m.QuantityBefore+m.QuantityMoved {
			return apperror.NewValidation("increment leg does not balance").
				WithDetail("quantity_before", m.QuantityBefore).
				WithDetail("quantity_moved", m.QuantityMoved).
				WithDetail("quantity_after", m.QuantityAfter)
		}
	default:
		return apperror.NewInvalidMovement("a record needs a source or a destination")
	}
	if m.QuantityAfter < 0 {
		return apperror.NewInvalidMovement("quantity after cannot be negative")
	}
	return nil
}

// Replay folds records (in creation order) into per-location quantities.
// Locations that net to zero are omitted, matching ledger semantics.
func Replay(records []MovementRecord) map[id.ID]int64 {
	totals := make(map[id.ID]int64)
	for i := range records {
		loc := records[i].LocationID()
		totals[loc] += records[i].SignedDelta()
		if totals[loc] == 0 {
			delete(totals, loc)
		}
	}
	return totals
}
