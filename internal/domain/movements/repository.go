// Package movements provides the append-only movement audit log.
package movements

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines storage operations for movement records.
// There is no update or delete: records are immutable once appended.
type Repository interface {
	// Append inserts one record within the transaction carried by ctx.
	Append(ctx context.Context, record *entity.MovementRecord) error

	// Search returns one page of records matching filter, most recent first,
	// plus the total number of matches.
	Search(ctx context.Context, filter Filter) ([]entity.MovementRecord, int, error)

	// ListByItem returns the full history of an item in creation order.
	ListByItem(ctx context.Context, itemID id.ID) ([]entity.MovementRecord, error)

	// CountSince counts records created at or after since.
	CountSince(ctx context.Context, since time.Time) (int, error)

	// CountDuplicates counts distinct transactions matching q.
	CountDuplicates(ctx context.Context, q DuplicateQuery) (int, error)
}

// Filter for movement history search. Nil fields are not applied.
type Filter struct {
	ItemID        *id.ID
	LocationID    *id.ID // matches either endpoint
	TransactionID *id.ID
	MovementType  *entity.MovementType
	UserID        *string
	FromDate      *time.Time
	ToDate        *time.Time
	MinQuantity   *int64
	MaxQuantity   *int64

	Limit  int
	Offset int
}

// DuplicateQuery describes a movement to look for among recent records.
// A transaction matches when it recorded the same item, type and quantity
// and its legs touch the same endpoints.
type DuplicateQuery struct {
	ItemID         id.ID
	FromLocationID *id.ID
	ToLocationID   *id.ID
	Quantity       int64
	MovementType   entity.MovementType
	Since          time.Time
}

// Page is one page of search results.
type Page struct {
	Items      []entity.MovementRecord `json:"items"`
	TotalCount int                     `json:"totalCount"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}
