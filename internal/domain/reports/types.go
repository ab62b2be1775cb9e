// Package reports provides read-only views built from movement history and
// the current ledger snapshot.
package reports

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/catalog"
)

// --- Movement statistics ---

// StatsFilter bounds the aggregation. Nil bounds are open.
type StatsFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
}

// TypeStats is the raw aggregate of one movement type.
type TypeStats struct {
	Count    int   `db:"count"`
	Quantity int64 `db:"quantity"`
}

// MovementStats is the raw aggregate returned by the repository.
type MovementStats struct {
	TotalMovements    int                                `db:"total_movements"`
	LogicalMovements  int                                `db:"logical_movements"`
	TotalItemsMoved   int64                              `db:"total_items_moved"`
	DistinctItems     int                                `db:"distinct_items"`
	DistinctLocations int                                `db:"distinct_locations"`
	Earliest          *time.Time                         `db:"earliest"`
	Latest            *time.Time                         `db:"latest"`
	ByType            map[entity.MovementType]TypeStats `db:"-"`
}

// --- Movement summary ---

// SummaryFilter defines the movement summary request.
type SummaryFilter struct {
	FromDate *time.Time
	ToDate   *time.Time

	// RecentLimit is how many of the latest records to include.
	RecentLimit int
}

// TypeBreakdown is one movement type's share of the summary.
type TypeBreakdown struct {
	Count      int     `json:"count"`
	Quantity   int64   `json:"quantity"`
	Percentage float64 `json:"percentage"`
}

// MovementSummary reports movement activity over a date range.
//
// TotalMovements counts records, so a transfer contributes its two legs.
// LogicalMovements counts distinct transactions, so a transfer counts once.
type MovementSummary struct {
	FromDate *time.Time `json:"fromDate,omitempty"`
	ToDate   *time.Time `json:"toDate,omitempty"`

	TotalMovements    int                      `json:"totalMovements"`
	LogicalMovements  int                      `json:"logicalMovements"`
	TotalItemsMoved   int64                    `json:"totalItemsMoved"`
	DistinctItems     int                      `json:"distinctItems"`
	DistinctLocations int                      `json:"distinctLocations"`
	MovementTypes     map[string]TypeBreakdown `json:"movementTypes"`

	RecentMovements []entity.MovementRecord `json:"recentMovements"`

	EarliestMovement *time.Time `json:"earliestMovement,omitempty"`
	LatestMovement   *time.Time `json:"latestMovement,omitempty"`
}

// --- Item timeline ---

// LocationQuantity is the current quantity of the item at one location.
type LocationQuantity struct {
	LocationID   string    `json:"locationId"`
	LocationName string    `json:"locationName,omitempty"`
	Quantity     int64     `json:"quantity"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ItemTimeline is the full history of one item plus where it is now.
type ItemTimeline struct {
	Item             catalog.Item            `json:"item"`
	Movements        []entity.MovementRecord `json:"movements"`
	CurrentLocations []LocationQuantity      `json:"currentLocations"`
	TotalQuantity    int64                   `json:"totalQuantity"`
	TotalMovements   int                     `json:"totalMovements"`
}
