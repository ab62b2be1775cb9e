package reports

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movements"
)

// History is the movement-log read surface reports need.
type History interface {
	ItemHistory(ctx context.Context, itemID id.ID) ([]entity.MovementRecord, error)
	Search(ctx context.Context, filter movements.Filter) (*movements.Page, error)
}

// Snapshot is the ledger read surface reports need.
type Snapshot interface {
	ItemLocations(ctx context.Context, itemID id.ID) ([]entity.InventoryEntry, error)
}

// Service provides report generation operations.
type Service struct {
	repo     Repository
	history  History
	snapshot Snapshot
	lookup   catalog.Lookup
}

// NewService creates a new reports service.
func NewService(repo Repository, history History, snapshot Snapshot, lookup catalog.Lookup) *Service {
	return &Service{
		repo:     repo,
		history:  history,
		snapshot: snapshot,
		lookup:   lookup,
	}
}

// ItemTimeline returns the ordered history and current placement of an item.
// An item with no movements yields an empty timeline, not an error.
func (s *Service) ItemTimeline(ctx context.Context, itemID id.ID) (*ItemTimeline, error) {
	item, err := s.lookup.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	records, err := s.history.ItemHistory(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item history: %w", err)
	}

	entries, err := s.snapshot.ItemLocations(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item locations: %w", err)
	}

	timeline := &ItemTimeline{
		Item:             *item,
		Movements:        records,
		CurrentLocations: make([]LocationQuantity, 0, len(entries)),
		TotalMovements:   len(records),
	}
	if timeline.Movements == nil {
		timeline.Movements = []entity.MovementRecord{}
	}

	for _, e := range entries {
		lq := LocationQuantity{
			LocationID: e.LocationID.String(),
			Quantity:   e.Quantity,
			UpdatedAt:  e.UpdatedAt,
		}
		if loc, err := s.lookup.GetLocation(ctx, e.LocationID); err == nil {
			lq.LocationName = loc.Name
		} else if !apperror.IsNotFound(err) {
			return nil, fmt.Errorf("get location: %w", err)
		}
		timeline.CurrentLocations = append(timeline.CurrentLocations, lq)
		timeline.TotalQuantity += e.Quantity
	}

	return timeline, nil
}

// MovementSummary aggregates movement activity over a date range.
func (s *Service) MovementSummary(ctx context.Context, filter SummaryFilter) (*MovementSummary, error) {
	if filter.FromDate != nil && filter.ToDate != nil && filter.FromDate.After(*filter.ToDate) {
		return nil, apperror.NewValidation("fromDate must be before toDate")
	}

	// Set default recent window
	if filter.RecentLimit <= 0 {
		filter.RecentLimit = 10
	}
	if filter.RecentLimit > 100 {
		filter.RecentLimit = 100
	}

	stats, err := s.repo.MovementStats(ctx, StatsFilter{FromDate: filter.FromDate, ToDate: filter.ToDate})
	if err != nil {
		return nil, fmt.Errorf("get movement stats: %w", err)
	}

	recent, err := s.history.Search(ctx, movements.Filter{
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Limit:    filter.RecentLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("get recent movements: %w", err)
	}

	summary := &MovementSummary{
		FromDate:          filter.FromDate,
		ToDate:            filter.ToDate,
		TotalMovements:    stats.TotalMovements,
		LogicalMovements:  stats.LogicalMovements,
		TotalItemsMoved:   stats.TotalItemsMoved,
		DistinctItems:     stats.DistinctItems,
		DistinctLocations: stats.DistinctLocations,
		MovementTypes:     breakdown(stats),
		RecentMovements:   recent.Items,
		EarliestMovement:  stats.Earliest,
		LatestMovement:    stats.Latest,
	}
	if summary.RecentMovements == nil {
		summary.RecentMovements = []entity.MovementRecord{}
	}

	return summary, nil
}

// breakdown lists every known type, zero counts included.
func breakdown(stats *MovementStats) map[string]TypeBreakdown {
	out := make(map[string]TypeBreakdown, len(entity.MovementTypes))
	for _, t := range entity.MovementTypes {
		ts := stats.ByType[t]
		out[string(t)] = TypeBreakdown{
			Count:      ts.Count,
			Quantity:   ts.Quantity,
			Percentage: types.Percentage(int64(ts.Count), int64(stats.TotalMovements)),
		}
	}
	return out
}
