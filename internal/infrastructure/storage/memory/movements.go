package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
)

var (
	_ movements.Repository = (*MovementRepo)(nil)
	_ reports.Repository   = (*MovementRepo)(nil)
)

// MovementRepo stores the append-only movement log.
type MovementRepo struct {
	store *Store
}

// NewMovementRepo creates a movement repository over store.
func NewMovementRepo(store *Store) *MovementRepo {
	return &MovementRepo{store: store}
}

// Append adds a record to the log.
func (r *MovementRepo) Append(ctx context.Context, record *entity.MovementRecord) error {
	defer r.store.lock(ctx)()
	r.store.records = append(r.store.records, *record)
	return nil
}

func matches(rec *entity.MovementRecord, f movements.Filter) bool {
	if f.ItemID != nil && rec.ItemID != *f.ItemID {
		return false
	}
	if f.LocationID != nil && !id.Equal(rec.FromLocationID, f.LocationID) && !id.Equal(rec.ToLocationID, f.LocationID) {
		return false
	}
	if f.TransactionID != nil && rec.TransactionID != *f.TransactionID {
		return false
	}
	if f.MovementType != nil && rec.MovementType != *f.MovementType {
		return false
	}
	if f.UserID != nil && (rec.UserID == nil || *rec.UserID != *f.UserID) {
		return false
	}
	if !inRange(rec.CreatedAt, f.FromDate, f.ToDate) {
		return false
	}
	if f.MinQuantity != nil && rec.QuantityMoved < *f.MinQuantity {
		return false
	}
	if f.MaxQuantity != nil && rec.QuantityMoved > *f.MaxQuantity {
		return false
	}
	return true
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

// Search returns a page of matching records, most recent first.
func (r *MovementRepo) Search(ctx context.Context, filter movements.Filter) ([]entity.MovementRecord, int, error) {
	defer r.store.lock(ctx)()

	// walk backwards so records sharing a timestamp stay newest-first
	matched := make([]entity.MovementRecord, 0)
	for i := len(r.store.records) - 1; i >= 0; i-- {
		if matches(&r.store.records[i], filter) {
			matched = append(matched, r.store.records[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	page := make([]entity.MovementRecord, end-start)
	copy(page, matched[start:end])
	return page, total, nil
}

// ListByItem returns the item's records in creation order.
func (r *MovementRepo) ListByItem(ctx context.Context, itemID id.ID) ([]entity.MovementRecord, error) {
	defer r.store.lock(ctx)()

	out := make([]entity.MovementRecord, 0)
	for _, rec := range r.store.records {
		if rec.ItemID == itemID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CountSince counts records created at or after since.
func (r *MovementRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	defer r.store.lock(ctx)()

	n := 0
	for _, rec := range r.store.records {
		if !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// CountDuplicates counts recent transactions identical to q.
func (r *MovementRepo) CountDuplicates(ctx context.Context, q movements.DuplicateQuery) (int, error) {
	defer r.store.lock(ctx)()

	type legs struct{ from, to bool }
	groups := make(map[id.ID]*legs)

	for _, rec := range r.store.records {
		if rec.ItemID != q.ItemID || rec.MovementType != q.MovementType || rec.QuantityMoved != q.Quantity {
			continue
		}
		if rec.CreatedAt.Before(q.Since) {
			continue
		}
		g, ok := groups[rec.TransactionID]
		if !ok {
			g = &legs{}
			groups[rec.TransactionID] = g
		}
		if q.FromLocationID != nil && id.Equal(rec.FromLocationID, q.FromLocationID) {
			g.from = true
		}
		if q.ToLocationID != nil && id.Equal(rec.ToLocationID, q.ToLocationID) {
			g.to = true
		}
	}

	n := 0
	for _, g := range groups {
		if (q.FromLocationID == nil || g.from) && (q.ToLocationID == nil || g.to) {
			n++
		}
	}
	return n, nil
}

// MovementStats aggregates records within the filter range.
func (r *MovementRepo) MovementStats(ctx context.Context, filter reports.StatsFilter) (*reports.MovementStats, error) {
	defer r.store.lock(ctx)()

	stats := &reports.MovementStats{ByType: make(map[entity.MovementType]reports.TypeStats)}
	txs := make(map[id.ID]struct{})
	items := make(map[id.ID]struct{})
	locations := make(map[id.ID]struct{})

	for i := range r.store.records {
		rec := &r.store.records[i]
		if !inRange(rec.CreatedAt, filter.FromDate, filter.ToDate) {
			continue
		}

		stats.TotalMovements++
		stats.TotalItemsMoved += rec.QuantityMoved
		txs[rec.TransactionID] = struct{}{}
		items[rec.ItemID] = struct{}{}
		locations[rec.LocationID()] = struct{}{}

		ts := stats.ByType[rec.MovementType]
		ts.Count++
		ts.Quantity += rec.QuantityMoved
		stats.ByType[rec.MovementType] = ts

		created := rec.CreatedAt
		if stats.Earliest == nil || created.Before(*stats.Earliest) {
			stats.Earliest = &created
		}
		if stats.Latest == nil || created.After(*stats.Latest) {
			latest := created
			stats.Latest = &latest
		}
	}

	stats.LogicalMovements = len(txs)
	stats.DistinctItems = len(items)
	stats.DistinctLocations = len(locations)
	return stats, nil
}
