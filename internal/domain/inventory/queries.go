package inventory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
)

// GetItemLocations lists every location holding the item.
func (s *Service) GetItemLocations(ctx context.Context, itemID id.ID) (out []entity.InventoryEntry, err error) {
	ctx, span := startSpan(ctx, "GetItemLocations", attribute.String("item_id", itemID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.lookup.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	if s.views != nil {
		if cached, ok := s.views.ItemLocations(ctx, itemID); ok {
			return cached, nil
		}
	}

	out, err = s.ledger.ItemLocations(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.InventoryEntry{}
	}

	if s.views != nil {
		s.views.SetItemLocations(ctx, itemID, out)
	}
	return out, nil
}

// GetLocationItems lists every item held at the location.
func (s *Service) GetLocationItems(ctx context.Context, locationID id.ID) (out []entity.InventoryEntry, err error) {
	ctx, span := startSpan(ctx, "GetLocationItems", attribute.String("location_id", locationID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.lookup.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}

	if s.views != nil {
		if cached, ok := s.views.LocationItems(ctx, locationID); ok {
			return cached, nil
		}
	}

	out, err = s.ledger.LocationItems(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.InventoryEntry{}
	}

	if s.views != nil {
		s.views.SetLocationItems(ctx, locationID, out)
	}
	return out, nil
}

// GetInventorySummary aggregates the current snapshot.
func (s *Service) GetInventorySummary(ctx context.Context, filter ledger.SummaryFilter) (out *ledger.Summary, err error) {
	ctx, span := startSpan(ctx, "GetInventorySummary")
	defer func() { endSpan(span, err) }()

	return s.ledger.Summary(ctx, filter)
}

// GetLocationReport itemizes one location.
func (s *Service) GetLocationReport(ctx context.Context, locationID id.ID) (out *ledger.LocationReport, err error) {
	ctx, span := startSpan(ctx, "GetLocationReport", attribute.String("location_id", locationID.String()))
	defer func() { endSpan(span, err) }()

	return s.ledger.LocationReport(ctx, locationID)
}

// GetMovementHistory searches the audit log, most recent first.
func (s *Service) GetMovementHistory(ctx context.Context, filter movements.Filter) (out *movements.Page, err error) {
	ctx, span := startSpan(ctx, "GetMovementHistory")
	defer func() { endSpan(span, err) }()

	return s.recorder.Search(ctx, filter)
}

// GetItemTimeline returns the full history and current placement of an item.
func (s *Service) GetItemTimeline(ctx context.Context, itemID id.ID) (out *reports.ItemTimeline, err error) {
	ctx, span := startSpan(ctx, "GetItemTimeline", attribute.String("item_id", itemID.String()))
	defer func() { endSpan(span, err) }()

	return s.reports.ItemTimeline(ctx, itemID)
}

// GetMovementSummary aggregates movement activity over a date range.
func (s *Service) GetMovementSummary(ctx context.Context, filter reports.SummaryFilter) (out *reports.MovementSummary, err error) {
	ctx, span := startSpan(ctx, "GetMovementSummary")
	defer func() { endSpan(span, err) }()

	return s.reports.MovementSummary(ctx, filter)
}
