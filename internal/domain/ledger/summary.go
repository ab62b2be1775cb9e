package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
)

// SummaryFilter optionally narrows the snapshot to one location or one item.
type SummaryFilter struct {
	LocationID *id.ID
	ItemID     *id.ID
}

// LocationBreakdown aggregates one location in a summary.
type LocationBreakdown struct {
	LocationID    id.ID       `json:"locationId"`
	LocationName  string      `json:"locationName,omitempty"`
	ItemCount     int         `json:"itemCount"`
	TotalQuantity int64       `json:"totalQuantity"`
	TotalValue    types.Money `json:"totalValue"`
}

// CategoryBreakdown aggregates one item category in a summary.
type CategoryBreakdown struct {
	Category      string      `json:"category"`
	ItemCount     int         `json:"itemCount"`
	TotalQuantity int64       `json:"totalQuantity"`
	TotalValue    types.Money `json:"totalValue"`
}

// Summary is the aggregate view of the current snapshot.
type Summary struct {
	TotalItems     int                 `json:"totalItems"`
	TotalQuantity  int64               `json:"totalQuantity"`
	TotalLocations int                 `json:"totalLocations"`
	TotalValue     types.Money         `json:"totalValue"`
	ByLocation     []LocationBreakdown `json:"byLocation"`
	ByCategory     []CategoryBreakdown `json:"byCategory"`
}

// LocationReportLine is one item held at a location.
type LocationReportLine struct {
	ItemID     id.ID       `json:"itemId"`
	ItemName   string      `json:"itemName,omitempty"`
	Category   string      `json:"category,omitempty"`
	Quantity   int64       `json:"quantity"`
	UnitValue  types.Money `json:"unitValue"`
	TotalValue types.Money `json:"totalValue"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// LocationReport is the itemized inventory of one location.
type LocationReport struct {
	Location      catalog.Location     `json:"location"`
	TotalItems    int                  `json:"totalItems"`
	TotalQuantity int64                `json:"totalQuantity"`
	TotalValue    types.Money          `json:"totalValue"`
	Items         []LocationReportLine `json:"items"`
}

const uncategorized = "uncategorized"

// Summary aggregates the current snapshot, optionally filtered.
// Items missing from the catalog still count towards quantities but carry no value.
func (s *Service) Summary(ctx context.Context, filter SummaryFilter) (*Summary, error) {
	entries, err := s.repo.ListEntries(ctx, EntryFilter{ItemID: filter.ItemID, LocationID: filter.LocationID})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	items, err := catalog.Items(ctx, s.lookup, itemIDs(entries))
	if err != nil {
		return nil, fmt.Errorf("resolve items: %w", err)
	}

	out := &Summary{TotalValue: types.Zero()}
	distinctItems := make(map[id.ID]struct{})
	byLocation := make(map[id.ID]*LocationBreakdown)
	byCategory := make(map[string]*CategoryBreakdown)
	categoryItems := make(map[string]map[id.ID]struct{})

	for _, e := range entries {
		value := types.Zero()
		category := uncategorized
		if item, ok := items[e.ItemID]; ok {
			value = types.Extend(item.Value, e.Quantity)
			if item.Category != "" {
				category = item.Category
			}
		}

		distinctItems[e.ItemID] = struct{}{}
		out.TotalQuantity += e.Quantity
		out.TotalValue = out.TotalValue.Add(value)

		loc, ok := byLocation[e.LocationID]
		if !ok {
			loc = &LocationBreakdown{LocationID: e.LocationID, TotalValue: types.Zero()}
			byLocation[e.LocationID] = loc
		}
		loc.ItemCount++
		loc.TotalQuantity += e.Quantity
		loc.TotalValue = loc.TotalValue.Add(value)

		cat, ok := byCategory[category]
		if !ok {
			cat = &CategoryBreakdown{Category: category, TotalValue: types.Zero()}
			byCategory[category] = cat
			categoryItems[category] = make(map[id.ID]struct{})
		}
		categoryItems[category][e.ItemID] = struct{}{}
		cat.TotalQuantity += e.Quantity
		cat.TotalValue = cat.TotalValue.Add(value)
	}

	out.TotalItems = len(distinctItems)
	out.TotalLocations = len(byLocation)

	out.ByLocation = make([]LocationBreakdown, 0, len(byLocation))
	for locID, b := range byLocation {
		if loc, err := s.lookup.GetLocation(ctx, locID); err == nil {
			b.LocationName = loc.Name
		}
		out.ByLocation = append(out.ByLocation, *b)
	}
	sort.Slice(out.ByLocation, func(i, j int) bool {
		return out.ByLocation[i].TotalQuantity > out.ByLocation[j].TotalQuantity
	})

	out.ByCategory = make([]CategoryBreakdown, 0, len(byCategory))
	for name, b := range byCategory {
		b.ItemCount = len(categoryItems[name])
		out.ByCategory = append(out.ByCategory, *b)
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		return out.ByCategory[i].Category < out.ByCategory[j].Category
	})

	return out, nil
}

// LocationReport returns the itemized inventory of one location.
// Fails with NotFound when the location does not exist.
func (s *Service) LocationReport(ctx context.Context, locationID id.ID) (*LocationReport, error) {
	loc, err := s.lookup.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	entries, err := s.LocationItems(ctx, locationID)
	if err != nil {
		return nil, err
	}

	items, err := catalog.Items(ctx, s.lookup, itemIDs(entries))
	if err != nil {
		return nil, fmt.Errorf("resolve items: %w", err)
	}

	report := &LocationReport{
		Location:   *loc,
		TotalValue: types.Zero(),
		Items:      make([]LocationReportLine, 0, len(entries)),
	}

	for _, e := range entries {
		line := LocationReportLine{
			ItemID:     e.ItemID,
			Quantity:   e.Quantity,
			UnitValue:  types.Zero(),
			TotalValue: types.Zero(),
			UpdatedAt:  e.UpdatedAt,
		}
		if item, ok := items[e.ItemID]; ok {
			line.ItemName = item.Name
			line.Category = item.Category
			line.UnitValue = item.Value
			line.TotalValue = types.Extend(item.Value, e.Quantity)
		}
		report.TotalQuantity += e.Quantity
		report.TotalValue = report.TotalValue.Add(line.TotalValue)
		report.Items = append(report.Items, line)
	}
	report.TotalItems = len(report.Items)

	return report, nil
}

func itemIDs(entries []entity.InventoryEntry) []id.ID {
	out := make([]id.ID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ItemID)
	}
	return out
}
