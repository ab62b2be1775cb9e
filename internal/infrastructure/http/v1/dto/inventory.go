package dto

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/validation"
)

// --- Request DTOs ---

// BulkRequest carries a batch for validation or commit.
type BulkRequest struct {
	Items  []inventory.BulkItem `json:"items" binding:"required,min=1"`
	Atomic bool                 `json:"atomic"`
}

// Requests strips the reason/notes so the batch can be validated.
func (r *BulkRequest) Requests() []validation.Request {
	out := make([]validation.Request, len(r.Items))
	for i, item := range r.Items {
		out[i] = item.Request
	}
	return out
}

// RuleOverridesRequest patches the rule set.
type RuleOverridesRequest struct {
	Rules map[string]validation.RuleOverride `json:"rules" binding:"required"`
	Mode  validation.OverrideMode            `json:"mode"`
}

// OverrideMode defaults to merge.
func (r *RuleOverridesRequest) OverrideMode() (validation.OverrideMode, error) {
	switch r.Mode {
	case "":
		return validation.OverrideMerge, nil
	case validation.OverrideMerge, validation.OverrideReplace:
		return r.Mode, nil
	default:
		return "", apperror.NewValidation("unknown override mode").WithDetail("mode", r.Mode)
	}
}

// --- Query DTOs ---

// MovementHistoryQuery is the query string of GET /movements.
type MovementHistoryQuery struct {
	PaginationRequest
	ItemID        string `form:"itemId"`
	LocationID    string `form:"locationId"`
	TransactionID string `form:"transactionId"`
	MovementType  string `form:"movementType"`
	UserID        string `form:"userId"`
	FromDate      string `form:"fromDate"`
	ToDate        string `form:"toDate"`
	MinQuantity   *int64 `form:"minQuantity"`
	MaxQuantity   *int64 `form:"maxQuantity"`
}

// ToFilter converts the query into a movement log filter.
func (q *MovementHistoryQuery) ToFilter() (movements.Filter, error) {
	q.Defaults()
	f := movements.Filter{
		MinQuantity: q.MinQuantity,
		MaxQuantity: q.MaxQuantity,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}

	var err error
	if f.ItemID, err = parseOptionalID("itemId", q.ItemID); err != nil {
		return f, err
	}
	if f.LocationID, err = parseOptionalID("locationId", q.LocationID); err != nil {
		return f, err
	}
	if f.TransactionID, err = parseOptionalID("transactionId", q.TransactionID); err != nil {
		return f, err
	}
	if f.FromDate, err = parseOptionalTime("fromDate", q.FromDate); err != nil {
		return f, err
	}
	if f.ToDate, err = parseOptionalTime("toDate", q.ToDate); err != nil {
		return f, err
	}
	if q.MovementType != "" {
		mt := entity.MovementType(q.MovementType)
		if !mt.IsValid() {
			return f, apperror.NewValidation("invalid movementType").WithDetail("movementType", q.MovementType)
		}
		f.MovementType = &mt
	}
	if q.UserID != "" {
		user := q.UserID
		f.UserID = &user
	}
	return f, nil
}

// MovementSummaryQuery is the query string of GET /movements/summary.
type MovementSummaryQuery struct {
	FromDate    string `form:"fromDate"`
	ToDate      string `form:"toDate"`
	RecentLimit int    `form:"recentLimit" binding:"omitempty,min=0,max=100"`
}

// ToFilter converts the query into a summary filter.
func (q *MovementSummaryQuery) ToFilter() (reports.SummaryFilter, error) {
	f := reports.SummaryFilter{RecentLimit: q.RecentLimit}
	var err error
	if f.FromDate, err = parseOptionalTime("fromDate", q.FromDate); err != nil {
		return f, err
	}
	if f.ToDate, err = parseOptionalTime("toDate", q.ToDate); err != nil {
		return f, err
	}
	return f, nil
}

// InventorySummaryQuery is the query string of GET /summary.
type InventorySummaryQuery struct {
	LocationID string `form:"locationId"`
	ItemID     string `form:"itemId"`
}

// ToFilter converts the query into a ledger summary filter.
func (q *InventorySummaryQuery) ToFilter() (ledger.SummaryFilter, error) {
	var (
		f   ledger.SummaryFilter
		err error
	)
	if f.LocationID, err = parseOptionalID("locationId", q.LocationID); err != nil {
		return f, err
	}
	if f.ItemID, err = parseOptionalID("itemId", q.ItemID); err != nil {
		return f, err
	}
	return f, nil
}

// --- Response DTOs ---

// RulesResponse lists the effective rule configuration.
type RulesResponse struct {
	Rules map[string]validation.RuleConfig `json:"rules"`
}
