// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// --- Pagination ---

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// PaginationRequest contains limit/offset paging parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
}

// --- Parsing helpers ---

// parseOptionalID parses a query value, naming the field on failure.
func parseOptionalID(field, raw string) (*id.ID, error) {
	parsed, err := id.ParseOptional(raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid " + field + " format").WithDetail("field", field)
	}
	return parsed, nil
}

// parseOptionalTime accepts RFC 3339 timestamps or plain dates.
func parseOptionalTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.NewValidation("invalid " + field + " format").WithDetail("field", field)
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
