package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// InventoryHandler exposes the inventory core over HTTP.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		service:     service,
	}
}

// --- Movements ---

// Move handles POST /inventory/moves
func (h *InventoryHandler) Move(c *gin.Context) {
	var req inventory.MoveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.MoveItem(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Create handles POST /inventory/creations
func (h *InventoryHandler) Create(c *gin.Context) {
	var req inventory.CreationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordItemCreation(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Adjust handles POST /inventory/adjustments
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req inventory.AdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordQuantityAdjustment(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Remove handles POST /inventory/removals
func (h *InventoryHandler) Remove(c *gin.Context) {
	var req inventory.RemovalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RecordItemRemoval(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// --- Validation and bulk ---

// Validate handles POST /inventory/validate
func (h *InventoryHandler) Validate(c *gin.Context) {
	var req inventory.BulkItem
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.ValidateMovement(c.Request.Context(), req.Request)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// ValidateBulk handles POST /inventory/validate/bulk
func (h *InventoryHandler) ValidateBulk(c *gin.Context) {
	var req dto.BulkRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.ValidateBulkMovement(c.Request.Context(), req.Requests(), req.Atomic)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// CommitBulk handles POST /inventory/bulk
func (h *InventoryHandler) CommitBulk(c *gin.Context) {
	var req dto.BulkRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.CommitBulkMovement(c.Request.Context(), req.Items, req.Atomic)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// --- Rules ---

// GetRules handles GET /inventory/rules
func (h *InventoryHandler) GetRules(c *gin.Context) {
	h.OK(c, dto.RulesResponse{Rules: h.service.Rules()})
}

// UpdateRules handles PATCH /inventory/rules
func (h *InventoryHandler) UpdateRules(c *gin.Context) {
	var req dto.RuleOverridesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	mode, err := req.OverrideMode()
	if err != nil {
		h.Error(c, err)
		return
	}
	rules, err := h.service.ApplyRuleOverrides(c.Request.Context(), req.Rules, mode)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.RulesResponse{Rules: rules})
}

// --- Read views ---

// ItemLocations handles GET /inventory/items/:id/locations
func (h *InventoryHandler) ItemLocations(c *gin.Context) {
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.GetItemLocations(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entries)
}

// LocationItems handles GET /inventory/locations/:id/items
func (h *InventoryHandler) LocationItems(c *gin.Context) {
	locationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.GetLocationItems(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entries)
}

// Summary handles GET /inventory/summary
func (h *InventoryHandler) Summary(c *gin.Context) {
	var q dto.InventorySummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	summary, err := h.service.GetInventorySummary(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// LocationReport handles GET /inventory/locations/:id/report
func (h *InventoryHandler) LocationReport(c *gin.Context) {
	locationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	report, err := h.service.GetLocationReport(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Movements handles GET /inventory/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	var q dto.MovementHistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	page, err := h.service.GetMovementHistory(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, page)
}

// ItemTimeline handles GET /inventory/items/:id/timeline
func (h *InventoryHandler) ItemTimeline(c *gin.Context) {
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	timeline, err := h.service.GetItemTimeline(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, timeline)
}

// MovementSummary handles GET /inventory/movements/summary
func (h *InventoryHandler) MovementSummary(c *gin.Context) {
	var q dto.MovementSummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	summary, err := h.service.GetMovementSummary(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}
