// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// RoleRulesAdmin is required to change the rule set when auth is enabled.
const RoleRulesAdmin = "rules:admin"

// RegisterInventoryRoutes wires every inventory endpoint onto group.
// adminOnly guards rule changes; pass nil to leave them open.
func RegisterInventoryRoutes(group *gin.RouterGroup, handler *handlers.InventoryHandler, adminOnly gin.HandlerFunc) {
	group.POST("/moves", handler.Move)
	group.POST("/creations", handler.Create)
	group.POST("/adjustments", handler.Adjust)
	group.POST("/removals", handler.Remove)

	group.POST("/validate", handler.Validate)
	group.POST("/validate/bulk", handler.ValidateBulk)
	group.POST("/bulk", handler.CommitBulk)

	group.GET("/rules", handler.GetRules)
	if adminOnly != nil {
		group.PATCH("/rules", adminOnly, handler.UpdateRules)
	} else {
		group.PATCH("/rules", handler.UpdateRules)
	}

	group.GET("/items/:id/locations", handler.ItemLocations)
	group.GET("/items/:id/timeline", handler.ItemTimeline)
	group.GET("/locations/:id/items", handler.LocationItems)
	group.GET("/locations/:id/report", handler.LocationReport)
	group.GET("/summary", handler.Summary)
	group.GET("/movements", handler.Movements)
	group.GET("/movements/summary", handler.MovementSummary)
}

// adminGuard returns the rule-admin check when auth is configured.
func adminGuard(validator middleware.JWTValidator) gin.HandlerFunc {
	if validator == nil {
		return nil
	}
	return middleware.RequireRole(RoleRulesAdmin)
}
