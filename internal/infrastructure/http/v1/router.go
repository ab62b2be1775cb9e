package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Service is the inventory core every endpoint delegates to
	Service *inventory.Service

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator enables bearer auth when set
	JWTValidator middleware.JWTValidator

	// HealthChecks are probed by /health/ready
	HealthChecks map[string]handlers.Pinger

	// Version is reported by /health/info
	Version string

	// Development keeps gin in debug mode
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	{
		inv := v1.Group("/inventory")
		if cfg.JWTValidator != nil {
			inv.Use(middleware.Auth(cfg.JWTValidator))
		}

		handler := handlers.NewInventoryHandler(handlers.NewBaseHandler(), cfg.Service)
		RegisterInventoryRoutes(inv, handler, adminGuard(cfg.JWTValidator))
	}

	return router
}
