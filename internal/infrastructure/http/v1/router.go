// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/settlement"
	"stockpos/internal/domain/transfer"
	"stockpos/internal/infrastructure/http/v1/handlers"
	"stockpos/internal/infrastructure/http/v1/middleware"
	"stockpos/pkg/logger"
)

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator

	Ledger     *ledger.Service
	Settlement *settlement.Service
	Transfers  *transfer.Service
	Audit      audit.Recorder

	// HealthChecks are pinged by /health/ready.
	HealthChecks []handlers.Check

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// order matters: ErrorHandler must see errors registered by Recovery
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks...)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	v1.Use(middleware.Idempotency())

	base := handlers.NewBaseHandler()
	registerInventoryRoutes(v1, handlers.NewInventoryHandler(base, cfg.Ledger))
	registerTransactionRoutes(v1, handlers.NewTransactionHandler(base, cfg.Settlement))

	v1.POST("/transfers",
		middleware.RequireRole(middleware.RoleStockClerk, middleware.RoleManager),
		handlers.NewTransferHandler(base, cfg.Transfers).Create)

	v1.GET("/audit/discrepancies",
		middleware.RequireRole(middleware.RoleManager),
		handlers.NewAuditHandler(base, cfg.Audit).Discrepancies)

	return router
}

func registerInventoryRoutes(rg *gin.RouterGroup, h *handlers.InventoryHandler) {
	stock := middleware.RequireRole(middleware.RoleStockClerk, middleware.RoleManager)
	manager := middleware.RequireRole(middleware.RoleManager)

	store := rg.Group("/inventory/:storeId")
	store.Use(middleware.RequireStoreAccess("storeId"))
	{
		store.GET("/low-stock", h.LowStock)
		store.POST("/refresh", manager, h.RefreshStore)

		store.GET("/:productId", h.Get)
		store.POST("/:productId", stock, h.Track)
		store.GET("/:productId/movements", h.Movements)
		store.POST("/:productId/add", stock, h.Add)
		store.POST("/:productId/remove", stock, h.Remove)
		store.POST("/:productId/adjust", manager, h.Adjust)
		store.POST("/:productId/reserve", h.Reserve)
		store.POST("/:productId/release", h.Release)
		store.POST("/:productId/refresh", stock, h.Refresh)
	}
}

func registerTransactionRoutes(rg *gin.RouterGroup, h *handlers.TransactionHandler) {
	till := middleware.RequireRole(middleware.RoleCashier, middleware.RoleManager)

	tx := rg.Group("/transactions")
	{
		tx.POST("/sales", till, h.Sale)
		tx.POST("/returns", till, h.Return)
		tx.GET("/:id", h.Get)
		tx.POST("/:id/retry-stock", middleware.RequireRole(middleware.RoleManager), h.RetryStock)
	}
}
