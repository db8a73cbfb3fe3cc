package http

import (
	"github.com/gin-gonic/gin"

	"github.com/pricelens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		products := v1.Group("/products")
		{
			products.GET("", handler.ListProducts)
			products.GET("/lookup", handler.GetProduct)
			products.GET("/comparison", handler.GetComparisons)
		}

		v1.POST("/basket/optimize", handler.OptimizeBasket)

		carts := v1.Group("/carts")
		{
			carts.POST("", handler.CreateCart)
			carts.GET("/:id", handler.GetCart)
			carts.POST("/:id/items", handler.AddCartItem)
			carts.GET("/:id/optimize", handler.OptimizeCart)
		}

		ingestion := v1.Group("/ingestion")
		{
			ingestion.POST("/run", handler.RunIngestion)
			ingestion.POST("/run/:store", handler.RunStoreIngestion)
			ingestion.GET("/runs/:id", handler.GetRun)
			ingestion.DELETE("/runs/:id", handler.CancelRun)
			ingestion.GET("/stats", handler.GetStats)
		}
	}

	return router
}
