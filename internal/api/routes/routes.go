package routes

import (
	"net/http"
	"time"

	"arenda-utils/internal/api/handlers"
	"arenda-utils/internal/api/middleware"
	"arenda-utils/internal/config"
	"arenda-utils/internal/scraper/workers"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, poolManager *workers.PoolManager, listings handlers.ListingSource, deps *handlers.HealthDeps) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.RequestValidation())
	// Run endpoints hold the request while a browser run completes, so they
	// get a much longer deadline than everything else.
	e.Use(middleware.SelectiveTimeoutConfig(cfg.Server.ReadTimeout, cfg.Workers.Timeout+30*time.Second))

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler(deps))
		health.GET("/ready", handlers.ReadinessHandler(deps))
		health.GET("/live", handlers.LivenessHandler)
		health.GET("/workers", handlers.WorkerHealthHandler(poolManager))
	}

	// Status route
	e.GET("/status", handlers.StatusHandler(deps))

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		v1.POST("/runs", handlers.RunHandler(poolManager))
		v1.POST("/runs/file", handlers.FileRunHandler(poolManager))

		v1.GET("/listings", handlers.ListingsHandler(listings))
		v1.GET("/listings/by-url", handlers.ListingByURLHandler(listings))

		// Worker monitoring routes
		workerRoutes := v1.Group("/workers")
		{
			workerRoutes.GET("/stats", handlers.WorkerStatsHandler(poolManager))
			workerRoutes.GET("/status", handlers.DetailedWorkerStatusHandler(poolManager))
		}

		// Domain-specific routes
		domains := v1.Group("/domains")
		{
			domains.GET("/:domain/stats", handlers.DomainStatsHandler(poolManager))
		}
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "Arenda Listings Scraper",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}
