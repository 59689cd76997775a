package handlers

import (
	"net/http"
	"time"

	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper/workers"
	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"

	"github.com/labstack/echo/v4"
)

// WorkerStatsHandler returns worker pool statistics
func WorkerStatsHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		stats, err := poolManager.GetStats()
		if err != nil {
			logger.Error("Failed to get worker stats", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "stats_unavailable",
				Message:   "Worker pool statistics are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":    true,
			"stats":      stats,
			"request_id": reqID,
			"timestamp":  time.Now(),
		})
	}
}

// WorkerHealthHandler returns worker pool health status
func WorkerHealthHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)

		healthy := poolManager.IsHealthy()
		status := "healthy"
		httpStatus := http.StatusOK

		if !healthy {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}

		return c.JSON(httpStatus, map[string]interface{}{
			"success":    healthy,
			"status":     status,
			"request_id": reqID,
			"timestamp":  time.Now(),
		})
	}
}

// DomainStatsHandler returns rate limiting statistics for a specific domain
func DomainStatsHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		domain := c.Param("domain")
		if domain == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "missing_domain",
				Message:   "Domain parameter is required",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		stats, err := poolManager.GetDomainStats(domain)
		if err != nil {
			logger.Error("Failed to get domain stats", map[string]interface{}{
				"request_id": reqID,
				"domain":     domain,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "stats_unavailable",
				Message:   "Domain statistics are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":    true,
			"domain":     domain,
			"stats":      stats,
			"request_id": reqID,
			"timestamp":  time.Now(),
		})
	}
}

// WorkerStatusResponse represents the status of the worker pool
type WorkerStatusResponse struct {
	Success        bool                   `json:"success"`
	Status         string                 `json:"status"`
	WorkerCount    int                    `json:"worker_count"`
	QueueSize      int                    `json:"queue_size"`
	RunsProcessed  int64                  `json:"runs_processed"`
	RunsQueued     int64                  `json:"runs_queued"`
	RunsSuccessful int64                  `json:"runs_successful"`
	RunsFailed     int64                  `json:"runs_failed"`
	ListingsSaved  int64                  `json:"listings_saved"`
	Details        map[string]interface{} `json:"details,omitempty"`
	RequestID      string                 `json:"request_id"`
	Timestamp      time.Time              `json:"timestamp"`
}

// DetailedWorkerStatusHandler returns detailed worker pool status
func DetailedWorkerStatusHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		stats, err := poolManager.GetStats()
		if err != nil {
			logger.Error("Failed to get detailed worker stats", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "stats_unavailable",
				Message:   "Detailed worker statistics are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		healthy := poolManager.IsHealthy()
		status := "healthy"
		if !healthy {
			status = "unhealthy"
		}

		return c.JSON(http.StatusOK, WorkerStatusResponse{
			Success:        healthy,
			Status:         status,
			WorkerCount:    stats.WorkerCount,
			QueueSize:      stats.QueueCapacity,
			RunsProcessed:  stats.PoolStats.RunsProcessed,
			RunsQueued:     stats.PoolStats.RunsQueued,
			RunsSuccessful: stats.PoolStats.RunsSuccessful,
			RunsFailed:     stats.PoolStats.RunsFailed,
			ListingsSaved:  stats.PoolStats.ListingsSaved,
			Details: map[string]interface{}{
				"rate_limiter_stats":      stats.RateLimiterStats,
				"average_processing_time": utils.FormatDuration(stats.PoolStats.AverageProcessingTime),
			},
			RequestID: reqID,
			Timestamp: time.Now(),
		})
	}
}
