package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper/workers"
	"arenda-utils/pkg/models"
	"arenda-utils/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// requestID returns the ID set by the validation middleware, or a fresh one
// for requests that bypassed it.
func requestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok && id != "" {
		return id
	}
	return utils.GenerateRequestID()
}

// RunHandler triggers a fetch-and-extract run through the worker pool
func RunHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		startTime := time.Now()
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		var req models.RunRequest
		if err := c.Bind(&req); err != nil {
			logger.Warn("Failed to bind run request", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "invalid_request",
				Message:   "Invalid request format",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		if err := validate.Struct(&req); err != nil {
			logger.Warn("Run request validation failed", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation_failed",
				Message:   err.Error(),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		engine := ""
		if req.Options != nil {
			engine = req.Options.Engine
		}

		ctx := c.Request().Context()
		if req.Options != nil && req.Options.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
			defer cancel()
		}

		logger.Info("Run request received", map[string]interface{}{
			"request_id": reqID,
			"url":        req.URL,
			"engine":     utils.GetStringOrDefault(engine, "auto"),
		})

		result, err := poolManager.SubmitRun(ctx, req.URL, engine)
		if err != nil {
			if errors.Is(err, workers.ErrRateLimited) {
				return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
					Error:     "rate_limited",
					Message:   err.Error(),
					RequestID: reqID,
					Timestamp: time.Now(),
				})
			}
			logger.Error("Failed to submit run", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "run_submission_failed",
				Message:   fmt.Sprintf("Failed to submit run: %v", err),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		if result.Error != nil {
			logger.Error("Run failed", map[string]interface{}{
				"request_id": reqID,
				"run_id":     result.RequestID,
				"error":      result.Error.Error(),
			})
			return c.JSON(http.StatusBadGateway, models.ErrorResponse{
				Error:     "run_failed",
				Message:   fmt.Sprintf("Run failed: %v", result.Error),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		logger.Info("Run completed", map[string]interface{}{
			"request_id":      reqID,
			"run_id":          result.RequestID,
			"count_saved":     result.Saved,
			"processing_time": time.Since(startTime).String(),
		})

		return c.JSON(http.StatusOK, models.RunResponse{
			Success:        true,
			RunID:          result.RequestID,
			CountSaved:     result.Saved,
			Engine:         utils.GetStringOrDefault(engine, "auto"),
			ProcessingTime: time.Since(startTime),
			RequestID:      reqID,
		})
	}
}

// FileRunHandler extracts and persists listings from a local markup dump
func FileRunHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		startTime := time.Now()
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		var req models.FileRunRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "invalid_request",
				Message:   "Invalid request format",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		if err := validate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation_failed",
				Message:   err.Error(),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		logger.Info("File run request received", map[string]interface{}{
			"request_id": reqID,
			"path":       req.Path,
		})

		result, err := poolManager.SubmitFileRun(c.Request().Context(), req.Path)
		if err != nil {
			logger.Error("Failed to submit file run", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "run_submission_failed",
				Message:   fmt.Sprintf("Failed to submit file run: %v", err),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		// A failed file run means the dump was missing or unreadable, which is
		// a problem with the request rather than the service.
		if result.Error != nil {
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Error:     "file_run_failed",
				Message:   fmt.Sprintf("File run failed: %v", result.Error),
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		logger.Info("File run completed", map[string]interface{}{
			"request_id":  reqID,
			"run_id":      result.RequestID,
			"count_saved": result.Saved,
		})

		return c.JSON(http.StatusOK, models.RunResponse{
			Success:        true,
			RunID:          result.RequestID,
			CountSaved:     result.Saved,
			ProcessingTime: time.Since(startTime),
			RequestID:      reqID,
		})
	}
}
