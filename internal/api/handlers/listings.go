package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"arenda-utils/internal/logging"
	"arenda-utils/internal/store"
	"arenda-utils/pkg/models"

	"github.com/labstack/echo/v4"
)

const (
	defaultListingLimit = 20
	maxListingLimit     = 100
)

// ListingSource is the slice of the listing store the API reads from.
type ListingSource interface {
	List(ctx context.Context, limit, offset int) ([]models.ListingRecord, error)
	GetByURL(ctx context.Context, url string) (*models.ListingRecord, error)
	Count(ctx context.Context) (int, error)
}

// ListingsHandler serves persisted listings, newest first
func ListingsHandler(src ListingSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		limit, err := queryInt(c, "limit", defaultListingLimit)
		if err != nil || limit < 0 {
			return badQueryParam(c, reqID, "limit")
		}
		offset, err := queryInt(c, "offset", 0)
		if err != nil || offset < 0 {
			return badQueryParam(c, reqID, "offset")
		}
		if limit == 0 || limit > maxListingLimit {
			limit = maxListingLimit
		}

		ctx := c.Request().Context()

		records, err := src.List(ctx, limit, offset)
		if err != nil {
			logger.Error("Failed to list listings", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "listings_unavailable",
				Message:   "Stored listings are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		total, err := src.Count(ctx)
		if err != nil {
			logger.Error("Failed to count listings", map[string]interface{}{
				"request_id": reqID,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "listings_unavailable",
				Message:   "Stored listings are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		views := make([]models.ListingView, 0, len(records))
		for _, rec := range records {
			views = append(views, models.ViewOf(rec))
		}

		return c.JSON(http.StatusOK, models.ListingsResponse{
			Count:    total,
			Listings: views,
		})
	}
}

// ListingByURLHandler serves the full stored record for one listing URL
func ListingByURLHandler(src ListingSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := requestID(c)
		logger := logging.GetGlobalLogger()

		target := c.QueryParam("url")
		if target == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "invalid_query",
				Message:   "url query parameter is required",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		rec, err := src.GetByURL(c.Request().Context(), target)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{
					Error:     "not_found",
					Message:   "No listing stored for that URL",
					RequestID: reqID,
					Timestamp: time.Now(),
				})
			}
			logger.Error("Failed to look up listing", map[string]interface{}{
				"request_id": reqID,
				"url":        target,
				"error":      err.Error(),
			})
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "listings_unavailable",
				Message:   "Stored listings are not available",
				RequestID: reqID,
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, rec)
	}
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func badQueryParam(c echo.Context, reqID, name string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:     "invalid_query",
		Message:   fmt.Sprintf("%s must be a non-negative integer", name),
		RequestID: reqID,
		Timestamp: time.Now(),
	})
}
