package handlers

import (
	"context"
	"net/http"
	"time"

	"arenda-utils/internal/artifacts"
	"arenda-utils/internal/logging"
	"arenda-utils/internal/scraper/workers"
	"arenda-utils/pkg/models"

	"github.com/labstack/echo/v4"
)

var startTime = time.Now()

const serviceVersion = "1.0.0"

// Component probes never wait longer than this, so a hung dependency cannot
// stall the health endpoint itself.
const probeTimeout = 5 * time.Second

// Pinger is anything that can verify its backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SolverStatus reports whether the captcha solver is configured and funded.
type SolverStatus interface {
	Enabled() bool
	IsHealthy() bool
}

// HealthDeps carries the components the health endpoints inspect.
type HealthDeps struct {
	Pool   *workers.PoolManager
	Store  Pinger
	Sink   artifacts.Sink
	Solver SolverStatus
}

// HealthHandler reports liveness plus per-component health
func HealthHandler(deps *HealthDeps) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := logging.GetGlobalLogger()
		logger.Debug("Health check requested", map[string]interface{}{"request_id": requestID(c)})

		ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
		defer cancel()

		checks := componentChecks(ctx, deps)
		status := "healthy"
		httpStatus := http.StatusOK
		if !coreHealthy(checks) {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}

		return c.JSON(httpStatus, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   serviceVersion,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		})
	}
}

// ReadinessHandler reports whether the service can accept runs
func ReadinessHandler(deps *HealthDeps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
		defer cancel()

		checks := componentChecks(ctx, deps)
		status := "ready"
		httpStatus := http.StatusOK
		if !coreHealthy(checks) {
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}

		return c.JSON(httpStatus, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   serviceVersion,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		})
	}
}

// LivenessHandler handles liveness probe requests
func LivenessHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   serviceVersion,
		Uptime:    time.Since(startTime),
	})
}

// StatusHandler provides detailed service status
func StatusHandler(deps *HealthDeps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
		defer cancel()

		checks := componentChecks(ctx, deps)
		status := "operational"
		if !coreHealthy(checks) {
			status = "degraded"
		}

		return c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   serviceVersion,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		})
	}
}

// componentChecks probes every wired dependency. The store and the worker
// pool are mandatory; the artifact sink and the captcha solver are optional
// aids whose state is reported without affecting overall health.
func componentChecks(ctx context.Context, deps *HealthDeps) map[string]string {
	checks := map[string]string{"api": "ok"}

	if deps == nil {
		return checks
	}

	if deps.Pool != nil {
		if deps.Pool.IsHealthy() {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "unavailable"
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Ping(ctx); err != nil {
			checks["store"] = "unreachable"
		} else {
			checks["store"] = "ok"
		}
	}

	if deps.Sink != nil {
		if probe, ok := deps.Sink.(interface{ IsHealthy(context.Context) bool }); ok {
			if probe.IsHealthy(ctx) {
				checks["artifacts"] = "ok"
			} else {
				checks["artifacts"] = "unreachable"
			}
		} else {
			checks["artifacts"] = "disabled"
		}
	}

	if deps.Solver != nil {
		switch {
		case !deps.Solver.Enabled():
			checks["captcha"] = "disabled"
		case deps.Solver.IsHealthy():
			checks["captcha"] = "ok"
		default:
			checks["captcha"] = "unavailable"
		}
	}

	return checks
}

func coreHealthy(checks map[string]string) bool {
	if state, ok := checks["workers"]; ok && state != "ok" {
		return false
	}
	if state, ok := checks["store"]; ok && state != "ok" {
		return false
	}
	return true
}
