package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SelectiveTimeoutConfig applies a request deadline that depends on the route.
// Run endpoints drive a real browser and may wait on a captcha solve, so they
// get the long timeout; every other endpoint gets the short one. The deadline
// propagates through the request context rather than hijacking the response,
// so a run that finishes late still fails cleanly inside the worker pool.
func SelectiveTimeoutConfig(defaultTimeout, runTimeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timeout := defaultTimeout
			if isRunPath(c.Request().URL.Path) {
				timeout = runTimeout
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func isRunPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/runs")
}
