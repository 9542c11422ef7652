package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower admits or rejects one request for a key.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the caller's bucket is empty.
// Requests are keyed by client IP.
func RateLimit(limiter Allower) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter != nil && !limiter.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
