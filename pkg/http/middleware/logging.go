package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "QuantLens/pkg/logger"
)

// RequestLogging logs HTTP requests.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote_ip", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)),
				applogger.Int64("bytes_out", c.Response().Size),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, applogger.String("request_id", id))
			}
			if c.Response().Status >= 500 {
				l.Error("http request", fields...)
			} else {
				l.Debug("http request", fields...)
			}

			return nil
		}
	}
}
