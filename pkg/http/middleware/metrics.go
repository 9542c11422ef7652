package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "QuantLens/pkg/logger"
)

// HTTPMetrics holds the request collectors. Routes are labelled by their
// echo template ("/api/backtests/:id"), never by the raw URI.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests by route, method and status class",
		}, []string{"route", "method", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantlens",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "Request latency",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2.5, 10),
		}, []string{"route", "method"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantlens",
			Subsystem: "http",
			Name:      "response_bytes",
			Help:      "Response body size before compression",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quantlens",
			Subsystem: "http",
			Name:      "in_flight",
			Help:      "Requests being served",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.size, m.inFlight)
	}
	return m
}

var (
	defaultMetrics     *HTTPMetrics
	defaultMetricsOnce sync.Once
)

// Metrics records into collectors registered once on the default registry.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	defaultMetricsOnce.Do(func() { defaultMetrics = NewHTTPMetrics(prometheus.DefaultRegisterer) })
	return defaultMetrics.Middleware(l, slow)
}

// Middleware observes every request and logs 5xx responses and requests
// slower than slow.
func (m *HTTPMetrics) Middleware(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := c.Response().Status

			m.requests.WithLabelValues(route, method, statusClass(code)).Inc()
			m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
			m.size.WithLabelValues(route).Observe(float64(c.Response().Size))

			switch {
			case code >= 500:
				l.Error("request failed",
					applogger.String("route", route),
					applogger.Int("status", code),
					applogger.Duration("elapsed", elapsed),
				)
			case slow > 0 && elapsed >= slow:
				l.Warn("slow request",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Duration("elapsed", elapsed),
				)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
