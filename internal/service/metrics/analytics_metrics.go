package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"QuantLens/internal/domain/errs"
)

// Per-endpoint API metrics. The outcome label is "ok" or the error kind.
var (
	endpointSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantlens",
		Subsystem: "api",
		Name:      "endpoint_seconds",
		Help:      "Analytics endpoint latency by outcome",
		Buckets:   prometheus.ExponentialBuckets(0.001, 3, 9),
	}, []string{"endpoint", "outcome"})

	endpointFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "api",
		Name:      "endpoint_failures_total",
		Help:      "Failed analytics calls by endpoint and error kind",
	}, []string{"endpoint", "kind"})

	registerOnce sync.Once
)

func Register() { RegisterWith(prometheus.DefaultRegisterer) }

func RegisterWith(reg prometheus.Registerer) {
	registerOnce.Do(func() { reg.MustRegister(endpointSeconds, endpointFailures) })
}

// Observe records one call of endpoint that began at start.
func Observe(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errs.Kind(err)
		endpointFailures.WithLabelValues(endpoint, outcome).Inc()
	}
	endpointSeconds.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
}
