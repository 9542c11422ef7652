package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quantlens"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	contracts     *prometheus.GaugeVec
	anomalies     *prometheus.CounterVec
	backtestStage *prometheus.HistogramVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages published to a topic",
			},
			[]string{"topic"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		contracts: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chain_contracts",
				Help:      "Contracts in the latest chain snapshot of an underlying",
			},
			[]string{"underlying"},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_anomalies_total",
				Help:      "Surface anomalies detected per underlying",
			},
			[]string{"underlying"},
		),
		backtestStage: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_stage_duration_seconds",
				Help:      "Time spent in each backtest stage",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a message published to topic.
func (r *Recorder) RecordMessageSent(topic string) {
	r.messagesSent.WithLabelValues(topic).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSnapshot(underlying string, contracts int) {
	r.contracts.WithLabelValues(underlying).Set(float64(contracts))
}

func (r *Recorder) RecordAnomalies(underlying string, count int) {
	r.anomalies.WithLabelValues(underlying).Add(float64(count))
}

func (r *Recorder) RecordBacktestStage(stage string, seconds float64) {
	r.backtestStage.WithLabelValues(stage).Observe(seconds)
}
