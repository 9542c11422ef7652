package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordError("upstream_unavailable")
	r.RecordError("upstream_unavailable")
	r.RecordSnapshot("SPY", 420)
	r.RecordAnomalies("SPY", 3)
	r.RecordMessageSent("quantlens.surface")
	r.RecordBacktestStage("correlating", 0.2)
	r.RecordLatency("surface", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("upstream_unavailable")))
	assert.Equal(t, 420.0, testutil.ToFloat64(r.contracts.WithLabelValues("SPY")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.anomalies.WithLabelValues("SPY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("quantlens.surface")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.backtestStage))
}
