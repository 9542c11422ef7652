package usecase

import domrepo "QuantLens/internal/domain/repository"

type nopMetrics struct{}

func (nopMetrics) RecordError(string)                  {}
func (nopMetrics) RecordLatency(string, float64)       {}
func (nopMetrics) RecordSnapshot(string, int)          {}
func (nopMetrics) RecordAnomalies(string, int)         {}
func (nopMetrics) RecordBacktestStage(string, float64) {}

func orNop(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
