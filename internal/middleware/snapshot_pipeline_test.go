package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
)

type recordingProc struct {
	mu    sync.Mutex
	fail  int
	calls []string
}

func (p *recordingProc) Process(_ context.Context, s *models.ChainSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s.Underlying)
	if p.fail > 0 {
		p.fail--
		return errors.New("downstream down")
	}
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{errors: map[string]int{}} }

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordLatency(string, float64)       {}
func (m *countingMetrics) RecordSnapshot(string, int)          {}
func (m *countingMetrics) RecordAnomalies(string, int)         {}
func (m *countingMetrics) RecordBacktestStage(string, float64) {}

func (m *countingMetrics) get(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func snapshot(u string) *models.ChainSnapshot {
	return &models.ChainSnapshot{
		Underlying: u,
		Spot:       100,
		AsOf:       time.Now(),
		Contracts:  []models.OptionContract{{Strike: 100, Type: models.Call}},
	}
}

func TestPipelineValidatesAndThrottles(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewSnapshotPipeline(proc, m, WithMaxRPS(1))
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, &models.ChainSnapshot{Underlying: "SPY"}))
	assert.Equal(t, 1, m.get("pipeline_validate"))

	require.NoError(t, p.Process(ctx, snapshot("spy")))
	require.NoError(t, p.Process(ctx, snapshot("SPY")))
	require.NoError(t, p.Process(ctx, snapshot("QQQ")))

	assert.Equal(t, []string{"SPY", "QQQ"}, proc.calls)
	assert.Equal(t, 1, m.get("pipeline_throttle"))
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &recordingProc{fail: 1}
	m := newCountingMetrics()
	p := NewSnapshotPipeline(proc, m, WithMaxRPS(1000), WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, snapshot("SPY"))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return proc.count() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())
}
