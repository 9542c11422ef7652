package movement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const eventIdx = 25

// series builds daily bars flat at 100 up to eventIdx, then rising by step
// per bar afterwards.
func series(symbol string, n int, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100.0
		vol := 1000.0
		if i > eventIdx {
			c = 100 + step*float64(i-eventIdx)
			vol = 2000
		}
		if i == eventIdx {
			vol = 3000
		}
		bars[i] = models.Bar{Date: day0.AddDate(0, 0, i), Symbol: symbol, Open: c, High: c, Low: c, Close: c, Volume: vol}
	}
	return bars
}

func store(data map[string][]models.Bar) repository.BarStore {
	return repository.BarStoreFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
		bars, ok := data[symbol]
		if !ok {
			return nil, fmt.Errorf("provider has no %s", symbol)
		}
		return bars, nil
	})
}

func eventDate() time.Time { return day0.AddDate(0, 0, eventIdx) }

func TestAnalyze_Movements(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), store(map[string][]models.Bar{
		"ACME": series("ACME", 60, 1),
		"SPY":  series("SPY", 60, 0),
	}), nil)

	pm, err := a.Analyze(context.Background(), "ACME", eventDate().Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, eventDate(), pm.EventDate)
	assert.Equal(t, 100.0, pm.PriceAtEarnings)
	assert.Empty(t, pm.Fallbacks)
	require.Len(t, pm.Movements, 5)

	m1, ok := pm.Movement(models.H1d)
	require.True(t, ok)
	assert.InDelta(t, 1.0, m1.PercentChange, 1e-9)
	assert.True(t, m1.Complete)

	m5, _ := pm.Movement(models.H5d)
	assert.InDelta(t, 5.0, m5.PercentChange, 1e-9)
	assert.InDelta(t, 5.0, m5.AbsoluteChange, 1e-9)
	assert.Equal(t, 0.0, m5.MaxDrawdown)
	assert.InDelta(t, 5.0, m5.MaxRunup, 1e-9)
	assert.Equal(t, 105.0, m5.High)
	assert.Equal(t, 100.0, m5.Low)

	require.Len(t, pm.AbnormalReturns, 5)
	assert.InDelta(t, 1.0, pm.AbnormalReturns[0].CumulativeAbnormalReturn, 1e-9)
	assert.InDelta(t, 1+3+5+10+30, pm.AbnormalReturns[4].CumulativeAbnormalReturn, 1e-9)
	assert.Equal(t, 0.0, pm.AbnormalReturns[2].BenchmarkReturn)

	assert.True(t, pm.Volatility.Sufficient)
	assert.Equal(t, 0.0, pm.Volatility.PreEventVol)
	assert.Greater(t, pm.Volatility.PostEventVol, 0.0)
	assert.Equal(t, 0.0, pm.Volatility.IVCrushEstimate)

	assert.InDelta(t, 1000.0, pm.Volume.PreEventAvg, 1e-9)
	assert.InDelta(t, 3.0, pm.Volume.EventVolumeRatio, 1e-9)
	assert.Equal(t, []float64{2, 2, 2, 2, 2}, pm.Volume.DecayRatios)
}

func TestHorizonMovement_DrawdownAndRunupAreIndependent(t *testing.T) {
	var bars []models.Bar
	for i, c := range []float64{100, 90, 108, 95} {
		bars = append(bars, models.Bar{Date: day0.AddDate(0, 0, i), Close: c})
	}
	m := horizonMovement(bars, 0, models.H3d)
	assert.True(t, m.Complete)
	assert.InDelta(t, (108.0-95)/108*100, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 20.0, m.MaxRunup, 1e-9)
	assert.Equal(t, 108.0, m.High)
	assert.Equal(t, 90.0, m.Low)

	clipped := horizonMovement(bars, 0, models.H10d)
	assert.False(t, clipped.Complete)
	assert.Equal(t, 3, clipped.Bars)
	assert.Equal(t, 95.0, clipped.EndPrice)
}

func TestAnalyze_BenchmarkFailureIsLabeled(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), store(map[string][]models.Bar{
		"ACME": series("ACME", 60, 1),
	}), nil)
	pm, err := a.Analyze(context.Background(), "ACME", eventDate())
	require.NoError(t, err)
	assert.Contains(t, pm.Fallbacks, models.FallbackBenchmarkUnavailable)
	for _, ar := range pm.AbnormalReturns {
		assert.Equal(t, 0.0, ar.BenchmarkReturn)
		assert.Equal(t, ar.StockReturn, ar.AbnormalReturn)
	}
}

func TestAnalyze_BenchmarkTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BenchmarkTimeout = 10 * time.Millisecond
	acme := series("ACME", 60, 1)
	bars := repository.BarStoreFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
		if symbol == "SPY" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return acme, nil
	})
	pm, err := NewAnalyzer(cfg, bars, nil).Analyze(context.Background(), "ACME", eventDate())
	require.NoError(t, err)
	assert.Equal(t, []string{models.FallbackBenchmarkUnavailable}, pm.Fallbacks)
}

func TestAnalyze_Errors(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), store(map[string][]models.Bar{
		"ACME": series("ACME", 60, 1),
		"SPY":  series("SPY", 60, 0),
	}), nil)

	_, err := a.Analyze(context.Background(), "NOPE", eventDate())
	assert.True(t, errors.Is(err, errs.ErrUpstreamUnavailable))

	_, err = a.Analyze(context.Background(), "ACME", day0.AddDate(0, 3, 0))
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = a.Analyze(context.Background(), "", eventDate())
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestAnalyze_ShortSeries(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), store(map[string][]models.Bar{
		"ACME": series("ACME", 30, 1),
		"SPY":  series("SPY", 30, 0),
	}), nil)
	pm, err := a.Analyze(context.Background(), "ACME", eventDate())
	require.NoError(t, err)
	assert.False(t, pm.Volatility.Sufficient)
	m30, _ := pm.Movement(models.H30d)
	assert.False(t, m30.Complete)
	assert.Equal(t, 4, m30.Bars)
	m3, _ := pm.Movement(models.H3d)
	assert.True(t, m3.Complete)
}

func TestBatchAnalyze_PartialFailure(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), store(map[string][]models.Bar{
		"AAA": series("AAA", 60, 1),
		"BBB": series("BBB", 60, 2),
		"SPY": series("SPY", 60, 0),
	}), nil)
	events := []models.EventRequest{
		{Symbol: "AAA", EarningsDate: eventDate()},
		{Symbol: "ZZZ", EarningsDate: eventDate()},
		{Symbol: "BBB", EarningsDate: eventDate()},
	}
	out, failures := a.BatchAnalyze(context.Background(), events)
	require.Len(t, out, 2)
	assert.Equal(t, "AAA", out[0].Symbol)
	assert.Equal(t, "BBB", out[1].Symbol)
	require.Len(t, failures, 1)
	assert.Equal(t, "ZZZ", failures[0].Symbol)
	assert.Equal(t, "upstream_unavailable", failures[0].Kind)
}
