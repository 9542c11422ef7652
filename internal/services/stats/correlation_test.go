package stats

import (
	"testing"
	"time"

	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelation_PerfectLines(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	x := []float64{1, 2, 3, 4, 5}

	up := e.Correlation(x, []float64{2, 4, 6, 8, 10})
	assert.InDelta(t, 1.0, up.Correlation, 1e-5)
	assert.Equal(t, 0.0, up.PValue)
	assert.Equal(t, models.SignificanceHigh, up.Significance)
	assert.InDelta(t, 1.0, up.RSquared, 1e-9)
	assert.Equal(t, 5, up.SampleSize)

	down := e.Correlation(x, []float64{10, 8, 6, 4, 2})
	assert.InDelta(t, -1.0, down.Correlation, 1e-5)
	assert.LessOrEqual(t, down.ConfidenceInterval.Lower, down.ConfidenceInterval.Upper)
}

func TestCorrelation_NeutralCases(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	cases := map[string][2][]float64{
		"too short": {{1, 2}, {2, 4}},
		"mismatch":  {{1, 2, 3, 4}, {1, 2, 3}},
		"constant":  {{1, 1, 1, 1}, {3, 1, 4, 1}},
		"empty":     {nil, nil},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res := e.Correlation(c[0], c[1])
			assert.Equal(t, 0.0, res.Correlation)
			assert.Equal(t, 1.0, res.PValue)
			assert.Equal(t, models.SignificanceNone, res.Significance)
		})
	}
}

func TestCorrelation_PValueAndInterval(t *testing.T) {
	assert.InDelta(t, 0.1411, pValue(0.5, 10), 1e-3)

	e := NewEngine(DefaultConfig(), nil)
	ci := e.fisherInterval(0.5, 10)
	assert.InDelta(t, -0.189, ci.Lower, 1e-2)
	assert.InDelta(t, 0.859, ci.Upper, 1e-2)
	assert.Equal(t, 0.95, ci.Level)

	wide := e.fisherInterval(0.9, 3)
	assert.Equal(t, -1.0, wide.Lower)
	assert.Equal(t, 1.0, wide.Upper)
}

func sample(symbol string, day int, overall, optimism float64) models.HistoricalSentimentData {
	return models.HistoricalSentimentData{
		Symbol:       symbol,
		EarningsDate: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Sentiment: models.SentimentScore{
			Overall:        overall,
			ManagementTone: models.ManagementTone{Optimism: optimism, Confidence: 0.5},
		},
	}
}

func moved(symbol string, day int, pct float64) models.PriceMovement {
	pm := models.PriceMovement{Symbol: symbol, EarningsDate: time.Date(2024, 1, day, 16, 0, 0, 0, time.UTC)}
	for _, h := range models.Horizons {
		pm.Movements = append(pm.Movements, models.TimeframedMovement{Timeframe: h, PercentChange: pct * float64(h.Bars())})
	}
	return pm
}

func TestMatrix_PairsCachesAndDecomposes(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	sent := []models.HistoricalSentimentData{
		sample("A", 2, 0.9, 0.2),
		sample("A", 5, 0.1, 0.8),
		sample("B", 2, 0.8, 0.3),
		sample("B", 9, 0.2, 0.1),
		sample("C", 3, 0.5, 0.5),
	}
	moves := []models.PriceMovement{
		moved("A", 2, 1.6),
		moved("A", 5, -1.2),
		moved("B", 2, 1.4),
		moved("B", 9, -1.0),
	}
	m := e.Matrix(sent, moves)
	assert.Equal(t, 4, m.SampleSize)
	assert.Equal(t, models.SentimentFactors, m.Factors)

	r, p, ok := m.Result(models.FactorOverall, models.H5d)
	require.True(t, ok)
	assert.Greater(t, r, 0.95)
	assert.Less(t, p, 0.05)

	// constant factor is neutral
	r, p, _ = m.Result(models.FactorManagementConfidence, models.H5d)
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 1.0, p)

	// same inputs reuse the cache
	again := e.Matrix(sent, moves)
	assert.Equal(t, m.Correlations, again.Correlations)
	assert.Len(t, e.CachedResults(), len(models.SentimentFactors)*len(models.Horizons))

	// different inputs replace it
	empty := e.Matrix(nil, nil)
	r2, _, _ := empty.Result(models.FactorOverall, models.H5d)
	assert.Equal(t, 0.0, r2)

	m = e.Matrix(sent, moves)
	r3, _, _ := m.Result(models.FactorOverall, models.H5d)
	assert.Greater(t, r3, 0.95)

	e.ClearCache()
	assert.Empty(t, e.CachedResults())
	m = e.Matrix(sent, moves)
	dec := e.DecomposeByFactor(m, models.H5d)
	require.Len(t, dec, len(models.SentimentFactors))
	var total float64
	for i, d := range dec {
		total += d.Contribution
		if i > 0 {
			assert.GreaterOrEqual(t, dec[i-1].Contribution, d.Contribution)
		}
	}
	assert.InDelta(t, 100.0, total, 1e-9)
	assert.Equal(t, models.FactorOverall, dec[0].Factor)

	best := e.BestPredictors(3)
	require.Len(t, best, 3)
	assert.Equal(t, models.FactorOverall, best[0].Factor)
}

func TestDecomposeByFactor_AllZero(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	m := e.Matrix(nil, nil)
	for _, d := range e.DecomposeByFactor(m, models.H1d) {
		assert.Equal(t, 0.0, d.Contribution)
	}
}
