package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentimentFunc func(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSentimentData, error)

func (f sentimentFunc) HistoricalSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSentimentData, error) {
	return f(ctx, symbol, from, to)
}

type movementFunc func(ctx context.Context, symbol string, day time.Time) (models.PriceMovement, error)

func (f movementFunc) Analyze(ctx context.Context, symbol string, day time.Time) (models.PriceMovement, error) {
	return f(ctx, symbol, day)
}

func date(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

// scenario: three events scored [0.9, 0.1, 0.9] followed by 5d returns [+8, -6, +7].
func scenario() (sentimentFunc, movementFunc) {
	overall := map[time.Time]float64{date(1, 25): 0.9, date(4, 25): 0.1, date(7, 25): 0.9}
	returns := map[time.Time]float64{date(1, 25): 8, date(4, 25): -6, date(7, 25): 7}
	src := sentimentFunc(func(_ context.Context, symbol string, _, _ time.Time) ([]models.HistoricalSentimentData, error) {
		var out []models.HistoricalSentimentData
		for d, s := range overall {
			out = append(out, models.HistoricalSentimentData{Symbol: symbol, EarningsDate: d, Sentiment: models.SentimentScore{Overall: s}})
		}
		return out, nil
	})
	mv := movementFunc(func(_ context.Context, symbol string, day time.Time) (models.PriceMovement, error) {
		pm := models.PriceMovement{Symbol: symbol, EarningsDate: day}
		for _, h := range models.Horizons {
			pm.Movements = append(pm.Movements, models.TimeframedMovement{Timeframe: h, PercentChange: returns[day]})
		}
		return pm, nil
	})
	return src, mv
}

func config() models.BacktestConfig {
	return models.BacktestConfig{Symbols: []string{"ACME"}, StartDate: date(1, 1), EndDate: date(12, 31)}
}

func TestOrchestrator_Scenario(t *testing.T) {
	src, mv := scenario()
	var mu sync.Mutex
	var seen []models.BacktestProgress
	o := NewOrchestrator(DefaultConfig(), src, mv, nil, nil, WithProgress(func(p models.BacktestProgress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}))

	res, err := o.Run(context.Background(), "run-1", config())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	ts := res.TradingSignals
	assert.Equal(t, 3, ts.TotalSignals)
	assert.Equal(t, 2, ts.BullishSignals)
	assert.Equal(t, 1, ts.BearishSignals)
	assert.Equal(t, 100.0, ts.BullishAccuracy)
	assert.Equal(t, 100.0, ts.BearishAccuracy)
	assert.Equal(t, 100.0, ts.WinRate)
	assert.Equal(t, 100.0, ts.ProfitFactor)
	assert.InDelta(t, 7.0, ts.AvgReturn, 1e-9)
	assert.InDelta(t, 100000*1.08*1.06*1.07, ts.FinalEquity, 1e-6)

	assert.Equal(t, 3, res.Summary.SampleSize)
	assert.Equal(t, models.FactorOverall, res.Summary.StrongestFactor)
	assert.Greater(t, res.Summary.StrongestCorrelation, 0.95)

	codes := map[string]bool{}
	for _, r := range res.Recommendations {
		codes[r.Code] = true
	}
	assert.True(t, codes[RecStrongCorrelation])
	assert.True(t, codes[RecLimitedSample])

	assert.Equal(t, models.StageDone, o.Progress().Stage)
	assert.Equal(t, 100.0, o.Progress().Percent)
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].Percent, seen[i-1].Percent)
	}
}

func TestOrchestrator_CancelBetweenStages(t *testing.T) {
	src, mv := scenario()
	var o *Orchestrator
	o = NewOrchestrator(DefaultConfig(), src, mv, nil, nil, WithProgress(func(p models.BacktestProgress) {
		if p.Stage == models.StageAnalyzingPrices {
			o.Cancel()
		}
	}))
	res, err := o.Run(context.Background(), "run-2", config())
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.Equal(t, models.StageCancelled, o.Progress().Stage)
	assert.Equal(t, 35.0, o.Progress().Percent)
}

func TestOrchestrator_PartialFailures(t *testing.T) {
	src, mv := scenario()
	flaky := sentimentFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSentimentData, error) {
		if symbol == "DOWN" {
			return nil, errs.Upstream("transcripts", fmt.Errorf("503"))
		}
		return src(ctx, symbol, from, to)
	})
	broken := movementFunc(func(ctx context.Context, symbol string, day time.Time) (models.PriceMovement, error) {
		if day.Equal(date(4, 25)) {
			return models.PriceMovement{}, errs.NotFound("no bars")
		}
		return mv(ctx, symbol, day)
	})
	bc := config()
	bc.Symbols = []string{"ACME", "DOWN"}
	res, err := NewOrchestrator(DefaultConfig(), flaky, broken, nil, nil).Run(context.Background(), "run-3", bc)
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	kinds := []string{res.Failures[0].Kind, res.Failures[1].Kind}
	assert.ElementsMatch(t, []string{"upstream_unavailable", "not_found"}, kinds)
	assert.Equal(t, 2, res.TradingSignals.TotalSignals)
	// below the minimum sample the matrix is neutral
	assert.Equal(t, 0.0, res.Summary.StrongestCorrelation)
}

func TestOrchestrator_Errors(t *testing.T) {
	src, mv := scenario()
	o := NewOrchestrator(DefaultConfig(), src, mv, nil, nil)
	bad := config()
	bad.EndDate = bad.StartDate
	_, err := o.Run(context.Background(), "x", bad)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	down := sentimentFunc(func(context.Context, string, time.Time, time.Time) ([]models.HistoricalSentimentData, error) {
		return nil, fmt.Errorf("connection refused")
	})
	_, err = NewOrchestrator(DefaultConfig(), down, mv, nil, nil).Run(context.Background(), "y", config())
	assert.True(t, errors.Is(err, errs.ErrUpstreamUnavailable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewOrchestrator(DefaultConfig(), src, mv, nil, nil).Run(ctx, "z", config())
	assert.True(t, errors.Is(err, errs.ErrCancelled))
}

func TestMaxDrawdown(t *testing.T) {
	abs, pct := MaxDrawdown([]float64{100000, 102000, 101000, 99000, 103000, 105000})
	assert.Equal(t, 3000.0, abs)
	assert.InDelta(t, 3000.0/102000*100, pct, 1e-9)

	abs, _ = MaxDrawdown(nil)
	assert.Equal(t, 0.0, abs)
}

func TestEvaluateSignals_NeutralAndLosses(t *testing.T) {
	cfg := DefaultConfig()
	s := func(d int, overall float64) models.HistoricalSentimentData {
		return models.HistoricalSentimentData{Symbol: "X", EarningsDate: date(1, d), Sentiment: models.SentimentScore{Overall: overall}}
	}
	m := func(pct float64) models.PriceMovement {
		return models.PriceMovement{Movements: []models.TimeframedMovement{{Timeframe: models.H5d, PercentChange: pct}}}
	}
	ts := EvaluateSignals(cfg,
		[]models.HistoricalSentimentData{s(1, 0.5), s(2, 0.7), s(3, 0.7), s(4, 0.2)},
		[]models.PriceMovement{m(-3), m(4), m(-2), m(1)},
		models.H5d)

	assert.Equal(t, 1, ts.NeutralSignals)
	assert.Equal(t, 2, ts.CorrectSignals)
	assert.Equal(t, 50.0, ts.Accuracy)
	assert.Equal(t, 3, ts.Trades)
	assert.InDelta(t, 100.0/3, ts.WinRate, 1e-9)
	assert.InDelta(t, 4.0/3, ts.ProfitFactor, 1e-9)
	assert.True(t, ts.Outcomes[0].Correct)
	assert.Equal(t, 0.0, ts.Outcomes[0].StrategyReturn)
	assert.Equal(t, -1.0, ts.Outcomes[3].StrategyReturn)
	assert.Greater(t, ts.MaxDrawdown, 0.0)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{1}, 0.02, 252))
	assert.Equal(t, 0.0, Sharpe([]float64{1, 1, 1}, 0.02, 252))
	assert.Greater(t, Sharpe([]float64{2, 1, 3}, 0.02, 252), 0.0)
	assert.Less(t, Sharpe([]float64{-2, -1, -3}, 0.02, 252), 0.0)
}
