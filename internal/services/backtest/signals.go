package backtest

import (
	"math"
	"sort"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Direction classifies an overall sentiment score.
func (c Config) Direction(overall float64) models.SignalDirection {
	switch {
	case overall >= c.BullishThreshold:
		return models.SignalBullish
	case overall <= c.BearishThreshold:
		return models.SignalBearish
	default:
		return models.SignalNeutral
	}
}

// EvaluateSignals trades every paired event in date order: long on bullish,
// short on bearish, flat on neutral. A neutral signal always counts as
// correct.
func EvaluateSignals(cfg Config, sentiment []models.HistoricalSentimentData, moves []models.PriceMovement, h models.Horizon) models.TradingSignalAnalysis {
	idx := make([]int, 0, len(sentiment))
	for i := range sentiment {
		if i < len(moves) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return sentiment[idx[a]].EarningsDate.Before(sentiment[idx[b]].EarningsDate)
	})

	out := models.TradingSignalAnalysis{Outcomes: make([]models.SignalOutcome, 0, len(idx))}
	var bullCorrect, bearCorrect, wins int
	var grossProfit, grossLoss float64
	var trades []float64
	equity := []float64{cfg.InitialCapital}
	for _, i := range idx {
		mv, ok := moves[i].Movement(h)
		if !ok {
			continue
		}
		s := sentiment[i].Sentiment.Overall
		o := models.SignalOutcome{
			Symbol:        sentiment[i].Symbol,
			EarningsDate:  sentiment[i].EarningsDate,
			Sentiment:     s,
			Direction:     cfg.Direction(s),
			ForwardReturn: mv.PercentChange,
		}
		switch o.Direction {
		case models.SignalBullish:
			out.BullishSignals++
			o.Correct = mv.PercentChange > 0
			o.StrategyReturn = mv.PercentChange
			if o.Correct {
				bullCorrect++
			}
		case models.SignalBearish:
			out.BearishSignals++
			o.Correct = mv.PercentChange < 0
			o.StrategyReturn = -mv.PercentChange
			if o.Correct {
				bearCorrect++
			}
		default:
			out.NeutralSignals++
			o.Correct = true
		}
		out.TotalSignals++
		if o.Correct {
			out.CorrectSignals++
		}
		if o.Direction != models.SignalNeutral {
			r := o.StrategyReturn
			trades = append(trades, r)
			if r > 0 {
				wins++
				grossProfit += r
			} else {
				grossLoss -= r
			}
			equity = append(equity, equity[len(equity)-1]*(1+r/100))
		}
		out.Outcomes = append(out.Outcomes, o)
	}

	out.Accuracy = pct(out.CorrectSignals, out.TotalSignals)
	out.BullishAccuracy = pct(bullCorrect, out.BullishSignals)
	out.BearishAccuracy = pct(bearCorrect, out.BearishSignals)
	out.Trades = len(trades)
	out.WinRate = pct(wins, len(trades))
	if len(trades) > 0 {
		out.AvgReturn = stat.Mean(trades, nil)
	}
	switch {
	case grossLoss > 0:
		out.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		out.ProfitFactor = cfg.ProfitFactorCap
	}
	out.MaxDrawdown, out.MaxDrawdownPct = MaxDrawdown(equity)
	out.SharpeRatio = Sharpe(trades, cfg.RiskFreeRate, cfg.TradingDays)
	out.FinalEquity = equity[len(equity)-1]
	return out
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// MaxDrawdown returns the largest peak-to-trough decline of an equity
// curve, in currency and as a percent of the peak.
func MaxDrawdown(equity []float64) (abs, pctOfPeak float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > abs {
			abs = dd
			if peak > 0 {
				pctOfPeak = dd / peak * 100
			}
		}
	}
	return abs, pctOfPeak
}

// Sharpe annualizes per-trade percent returns in excess of the daily
// risk-free rate. Fewer than two trades or zero dispersion give 0.
func Sharpe(returns []float64, riskFree, periods float64) float64 {
	if len(returns) < 2 || periods <= 0 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r/100 - riskFree/periods
	}
	mean, sd := stat.MeanStdDev(excess, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(periods)
}
