package backtest

import (
	"fmt"
	"math"

	"QuantLens/internal/domain/models"
)

// Recommendation codes.
const (
	RecStrongCorrelation   = "strong_correlation"
	RecModerateCorrelation = "moderate_correlation"
	RecWeakCorrelation     = "weak_correlation"
	RecLimitedSample       = "limited_sample"
	RecSignalAccuracy      = "signal_accuracy"
	RecPoorAccuracy        = "poor_accuracy"
	RecAttractiveSharpe    = "attractive_sharpe"
	RecNegativeSharpe      = "negative_sharpe"
	RecProfitFactor        = "profit_factor"
	RecNonNormal           = "non_normal_returns"
	RecAutocorrelation     = "autocorrelation"
	RecHeteroskedastic     = "heteroskedasticity"
	RecFocusFactor         = "focus_factor"
)

// Recommend applies the fixed rule table to a finished run.
func Recommend(cfg Config, r *models.BacktestResult) []models.Recommendation {
	var out []models.Recommendation
	add := func(code string, kind models.RecommendationKind, prio, format string, a ...interface{}) {
		out = append(out, models.Recommendation{Code: code, Kind: kind, Priority: prio, Message: fmt.Sprintf(format, a...)})
	}
	s := r.Summary
	absR := math.Abs(s.StrongestCorrelation)
	switch {
	case absR > cfg.StrongCorrelation:
		add(RecStrongCorrelation, models.RecommendationInsight, "high",
			"%s sentiment shows a strong correlation (r=%.2f) with %s returns", s.StrongestFactor, s.StrongestCorrelation, s.StrongestTimeframe)
	case absR > cfg.ModerateCorrelation:
		add(RecModerateCorrelation, models.RecommendationInsight, "medium",
			"%s sentiment shows a moderate correlation (r=%.2f) with %s returns", s.StrongestFactor, s.StrongestCorrelation, s.StrongestTimeframe)
	default:
		add(RecWeakCorrelation, models.RecommendationCaution, "medium",
			"no sentiment factor correlates meaningfully with returns (best |r|=%.2f)", absR)
	}
	if s.SampleSize < cfg.LimitedSample {
		add(RecLimitedSample, models.RecommendationCaution, "high",
			"only %d events analyzed; collect at least %d before relying on these results", s.SampleSize, cfg.LimitedSample)
	}

	ts := r.TradingSignals
	if ts.TotalSignals > 0 {
		switch {
		case ts.Accuracy > 60:
			add(RecSignalAccuracy, models.RecommendationAction, "high",
				"signals were correct %.1f%% of the time; consider trading the %s horizon", ts.Accuracy, r.Config.SignalHorizon)
		case ts.Accuracy < 45:
			add(RecPoorAccuracy, models.RecommendationCaution, "medium",
				"signal accuracy of %.1f%% is below chance", ts.Accuracy)
		}
	}
	if ts.Trades >= 2 {
		switch {
		case ts.SharpeRatio > 1:
			add(RecAttractiveSharpe, models.RecommendationInsight, "medium",
				"annualized Sharpe ratio of %.2f", ts.SharpeRatio)
		case ts.SharpeRatio < 0:
			add(RecNegativeSharpe, models.RecommendationCaution, "high",
				"strategy underperforms the risk-free rate (Sharpe %.2f)", ts.SharpeRatio)
		}
	}
	if ts.ProfitFactor > 1.5 {
		add(RecProfitFactor, models.RecommendationInsight, "low",
			"profit factor of %.2f", ts.ProfitFactor)
	}

	st := r.StatisticalTests
	if st.Normality.Significant {
		add(RecNonNormal, models.RecommendationCaution, "low",
			"returns are not normally distributed (JB p=%.3f); p-values may be optimistic", st.Normality.PValue)
	}
	if st.Autocorrelation.Significant {
		add(RecAutocorrelation, models.RecommendationInsight, "low",
			"returns are autocorrelated (Ljung-Box p=%.3f)", st.Autocorrelation.PValue)
	}
	if st.Heteroskedasticity.Significant {
		add(RecHeteroskedastic, models.RecommendationCaution, "low",
			"return variance shifts over the sample (F p=%.3f); size positions accordingly", st.Heteroskedasticity.PValue)
	}
	if len(r.Decomposition) > 0 && r.Decomposition[0].Contribution > 40 {
		d := r.Decomposition[0]
		add(RecFocusFactor, models.RecommendationAction, "medium",
			"%s explains %.0f%% of the attributed signal; weight it most heavily", d.Factor, d.Contribution)
	}
	return out
}
