package backtest

import "QuantLens/internal/domain/models"

type Config struct {
	BullishThreshold float64 `yaml:"bullish_threshold" default:"0.6"`
	BearishThreshold float64 `yaml:"bearish_threshold" default:"0.4"`
	InitialCapital   float64 `yaml:"initial_capital" default:"100000"`
	// Annual risk-free rate; the Sharpe ratio uses RiskFreeRate/TradingDays per trade.
	RiskFreeRate float64 `yaml:"risk_free_rate" default:"0.02"`
	TradingDays  float64 `yaml:"trading_days" default:"252"`
	// Reported when a run has no losing trade.
	ProfitFactorCap     float64        `yaml:"profit_factor_cap" default:"100"`
	StrongCorrelation   float64        `yaml:"strong_correlation" default:"0.3"`
	ModerateCorrelation float64        `yaml:"moderate_correlation" default:"0.2"`
	LimitedSample       int            `yaml:"limited_sample" default:"50"`
	MinSampleSize       int            `yaml:"min_sample_size" default:"3"`
	SignalHorizon       models.Horizon `yaml:"signal_horizon" default:"5d"`
	BestPredictors      int            `yaml:"best_predictors" default:"5"`
	Workers             int            `yaml:"workers" default:"4"`
}

func DefaultConfig() Config {
	return Config{
		BullishThreshold:    0.6,
		BearishThreshold:    0.4,
		InitialCapital:      100000,
		RiskFreeRate:        0.02,
		TradingDays:         252,
		ProfitFactorCap:     100,
		StrongCorrelation:   0.3,
		ModerateCorrelation: 0.2,
		LimitedSample:       50,
		MinSampleSize:       3,
		SignalHorizon:       models.H5d,
		BestPredictors:      5,
		Workers:             4,
	}
}
