package models

import "time"

// Bar is a daily OHLCV record.
type Bar struct {
	Date      time.Time `json:"date"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// TimeframedMovement: percentages are in percent units (2.5 means 2.5%).
type TimeframedMovement struct {
	Timeframe      Horizon `json:"timeframe"`
	StartPrice     float64 `json:"startPrice"`
	EndPrice       float64 `json:"endPrice"`
	PercentChange  float64 `json:"percentChange"`
	AbsoluteChange float64 `json:"absoluteChange"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	MaxDrawdown    float64 `json:"maxDrawdown"`
	MaxRunup       float64 `json:"maxRunup"`
	Bars           int     `json:"bars"`
	Complete       bool    `json:"complete"`
}

type AbnormalReturn struct {
	Timeframe                Horizon `json:"timeframe"`
	StockReturn              float64 `json:"stockReturn"`
	BenchmarkReturn          float64 `json:"benchmarkReturn"`
	AbnormalReturn           float64 `json:"abnormalReturn"`
	CumulativeAbnormalReturn float64 `json:"cumulativeAbnormalReturn"`
}

type VolatilityShift struct {
	PreEventVol      float64 `json:"preEventVol"`
	PostEventVol     float64 `json:"postEventVol"`
	VolatilityChange float64 `json:"volatilityChange"`
	IVCrushEstimate  float64 `json:"ivCrushEstimate"`
	Sufficient       bool    `json:"sufficient"`
}

type VolumeShift struct {
	PreEventAvg      float64   `json:"preEventAvg"`
	EventVolume      float64   `json:"eventVolume"`
	EventVolumeRatio float64   `json:"eventVolumeRatio"`
	DecayRatios      []float64 `json:"decayRatios"`
}

// Fallback labels attached to a PriceMovement.
const (
	FallbackBenchmarkUnavailable = "benchmark_unavailable"
	FallbackSyntheticBars        = "synthetic_bars"
)

type PriceMovement struct {
	Symbol          string               `json:"symbol"`
	EarningsDate    time.Time            `json:"earningsDate"`
	EventDate       time.Time            `json:"eventDate"`
	PriceAtEarnings float64              `json:"priceAtEarnings"`
	Movements       []TimeframedMovement `json:"movements"`
	AbnormalReturns []AbnormalReturn     `json:"abnormalReturns"`
	Volatility      VolatilityShift      `json:"volatility"`
	Volume          VolumeShift          `json:"volume"`
	Fallbacks       []string             `json:"fallbacks,omitempty"`
}

// Movement returns the movement for h, if present.
func (p PriceMovement) Movement(h Horizon) (TimeframedMovement, bool) {
	for _, m := range p.Movements {
		if m.Timeframe == h {
			return m, true
		}
	}
	return TimeframedMovement{}, false
}

// EventRequest identifies one earnings event to analyze.
type EventRequest struct {
	Symbol       string    `json:"symbol" validate:"required"`
	EarningsDate time.Time `json:"earningsDate" validate:"required"`
}
