package models

import (
	"time"

	"QuantLens/internal/domain/errs"
)

// BacktestConfig is immutable once a run starts.
type BacktestConfig struct {
	Symbols       []string  `json:"symbols" validate:"required,min=1,dive,required"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required"`
	Timeframes    []Horizon `json:"timeframes,omitempty"`
	SignalHorizon Horizon   `json:"signalHorizon,omitempty"`
	Benchmark     string    `json:"benchmark,omitempty"`
	MinSampleSize int       `json:"minSampleSize,omitempty"`
}

type BacktestStage string

const (
	StageIdle                BacktestStage = "idle"
	StageCollectingSentiment BacktestStage = "collecting_sentiment"
	StageAnalyzingPrices     BacktestStage = "analyzing_prices"
	StageCorrelating         BacktestStage = "correlating"
	StageDecomposing         BacktestStage = "decomposing"
	StageEvaluatingSignals   BacktestStage = "evaluating_signals"
	StageTesting             BacktestStage = "testing"
	StageSummarizing         BacktestStage = "summarizing"
	StageDone                BacktestStage = "done"
	StageCancelled           BacktestStage = "cancelled"
	StageFailed              BacktestStage = "failed"
)

// Terminal reports whether no further transitions happen.
func (s BacktestStage) Terminal() bool {
	return s == StageDone || s == StageCancelled || s == StageFailed
}

type BacktestProgress struct {
	RunID     string        `json:"runId"`
	Stage     BacktestStage `json:"stage"`
	Percent   float64       `json:"percent"`
	Message   string        `json:"message,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type SignalDirection string

const (
	SignalBullish SignalDirection = "bullish"
	SignalBearish SignalDirection = "bearish"
	SignalNeutral SignalDirection = "neutral"
)

type SignalOutcome struct {
	Symbol         string          `json:"symbol"`
	EarningsDate   time.Time       `json:"earningsDate"`
	Sentiment      float64         `json:"sentiment"`
	Direction      SignalDirection `json:"direction"`
	ForwardReturn  float64         `json:"forwardReturn"`
	StrategyReturn float64         `json:"strategyReturn"`
	Correct        bool            `json:"correct"`
}

// TradingSignalAnalysis: accuracies and returns are in percent units.
type TradingSignalAnalysis struct {
	TotalSignals    int             `json:"totalSignals"`
	BullishSignals  int             `json:"bullishSignals"`
	BearishSignals  int             `json:"bearishSignals"`
	NeutralSignals  int             `json:"neutralSignals"`
	CorrectSignals  int             `json:"correctSignals"`
	Accuracy        float64         `json:"accuracy"`
	BullishAccuracy float64         `json:"bullishAccuracy"`
	BearishAccuracy float64         `json:"bearishAccuracy"`
	Trades          int             `json:"trades"`
	WinRate         float64         `json:"winRate"`
	AvgReturn       float64         `json:"avgReturn"`
	ProfitFactor    float64         `json:"profitFactor"`
	MaxDrawdown     float64         `json:"maxDrawdown"`
	MaxDrawdownPct  float64         `json:"maxDrawdownPct"`
	SharpeRatio     float64         `json:"sharpeRatio"`
	FinalEquity     float64         `json:"finalEquity"`
	Outcomes        []SignalOutcome `json:"outcomes"`
}

type RecommendationKind string

const (
	RecommendationInsight RecommendationKind = "insight"
	RecommendationCaution RecommendationKind = "caution"
	RecommendationAction  RecommendationKind = "action"
)

type Recommendation struct {
	Code     string             `json:"code"`
	Kind     RecommendationKind `json:"kind"`
	Priority string             `json:"priority"`
	Message  string             `json:"message"`
}

type BacktestSummary struct {
	TotalEvents             int       `json:"totalEvents"`
	SymbolsAnalyzed         int       `json:"symbolsAnalyzed"`
	SampleSize              int       `json:"sampleSize"`
	StartDate               time.Time `json:"startDate"`
	EndDate                 time.Time `json:"endDate"`
	StrongestFactor         string    `json:"strongestFactor"`
	StrongestTimeframe      Horizon   `json:"strongestTimeframe"`
	StrongestCorrelation    float64   `json:"strongestCorrelation"`
	AverageAbsCorrelation   float64   `json:"averageAbsCorrelation"`
	SignificantCorrelations int       `json:"significantCorrelations"`
}

// BacktestResult is produced once per run and never mutated afterwards.
type BacktestResult struct {
	RunID             string                `json:"runId"`
	Config            BacktestConfig        `json:"config"`
	Summary           BacktestSummary       `json:"summary"`
	CorrelationMatrix CorrelationMatrix     `json:"correlationMatrix"`
	Decomposition     []FactorDecomposition `json:"decomposition"`
	BestPredictors    []CorrelationResult   `json:"bestPredictors"`
	TradingSignals    TradingSignalAnalysis `json:"tradingSignals"`
	StatisticalTests  StatisticalTests      `json:"statisticalTests"`
	Recommendations   []Recommendation      `json:"recommendations"`
	Failures          []errs.SymbolFailure  `json:"failures,omitempty"`
	StartedAt         time.Time             `json:"startedAt"`
	CompletedAt       time.Time             `json:"completedAt"`
}
