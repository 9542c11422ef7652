package models

import "time"

// Transcript is an earnings-call transcript to be scored.
type Transcript struct {
	Symbol       string    `json:"symbol"`
	EarningsDate time.Time `json:"earningsDate"`
	Quarter      string    `json:"quarter,omitempty"`
	Text         string    `json:"text"`
}

type ManagementTone struct {
	Optimism      float64 `json:"optimism"`
	Confidence    float64 `json:"confidence"`
	Defensiveness float64 `json:"defensiveness"`
}

type AnalystReaction struct {
	Satisfaction float64 `json:"satisfaction"`
	Skepticism   float64 `json:"skepticism"`
}

type GuidanceDirection string

const (
	GuidanceRaised     GuidanceDirection = "raised"
	GuidanceMaintained GuidanceDirection = "maintained"
	GuidanceLowered    GuidanceDirection = "lowered"
	GuidanceNone       GuidanceDirection = "none"
)

type GuidanceSignal struct {
	Direction GuidanceDirection `json:"direction"`
	Strength  float64           `json:"strength"`
}

type KeyMetricSentiment struct {
	Revenue  float64 `json:"revenue"`
	Earnings float64 `json:"earnings"`
	Margin   float64 `json:"margin"`
}

// SentimentScore: every score is in [0,1]. Overall and KeyMetrics read
// 0.5 as neutral, above as positive.
type SentimentScore struct {
	Overall         float64            `json:"overall"`
	Confidence      float64            `json:"confidence"`
	ManagementTone  ManagementTone     `json:"managementTone"`
	AnalystReaction AnalystReaction    `json:"analystReaction"`
	GuidanceSignal  GuidanceSignal     `json:"guidanceSignal"`
	KeyMetrics      KeyMetricSentiment `json:"keyMetrics"`
	Source          string             `json:"source,omitempty"`
}

// Sentiment factor vocabulary used by the correlation matrix.
const (
	FactorOverall              = "overall"
	FactorManagementOptimism   = "managementOptimism"
	FactorManagementConfidence = "managementConfidence"
	FactorAnalystSatisfaction  = "analystSatisfaction"
	FactorGuidanceStrength     = "guidanceStrength"
	FactorRevenueSentiment     = "revenueSentiment"
	FactorMarginSentiment      = "marginSentiment"
)

// SentimentFactors is the ordered factor list.
var SentimentFactors = []string{
	FactorOverall,
	FactorManagementOptimism,
	FactorManagementConfidence,
	FactorAnalystSatisfaction,
	FactorGuidanceStrength,
	FactorRevenueSentiment,
	FactorMarginSentiment,
}

// Factor extracts a named factor; ok is false for an unknown name.
func (s SentimentScore) Factor(name string) (float64, bool) {
	switch name {
	case FactorOverall:
		return s.Overall, true
	case FactorManagementOptimism:
		return s.ManagementTone.Optimism, true
	case FactorManagementConfidence:
		return s.ManagementTone.Confidence, true
	case FactorAnalystSatisfaction:
		return s.AnalystReaction.Satisfaction, true
	case FactorGuidanceStrength:
		return s.GuidanceSignal.Strength, true
	case FactorRevenueSentiment:
		return s.KeyMetrics.Revenue, true
	case FactorMarginSentiment:
		return s.KeyMetrics.Margin, true
	default:
		return 0, false
	}
}

// HistoricalSentimentData is one scored earnings event.
type HistoricalSentimentData struct {
	Symbol       string         `json:"symbol"`
	EarningsDate time.Time      `json:"earningsDate"`
	Sentiment    SentimentScore `json:"sentiment"`
}

// EarningsEvent is a stored event whose sentiment may not be scored yet.
type EarningsEvent struct {
	ID           int64           `json:"id" db:"id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	EarningsDate time.Time       `json:"earningsDate" db:"earnings_date"`
	Quarter      string          `json:"quarter" db:"quarter"`
	Transcript   string          `json:"transcript,omitempty" db:"transcript"`
	Sentiment    *SentimentScore `json:"sentiment,omitempty" db:"-"`
}
