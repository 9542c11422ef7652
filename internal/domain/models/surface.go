package models

import "time"

// IVSurfacePoint is unique on (Strike, DaysToExpiry, Type).
type IVSurfacePoint struct {
	Strike       float64    `json:"strike"`
	DaysToExpiry int        `json:"daysToExpiry"`
	IV           float64    `json:"iv"`
	Type         OptionType `json:"type"`
	Delta        float64    `json:"delta,omitempty"`
}

// InterpolatedSurface holds IVMatrix[strikeIdx][expiryIdx].
type InterpolatedSurface struct {
	Strikes     []float64   `json:"strikes"`
	Expirations []int       `json:"expirations"`
	IVMatrix    [][]float64 `json:"ivMatrix"`
}

type TermStructurePoint struct {
	DaysToExpiry int     `json:"daysToExpiry"`
	AvgIV        float64 `json:"avgIV"`
	AtmIV        float64 `json:"atmIV"`
}

// SkewPoint carries zero for a missing side.
type SkewPoint struct {
	Strike    float64 `json:"strike"`
	Moneyness float64 `json:"moneyness"`
	CallIV    float64 `json:"callIV,omitempty"`
	PutIV     float64 `json:"putIV,omitempty"`
}

type SkewShape string

const (
	SkewNormal   SkewShape = "normal"
	SkewInverted SkewShape = "inverted"
	SkewSmile    SkewShape = "smile"
	SkewSmirk    SkewShape = "smirk"
)

type TermShape string

const (
	TermContango      TermShape = "contango"
	TermBackwardation TermShape = "backwardation"
	TermHumped        TermShape = "humped"
	TermFlat          TermShape = "flat"
)

type AnomalyType string

const (
	AnomalyIVSpike   AnomalyType = "iv_spike"
	AnomalyIVDip     AnomalyType = "iv_dip"
	AnomalySkew      AnomalyType = "skew_anomaly"
	AnomalyTerm      AnomalyType = "term_anomaly"
	AnomalyButterfly AnomalyType = "butterfly_spread"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type SurfaceAnomaly struct {
	Type         AnomalyType `json:"type"`
	Strike       float64     `json:"strike"`
	DaysToExpiry int         `json:"daysToExpiry"`
	Severity     string      `json:"severity"`
	ExpectedIV   float64     `json:"expectedIV"`
	ActualIV     float64     `json:"actualIV"`
	Deviation    float64     `json:"deviation"`
}

type ArbitrageType string

const (
	ArbCalendarSpread ArbitrageType = "calendar_spread"
	ArbButterfly      ArbitrageType = "butterfly"
	ArbBoxSpread      ArbitrageType = "box_spread"
	ArbConversion     ArbitrageType = "conversion"
)

type LegAction string

const (
	Buy  LegAction = "buy"
	Sell LegAction = "sell"
)

type ArbitrageLeg struct {
	Strike       float64    `json:"strike"`
	DaysToExpiry int        `json:"daysToExpiry"`
	Type         OptionType `json:"type"`
	Action       LegAction  `json:"action"`
	Quantity     int        `json:"quantity"`
	IV           float64    `json:"iv"`
}

type ArbitrageOpportunity struct {
	Type           ArbitrageType  `json:"type"`
	Legs           []ArbitrageLeg `json:"legs"`
	ExpectedProfit float64        `json:"expectedProfit"`
	RiskLevel      string         `json:"riskLevel"`
}

// SurfaceAnalysis bundles everything derived from one chain snapshot.
type SurfaceAnalysis struct {
	Underlying    string                 `json:"underlying"`
	Spot          float64                `json:"spot"`
	AsOf          time.Time              `json:"asOf"`
	Points        []IVSurfacePoint       `json:"points"`
	Surface       InterpolatedSurface    `json:"surface"`
	TermStructure []TermStructurePoint   `json:"termStructure"`
	TermShape     TermShape              `json:"termShape"`
	Skew          []SkewPoint            `json:"skew"`
	SkewShape     SkewShape              `json:"skewShape"`
	Anomalies     []SurfaceAnomaly       `json:"anomalies"`
	Arbitrage     []ArbitrageOpportunity `json:"arbitrage"`
}
