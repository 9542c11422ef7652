package models

// StrikeOpenInterest is the open interest at one strike of the pinning expiry.
type StrikeOpenInterest struct {
	Strike float64 `json:"strike" validate:"gt=0"`
	CallOI int64   `json:"callOI" validate:"gte=0"`
	PutOI  int64   `json:"putOI" validate:"gte=0"`
}

// StrikeGamma is the dealer net gamma exposure at one strike.
type StrikeGamma struct {
	Strike   float64 `json:"strike"`
	Gamma    float64 `json:"gamma"`
	NetGamma float64 `json:"netGamma"`
	TotalOI  int64   `json:"totalOI"`
}

type MagnetStrike struct {
	Strike      float64 `json:"strike"`
	TotalOI     int64   `json:"totalOI"`
	DistancePct float64 `json:"distancePct"`
	NetGamma    float64 `json:"netGamma"`
}

type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type HedgingFlow string

const (
	FlowStabilizing   HedgingFlow = "stabilizing"
	FlowDestabilizing HedgingFlow = "destabilizing"
	FlowNeutral       HedgingFlow = "neutral"
)

type HedgingPressure struct {
	Flow          HedgingFlow `json:"flow"`
	TotalNetGamma float64     `json:"totalNetGamma"`
	Intensity     float64     `json:"intensity"`
	Description   string      `json:"description"`
}

// FridayEffectPrediction is the expiry pinning forecast for one underlying.
type FridayEffectPrediction struct {
	Symbol             string          `json:"symbol"`
	CurrentPrice       float64         `json:"currentPrice"`
	DaysToExpiry       float64         `json:"daysToExpiry"`
	MagnetStrikes      []MagnetStrike  `json:"magnetStrikes"`
	DominantStrike     float64         `json:"dominantStrike"`
	PinningProbability float64         `json:"pinningProbability"`
	ExpectedRange      PriceRange      `json:"expectedRange"`
	Hedging            HedgingPressure `json:"hedging"`
	GammaByStrike      []StrikeGamma   `json:"gammaByStrike"`
}
