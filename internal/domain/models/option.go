package models

import (
	"strings"
	"time"
)

// OptionType is the contract right: call or put.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType normalizes a raw option type ("C", "Put", ...).
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, true
	case "put", "p":
		return Put, true
	default:
		return "", false
	}
}

// OptionParameters are the Black-Scholes inputs. TimeToExpiry is in years.
type OptionParameters struct {
	SpotPrice         float64    `json:"spotPrice"`
	Strike            float64    `json:"strike"`
	TimeToExpiry      float64    `json:"timeToExpiry"`
	RiskFreeRate      float64    `json:"riskFreeRate"`
	ImpliedVolatility float64    `json:"impliedVolatility"`
	OptionType        OptionType `json:"optionType"`
	DividendYield     float64    `json:"dividendYield,omitempty"`
}

// FirstOrderGreeks: theta per calendar day, vega per vol point, rho per rate point.
type FirstOrderGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// SecondOrderGreeks: charm, veta and color are per calendar day.
type SecondOrderGreeks struct {
	Vanna float64 `json:"vanna"`
	Charm float64 `json:"charm"`
	Vomma float64 `json:"vomma"`
	Veta  float64 `json:"veta"`
	Speed float64 `json:"speed"`
	Zomma float64 `json:"zomma"`
	Color float64 `json:"color"`
}

type PricingResult struct {
	Price  float64           `json:"price"`
	First  FirstOrderGreeks  `json:"firstOrder"`
	Second SecondOrderGreeks `json:"secondOrder"`
}

// OptionContract is one row of an option chain as delivered by a provider.
type OptionContract struct {
	Symbol            string            `json:"symbol"`
	Underlying        string            `json:"underlying,omitempty"`
	Strike            float64           `json:"strike"`
	Expiration        time.Time         `json:"expiration"`
	Type              OptionType        `json:"type"`
	Greeks            *FirstOrderGreeks `json:"greeks,omitempty"`
	ImpliedVolatility float64           `json:"impliedVolatility"`
	Bid               float64           `json:"bid"`
	Ask               float64           `json:"ask"`
	Last              float64           `json:"last"`
	Volume            int64             `json:"volume"`
	OpenInterest      int64             `json:"openInterest"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 && c.Ask >= c.Bid {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// EnhancedOptionData is a chain row with model-derived fields attached.
type EnhancedOptionData struct {
	OptionContract
	DaysToExpiry int            `json:"daysToExpiry"`
	Pricing      *PricingResult `json:"pricing,omitempty"`
	IVSolved     bool           `json:"ivSolved,omitempty"`
}

// ChainSnapshot is a full option chain for one underlying at a point in time.
type ChainSnapshot struct {
	Underlying string           `json:"underlying"`
	Spot       float64          `json:"spot"`
	AsOf       time.Time        `json:"asOf"`
	Contracts  []OptionContract `json:"contracts"`
}
