package api

import (
	"strings"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	xhttp "QuantLens/pkg/http"
)

// PriceRequest carries Black-Scholes inputs. TimeToExpiry is in years.
type PriceRequest struct {
	SpotPrice         float64 `json:"spotPrice" validate:"gt=0"`
	Strike            float64 `json:"strike" validate:"gt=0"`
	TimeToExpiry      float64 `json:"timeToExpiry" validate:"gte=0"`
	RiskFreeRate      float64 `json:"riskFreeRate"`
	ImpliedVolatility float64 `json:"impliedVolatility" validate:"gte=0"`
	OptionType        string  `json:"optionType" validate:"required"`
	DividendYield     float64 `json:"dividendYield"`
}

func (r PriceRequest) params() (models.OptionParameters, error) {
	typ, ok := models.ParseOptionType(r.OptionType)
	if !ok {
		return models.OptionParameters{}, errs.Invalid("unknown option type %q", r.OptionType)
	}
	return models.OptionParameters{
		SpotPrice:         r.SpotPrice,
		Strike:            r.Strike,
		TimeToExpiry:      r.TimeToExpiry,
		RiskFreeRate:      r.RiskFreeRate,
		ImpliedVolatility: r.ImpliedVolatility,
		OptionType:        typ,
		DividendYield:     r.DividendYield,
	}, nil
}

type ImpliedVolRequest struct {
	PriceRequest
	MarketPrice float64 `json:"marketPrice" validate:"gt=0"`
}

type ImpliedVolResponse struct {
	ImpliedVolatility float64 `json:"impliedVolatility"`
}

type SurfaceBatchRequest struct {
	Snapshots []models.ChainSnapshot `json:"snapshots" validate:"required,min=1"`
}

type SurfaceBatchResponse struct {
	Analyses []models.SurfaceAnalysis `json:"analyses"`
	Failures []errs.SymbolFailure     `json:"failures,omitempty"`
}

// EventDTO identifies an earnings event. Dates accept YYYY-MM-DD or RFC3339.
type EventDTO struct {
	Symbol       string `json:"symbol" validate:"required"`
	EarningsDate string `json:"earningsDate" validate:"required"`
}

type MovementsRequest struct {
	Events []EventDTO `json:"events" validate:"required,min=1,dive"`
}

type MovementsResponse struct {
	Movements []models.PriceMovement `json:"movements"`
	Failures  []errs.SymbolFailure   `json:"failures,omitempty"`
}

type TranscriptRequest struct {
	Symbol       string `json:"symbol" validate:"required"`
	EarningsDate string `json:"earningsDate"`
	Quarter      string `json:"quarter"`
	Text         string `json:"text" validate:"required"`
}

type IngestEventRequest struct {
	Symbol       string `json:"symbol" validate:"required"`
	EarningsDate string `json:"earningsDate" validate:"required"`
	Quarter      string `json:"quarter"`
	Transcript   string `json:"transcript"`
	Score        bool   `json:"score"`
}

type SentimentHistoryRequest struct {
	Symbol string `param:"symbol" validate:"required"`
	From   string `query:"from"`
	To     string `query:"to"`
}

type BacktestRequest struct {
	Symbols       []string         `json:"symbols" validate:"required,min=1,dive,required"`
	StartDate     string           `json:"startDate" validate:"required"`
	EndDate       string           `json:"endDate" validate:"required"`
	Timeframes    []models.Horizon `json:"timeframes"`
	SignalHorizon models.Horizon   `json:"signalHorizon"`
	Benchmark     string           `json:"benchmark"`
	MinSampleSize int              `json:"minSampleSize" validate:"gte=0"`
}

type BacktestStarted struct {
	RunID string `json:"runId"`
}

func parseDate(field, s string) (time.Time, error) {
	t, ok := xhttp.ParseTime(strings.TrimSpace(s))
	if !ok {
		return time.Time{}, errs.Invalid("%s: cannot parse %q as a date", field, s)
	}
	return t.UTC(), nil
}

func (r BacktestRequest) config() (models.BacktestConfig, error) {
	from, err := parseDate("startDate", r.StartDate)
	if err != nil {
		return models.BacktestConfig{}, err
	}
	to, err := parseDate("endDate", r.EndDate)
	if err != nil {
		return models.BacktestConfig{}, err
	}
	for _, h := range append(append([]models.Horizon{}, r.Timeframes...), r.SignalHorizon) {
		if h != "" && !models.IsValidHorizon(h) {
			return models.BacktestConfig{}, errs.Invalid("unknown horizon %q", h)
		}
	}
	return models.BacktestConfig{
		Symbols:       r.Symbols,
		StartDate:     from,
		EndDate:       to,
		Timeframes:    r.Timeframes,
		SignalHorizon: r.SignalHorizon,
		Benchmark:     r.Benchmark,
		MinSampleSize: r.MinSampleSize,
	}, nil
}
