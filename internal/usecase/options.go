package usecase

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/services/pinning"
	"QuantLens/internal/services/pricing"
	"QuantLens/internal/services/surface"
	applogger "QuantLens/pkg/logger"
)

// OptionsUseCase exposes pricing, surface analysis and pinning to the API,
// the Kafka consumer and the CLI.
type OptionsUseCase struct {
	analyzer  *surface.Analyzer
	predictor *pinning.Predictor
	chains    domrepo.ChainProvider
	reports   domrepo.ReportPublisher
	metrics   domrepo.Metrics
	workers   int
	l         *applogger.Logger
}

func NewOptionsUseCase(
	analyzer *surface.Analyzer,
	predictor *pinning.Predictor,
	chains domrepo.ChainProvider,
	reports domrepo.ReportPublisher,
	metrics domrepo.Metrics,
	workers int,
	l *applogger.Logger,
) *OptionsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &OptionsUseCase{
		analyzer:  analyzer,
		predictor: predictor,
		chains:    chains,
		reports:   reports,
		metrics:   orNop(metrics),
		workers:   workers,
		l:         l.With("options"),
	}
}

func (uc *OptionsUseCase) Price(p models.OptionParameters) (models.PricingResult, error) {
	start := time.Now()
	res, err := pricing.PriceAndGreeks(p)
	if err != nil {
		uc.metrics.RecordError("pricing")
		return res, err
	}
	uc.metrics.RecordLatency("price", time.Since(start).Seconds())
	return res, nil
}

func (uc *OptionsUseCase) ImpliedVol(p models.OptionParameters, marketPrice float64) (float64, error) {
	iv, err := pricing.ImpliedVolatility(p, marketPrice)
	if err != nil {
		uc.metrics.RecordError("implied_vol")
	}
	return iv, err
}

// AnalyzeSurface runs the surface pipeline for one chain and publishes the
// result. A publish failure is logged and does not fail the analysis.
func (uc *OptionsUseCase) AnalyzeSurface(ctx context.Context, snap models.ChainSnapshot) (*models.SurfaceAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled(err)
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}
	start := time.Now()
	res, err := uc.analyzer.Analyze(snap)
	if err != nil {
		uc.metrics.RecordError("surface")
		return nil, err
	}
	uc.metrics.RecordLatency("surface", time.Since(start).Seconds())
	uc.metrics.RecordSnapshot(snap.Underlying, len(snap.Contracts))
	uc.metrics.RecordAnomalies(snap.Underlying, len(res.Anomalies))

	if uc.reports != nil {
		if err := uc.reports.PublishSurfaceAnalysis(ctx, &res); err != nil {
			uc.metrics.RecordError("publish_surface")
			uc.l.Warn("publish surface analysis failed",
				applogger.String("underlying", snap.Underlying),
				applogger.Error(err),
			)
		}
	}
	return &res, nil
}

// LatestSurface analyzes the most recent stored chain for underlying.
func (uc *OptionsUseCase) LatestSurface(ctx context.Context, underlying string) (*models.SurfaceAnalysis, error) {
	snap, err := uc.latest(ctx, underlying)
	if err != nil {
		return nil, err
	}
	return uc.AnalyzeSurface(ctx, snap)
}

func (uc *OptionsUseCase) latest(ctx context.Context, underlying string) (models.ChainSnapshot, error) {
	if strings.TrimSpace(underlying) == "" {
		return models.ChainSnapshot{}, errs.Invalid("underlying required")
	}
	if uc.chains == nil {
		return models.ChainSnapshot{}, errs.NotFound("no chain source configured")
	}
	return uc.chains.LatestChain(ctx, underlying)
}

// AnalyzeBatch analyzes several chains concurrently. Results keep input
// order; every failed chain is reported.
func (uc *OptionsUseCase) AnalyzeBatch(ctx context.Context, snaps []models.ChainSnapshot) ([]models.SurfaceAnalysis, []errs.SymbolFailure) {
	type item struct {
		res *models.SurfaceAnalysis
		err error
	}
	results := make([]item, len(snaps))
	sem := make(chan struct{}, uc.workers)
	var wg sync.WaitGroup
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].err = errs.Cancelled(ctx.Err())
				return
			}
			defer func() { <-sem }()
			res, err := uc.AnalyzeSurface(ctx, snaps[i])
			results[i] = item{res, err}
		}(i)
	}
	wg.Wait()

	out := make([]models.SurfaceAnalysis, 0, len(snaps))
	var failures []errs.SymbolFailure
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, errs.NewSymbolFailure(snaps[i].Underlying, r.err))
			continue
		}
		out = append(out, *r.res)
	}
	return out, failures
}

// PinningParams: OpenInterest, CurrentPrice, DaysToExpiry and IV may be left
// empty to derive them from the latest stored chain.
type PinningParams struct {
	Symbol       string                      `json:"symbol" validate:"required"`
	CurrentPrice float64                     `json:"currentPrice"`
	OpenInterest []models.StrikeOpenInterest `json:"openInterest" validate:"dive"`
	DaysToExpiry float64                     `json:"daysToExpiry"`
	IV           float64                     `json:"iv"`
}

func (uc *OptionsUseCase) PredictPinning(ctx context.Context, p PinningParams) (*models.FridayEffectPrediction, error) {
	if len(p.OpenInterest) == 0 {
		snap, err := uc.latest(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		derived, ok := PinningFromChain(snap)
		if !ok {
			return nil, errs.Invalid("chain for %s has no open interest at a live expiry", p.Symbol)
		}
		if p.CurrentPrice <= 0 {
			p.CurrentPrice = derived.CurrentPrice
		}
		if p.DaysToExpiry <= 0 {
			p.DaysToExpiry = derived.DaysToExpiry
		}
		if p.IV <= 0 {
			p.IV = derived.IV
		}
		p.OpenInterest = derived.OpenInterest
	}
	pred, err := uc.predictor.Predict(p.Symbol, p.CurrentPrice, p.OpenInterest, p.DaysToExpiry, p.IV)
	if err != nil {
		uc.metrics.RecordError("pinning")
		return nil, err
	}
	return &pred, nil
}

// PinningFromChain aggregates open interest per strike at the nearest
// expiry that has not passed, with the ATM average IV.
func PinningFromChain(snap models.ChainSnapshot) (PinningParams, bool) {
	var nearest time.Time
	for _, c := range snap.Contracts {
		if c.Expiration.Before(snap.AsOf) {
			continue
		}
		if nearest.IsZero() || c.Expiration.Before(nearest) {
			nearest = c.Expiration
		}
	}
	if nearest.IsZero() || snap.Spot <= 0 {
		return PinningParams{}, false
	}

	byStrike := map[float64]*models.StrikeOpenInterest{}
	var ivSum float64
	var ivN int
	for _, c := range snap.Contracts {
		if !c.Expiration.Equal(nearest) || c.Strike <= 0 {
			continue
		}
		row, ok := byStrike[c.Strike]
		if !ok {
			row = &models.StrikeOpenInterest{Strike: c.Strike}
			byStrike[c.Strike] = row
		}
		if c.Type == models.Put {
			row.PutOI += c.OpenInterest
		} else {
			row.CallOI += c.OpenInterest
		}
		if c.ImpliedVolatility > 0 && math.Abs(c.Strike/snap.Spot-1) <= 0.05 {
			ivSum += c.ImpliedVolatility
			ivN++
		}
	}

	p := PinningParams{
		Symbol:       snap.Underlying,
		CurrentPrice: snap.Spot,
		DaysToExpiry: nearest.Sub(snap.AsOf).Hours() / 24,
	}
	var total int64
	for _, row := range byStrike {
		p.OpenInterest = append(p.OpenInterest, *row)
		total += row.CallOI + row.PutOI
	}
	if total == 0 {
		return PinningParams{}, false
	}
	sort.Slice(p.OpenInterest, func(i, j int) bool { return p.OpenInterest[i].Strike < p.OpenInterest[j].Strike })
	if ivN > 0 {
		p.IV = ivSum / float64(ivN)
	}
	return p, true
}
