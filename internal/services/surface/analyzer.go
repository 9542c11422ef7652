package surface

import (
	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"
)

// Analyzer runs the full pipeline for one chain snapshot.
type Analyzer struct {
	Builder     *Builder
	Diagnostics *Diagnostics
	l           *applogger.Logger
}

func NewAnalyzer(cfg Config, l *applogger.Logger) *Analyzer {
	if l == nil {
		l = applogger.Nop()
	}
	b := NewBuilder(cfg, l)
	return &Analyzer{Builder: b, Diagnostics: NewDiagnostics(cfg, b), l: l}
}

func (a *Analyzer) Analyze(snap models.ChainSnapshot) (models.SurfaceAnalysis, error) {
	if snap.Spot <= 0 {
		return models.SurfaceAnalysis{}, errs.Invalid("spot must be positive for %s, got %v", snap.Underlying, snap.Spot)
	}
	if len(snap.Contracts) == 0 {
		return models.SurfaceAnalysis{}, errs.Invalid("chain for %s has no contracts", snap.Underlying)
	}
	b := a.Builder
	points := b.BuildSurface(b.Enrich(snap.Contracts, snap.Spot, snap.AsOf))
	grid := b.Interpolate(points)
	term := b.TermStructure(points)

	var skew []models.SkewPoint
	if ref, ok := b.ReferenceExpiry(points); ok {
		skew = b.Skew(AtExpiry(points, ref), snap.Spot)
	}

	res := models.SurfaceAnalysis{
		Underlying:    snap.Underlying,
		Spot:          snap.Spot,
		AsOf:          snap.AsOf,
		Points:        points,
		Surface:       grid,
		TermStructure: term,
		TermShape:     b.ClassifyTermStructure(term),
		Skew:          skew,
		SkewShape:     b.ClassifySkew(skew),
		Anomalies:     a.Diagnostics.DetectAnomalies(points, grid, snap.Spot),
		Arbitrage:     a.Diagnostics.FindArbitrage(points, snap.Spot),
	}
	a.l.Debug("surface analyzed",
		applogger.String("underlying", snap.Underlying),
		applogger.Int("points", len(points)),
		applogger.Int("anomalies", len(res.Anomalies)),
		applogger.Int("arbitrage", len(res.Arbitrage)),
	)
	return res, nil
}
