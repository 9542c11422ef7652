package usecase

import (
	"context"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
)

var asOf = time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)

// flatChain is a clean 0.25 IV chain with open interest concentrated at 100.
func flatChain(underlying string) models.ChainSnapshot {
	snap := models.ChainSnapshot{Underlying: underlying, Spot: 100, AsOf: asOf}
	for _, days := range []int{7, 30, 60} {
		exp := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
		for _, k := range []float64{90, 95, 100, 105, 110} {
			oi := int64(100)
			if k == 100 {
				oi = 5000
			}
			for _, typ := range []models.OptionType{models.Call, models.Put} {
				snap.Contracts = append(snap.Contracts, models.OptionContract{
					Symbol:            underlying,
					Strike:            k,
					Expiration:        exp,
					Type:              typ,
					ImpliedVolatility: 0.25,
					OpenInterest:      oi,
				})
			}
		}
	}
	return snap
}

type fakeReports struct {
	mu        sync.Mutex
	surfaces  []string
	backtests []string
}

func (f *fakeReports) PublishSurfaceAnalysis(_ context.Context, a *models.SurfaceAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surfaces = append(f.surfaces, a.Underlying)
	return nil
}

func (f *fakeReports) PublishBacktest(_ context.Context, r *models.BacktestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backtests = append(f.backtests, r.RunID)
	return nil
}

func (f *fakeReports) backtestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backtests)
}
