package surface

import (
	"errors"
	"testing"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/services/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPoints(iv float64, strikes []float64, days []int) []models.IVSurfacePoint {
	var pts []models.IVSurfacePoint
	for _, d := range days {
		for _, k := range strikes {
			pts = append(pts,
				models.IVSurfacePoint{Strike: k, DaysToExpiry: d, IV: iv, Type: models.Call},
				models.IVSurfacePoint{Strike: k, DaysToExpiry: d, IV: iv, Type: models.Put},
			)
		}
	}
	return pts
}

var (
	gridStrikes = []float64{90, 95, 100, 105, 110}
	gridDays    = []int{7, 30, 60}
)

func TestDiagnostics_FlatSurfaceIsClean(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuilder(cfg, nil)
	d := NewDiagnostics(cfg, b)
	pts := flatPoints(0.25, gridStrikes, gridDays)

	anomalies := d.DetectAnomalies(pts, b.Interpolate(pts), 100)
	assert.Empty(t, anomalies)
	assert.Empty(t, d.FindArbitrage(pts, 100))
}

func TestDiagnostics_SpikeIsFlagged(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuilder(cfg, nil)
	d := NewDiagnostics(cfg, b)
	pts := flatPoints(0.25, gridStrikes, gridDays)
	for i := range pts {
		if pts[i].Strike == 100 && pts[i].DaysToExpiry == 30 && pts[i].Type == models.Call {
			pts[i].IV = 0.40
		}
	}

	anomalies := d.DetectAnomalies(pts, b.Interpolate(pts), 100)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, models.SeverityHigh, anomalies[0].Severity)

	var spike *models.SurfaceAnomaly
	for i := range anomalies {
		if anomalies[i].Type == models.AnomalyIVSpike {
			spike = &anomalies[i]
		}
	}
	require.NotNil(t, spike)
	assert.Equal(t, 100.0, spike.Strike)
	assert.Equal(t, 30, spike.DaysToExpiry)
	assert.InDelta(t, 0.25, spike.ExpectedIV, 1e-9)
	assert.InDelta(t, 0.6, spike.Deviation, 1e-9)
	assert.Equal(t, models.SeverityHigh, spike.Severity)

	arbs := d.FindArbitrage(pts, 100)
	require.NotEmpty(t, arbs)
	fly := arbs[0]
	assert.Equal(t, models.ArbButterfly, fly.Type)
	require.Len(t, fly.Legs, 3)
	assert.Equal(t, models.Buy, fly.Legs[0].Action)
	assert.Equal(t, models.Sell, fly.Legs[1].Action)
	assert.Equal(t, 2, fly.Legs[1].Quantity)
	assert.Equal(t, 100.0, fly.Legs[1].Strike)
	assert.Equal(t, models.Buy, fly.Legs[2].Action)
	assert.Greater(t, fly.ExpectedProfit, 0.0)
	assert.Equal(t, "low", fly.RiskLevel)
}

func TestDiagnostics_CalendarSpread(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDiagnostics(cfg, NewBuilder(cfg, nil))
	pts := append(flatPoints(0.40, gridStrikes, []int{10}), flatPoints(0.25, gridStrikes, []int{40})...)

	arbs := d.FindArbitrage(pts, 100)
	require.Len(t, arbs, 1)
	cal := arbs[0]
	assert.Equal(t, models.ArbCalendarSpread, cal.Type)
	require.Len(t, cal.Legs, 2)
	assert.Equal(t, models.Sell, cal.Legs[0].Action)
	assert.Equal(t, 10, cal.Legs[0].DaysToExpiry)
	assert.Equal(t, 100.0, cal.Legs[0].Strike)
	assert.Equal(t, models.Buy, cal.Legs[1].Action)
	assert.Equal(t, 40, cal.Legs[1].DaysToExpiry)
	assert.Equal(t, "medium", cal.RiskLevel)
	assert.Greater(t, cal.ExpectedProfit, 0.0)
}

func TestDiagnostics_CalendarSpreadAcrossNonAdjacentExpiries(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDiagnostics(cfg, NewBuilder(cfg, nil))
	var pts []models.IVSurfacePoint
	pts = append(pts, flatPoints(0.40, gridStrikes, []int{10})...)
	pts = append(pts, flatPoints(0.37, gridStrikes, []int{40})...)
	pts = append(pts, flatPoints(0.30, gridStrikes, []int{70})...)

	arbs := d.FindArbitrage(pts, 100)
	require.Len(t, arbs, 2)
	pairs := map[[2]int]bool{}
	for _, a := range arbs {
		assert.Equal(t, models.ArbCalendarSpread, a.Type)
		require.Len(t, a.Legs, 2)
		pairs[[2]int{a.Legs[0].DaysToExpiry, a.Legs[1].DaysToExpiry}] = true
	}
	assert.True(t, pairs[[2]int{10, 70}])
	assert.True(t, pairs[[2]int{40, 70}])
	assert.False(t, pairs[[2]int{10, 40}])
}

func TestDiagnostics_ButterflyAnomalyTiers(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDiagnostics(cfg, NewBuilder(cfg, nil))
	calls := func(strikes, ivs []float64) []models.IVSurfacePoint {
		out := make([]models.IVSurfacePoint, len(strikes))
		for i := range strikes {
			out[i] = models.IVSurfacePoint{Strike: strikes[i], DaysToExpiry: 30, IV: ivs[i], Type: models.Call}
		}
		return out
	}
	cases := []struct {
		name     string
		pts      []models.IVSurfacePoint
		severity string
		dev      float64
	}{
		{"convex", calls([]float64{95, 100, 105}, []float64{0.25, 0.26, 0.25}), "", -0.01},
		{"medium", calls([]float64{95, 100, 105}, []float64{0.25, 0.28, 0.25}), models.SeverityMedium, -0.03},
		{"high", calls([]float64{95, 100, 105}, []float64{0.25, 0.32, 0.25}), models.SeverityHigh, -0.07},
		{"uneven strikes", calls([]float64{90, 95, 130}, []float64{0.30, 0.285, 0.20}), models.SeverityMedium, -0.035},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var found []models.SurfaceAnomaly
			for _, a := range d.DetectAnomalies(tc.pts, models.InterpolatedSurface{}, 0) {
				if a.Type == models.AnomalyButterfly {
					found = append(found, a)
				}
			}
			if tc.severity == "" {
				assert.Empty(t, found)
				return
			}
			require.Len(t, found, 1)
			assert.Equal(t, tc.severity, found[0].Severity)
			assert.Equal(t, tc.pts[1].Strike, found[0].Strike)
			assert.InDelta(t, tc.dev, found[0].Deviation, 1e-9)
		})
	}
}

func TestDiagnostics_ButterflyArbitrageUsesWingAverage(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDiagnostics(cfg, NewBuilder(cfg, nil))
	pts := []models.IVSurfacePoint{
		{Strike: 90, DaysToExpiry: 30, IV: 0.30, Type: models.Call},
		{Strike: 95, DaysToExpiry: 30, IV: 0.285, Type: models.Call},
		{Strike: 130, DaysToExpiry: 30, IV: 0.20, Type: models.Call},
	}

	arbs := d.FindArbitrage(pts, 100)
	require.Len(t, arbs, 1)
	assert.Equal(t, models.ArbButterfly, arbs[0].Type)
	require.Len(t, arbs[0].Legs, 3)
	assert.Equal(t, 95.0, arbs[0].Legs[1].Strike)
	assert.Greater(t, arbs[0].ExpectedProfit, 0.0)
}

func TestBuilder_ClassifyTermStructure(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil)
	term := func(ivs ...float64) []models.TermStructurePoint {
		out := make([]models.TermStructurePoint, len(ivs))
		for i, iv := range ivs {
			out[i] = models.TermStructurePoint{DaysToExpiry: (i + 1) * 30, AvgIV: iv, AtmIV: iv}
		}
		return out
	}
	cases := []struct {
		name string
		in   []models.TermStructurePoint
		want models.TermShape
	}{
		{"contango", term(0.20, 0.25), models.TermContango},
		{"backwardation", term(0.30, 0.22), models.TermBackwardation},
		{"humped", term(0.20, 0.30, 0.20), models.TermHumped},
		{"slight hump", term(0.25, 0.26, 0.25), models.TermHumped},
		{"flat", term(0.20, 0.21), models.TermFlat},
		{"single", term(0.20), models.TermFlat},
		{"empty", nil, models.TermFlat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, b.ClassifyTermStructure(tc.in))
		})
	}
}

func TestBuilder_ClassifySkew(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil)
	skew := func(putWing, atm, callWing float64) []models.SkewPoint {
		row := func(k, iv float64) models.SkewPoint {
			return models.SkewPoint{Strike: k, Moneyness: k / 100, CallIV: iv, PutIV: iv}
		}
		return []models.SkewPoint{
			row(90, putWing), row(95, putWing), row(100, atm), row(105, callWing), row(110, callWing),
		}
	}
	cases := []struct {
		name string
		in   []models.SkewPoint
		want models.SkewShape
	}{
		{"smirk", skew(0.30, 0.25, 0.25), models.SkewSmirk},
		{"smile", skew(0.30, 0.25, 0.30), models.SkewSmile},
		{"inverted", skew(0.20, 0.25, 0.30), models.SkewInverted},
		{"normal", skew(0.25, 0.25, 0.25), models.SkewNormal},
		{"empty", nil, models.SkewNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, b.ClassifySkew(tc.in))
		})
	}
}

func TestBuilder_BuildSurfaceDedupesAndSorts(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil)
	row := func(k float64, dte int, typ models.OptionType, iv float64) models.EnhancedOptionData {
		return models.EnhancedOptionData{
			OptionContract: models.OptionContract{Strike: k, Type: typ, ImpliedVolatility: iv},
			DaysToExpiry:   dte,
		}
	}
	pts := b.BuildSurface([]models.EnhancedOptionData{
		row(105, 30, models.Put, 0.22),
		row(100, 60, models.Call, 0.24),
		row(100, 30, models.Call, 0.20),
		row(100, 30, models.Call, 0.99),
		row(95, 30, models.Call, 0),
	})
	require.Len(t, pts, 3)
	assert.Equal(t, models.IVSurfacePoint{Strike: 100, DaysToExpiry: 30, IV: 0.20, Type: models.Call}, pts[0])
	assert.Equal(t, 105.0, pts[1].Strike)
	assert.Equal(t, 60, pts[2].DaysToExpiry)
}

func TestBuilder_TermStructureUsesDeltaNearestHalf(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil)
	pts := []models.IVSurfacePoint{
		{Strike: 95, DaysToExpiry: 30, IV: 0.30, Type: models.Call, Delta: 0.70},
		{Strike: 100, DaysToExpiry: 30, IV: 0.24, Type: models.Call, Delta: 0.52},
		{Strike: 105, DaysToExpiry: 30, IV: 0.22, Type: models.Call, Delta: 0.35},
		{Strike: 100, DaysToExpiry: 30, IV: 0.28, Type: models.Put, Delta: -0.48},
		{Strike: 100, DaysToExpiry: 7, IV: 0.26, Type: models.Put},
	}
	term := b.TermStructure(pts)
	require.Len(t, term, 2)
	assert.Equal(t, 7, term[0].DaysToExpiry)
	assert.InDelta(t, 0.26, term[0].AtmIV, 1e-12)
	assert.Equal(t, 30, term[1].DaysToExpiry)
	assert.InDelta(t, 0.24, term[1].AtmIV, 1e-12)
	assert.InDelta(t, 0.26, term[1].AvgIV, 1e-12)
}

func TestBuilder_InterpolateReproducesObservedPoints(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil)
	pts := []models.IVSurfacePoint{
		{Strike: 90, DaysToExpiry: 30, IV: 0.30, Type: models.Put},
		{Strike: 100, DaysToExpiry: 30, IV: 0.25, Type: models.Call},
		{Strike: 110, DaysToExpiry: 60, IV: 0.22, Type: models.Call},
	}
	s := b.Interpolate(pts)
	assert.Equal(t, []float64{90, 100, 110}, s.Strikes)
	assert.Equal(t, []int{30, 60}, s.Expirations)
	assert.InDelta(t, 0.30, s.IVMatrix[0][0], 1e-12)
	assert.InDelta(t, 0.25, s.IVMatrix[1][0], 1e-12)
	assert.InDelta(t, 0.22, s.IVMatrix[2][1], 1e-12)
	// filled cell stays within the observed range
	assert.True(t, s.IVMatrix[0][1] >= 0.22 && s.IVMatrix[0][1] <= 0.30)
}

func TestBuilder_EnrichSolvesMissingIV(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuilder(cfg, nil)
	asOf := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	exp := asOf.AddDate(0, 0, 30)
	ref, err := pricing.PriceAndGreeks(models.OptionParameters{
		SpotPrice: 100, Strike: 105, TimeToExpiry: 30.0 / 365, RiskFreeRate: cfg.RiskFreeRate,
		ImpliedVolatility: 0.3, OptionType: models.Call,
	})
	require.NoError(t, err)

	out := b.Enrich([]models.OptionContract{
		{Symbol: "X", Strike: 105, Expiration: exp, Type: models.Call, Bid: ref.Price, Ask: ref.Price},
		{Symbol: "old", Strike: 100, Expiration: asOf.AddDate(0, 0, -1), Type: models.Call, ImpliedVolatility: 0.2},
	}, 100, asOf)
	require.Len(t, out, 1)
	assert.Equal(t, 30, out[0].DaysToExpiry)
	assert.True(t, out[0].IVSolved)
	assert.InDelta(t, 0.3, out[0].ImpliedVolatility, 1e-4)
	require.NotNil(t, out[0].Pricing)
	assert.InDelta(t, ref.Price, out[0].Pricing.Price, 1e-4)
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	_, err := a.Analyze(models.ChainSnapshot{Underlying: "X", Spot: 0})
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var chain []models.OptionContract
	for _, days := range []int{14, 30, 60} {
		for _, k := range gridStrikes {
			for _, typ := range []models.OptionType{models.Call, models.Put} {
				chain = append(chain, models.OptionContract{
					Strike: k, Expiration: asOf.AddDate(0, 0, days), Type: typ, ImpliedVolatility: 0.25,
				})
			}
		}
	}
	res, err := a.Analyze(models.ChainSnapshot{Underlying: "X", Spot: 100, AsOf: asOf, Contracts: chain})
	require.NoError(t, err)
	assert.Len(t, res.Points, 30)
	assert.Len(t, res.TermStructure, 3)
	assert.Equal(t, models.TermFlat, res.TermShape)
	assert.Equal(t, models.SkewNormal, res.SkewShape)
	assert.Len(t, res.Skew, 5)
	assert.Empty(t, res.Anomalies)
	assert.Empty(t, res.Arbitrage)
}
