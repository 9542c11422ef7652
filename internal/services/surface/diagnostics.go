package surface

import (
	"math"
	"sort"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/services/pricing"
)

const contractMultiplier = 100

// Diagnostics scans a surface for mispriced points and static arbitrage.
type Diagnostics struct {
	cfg     Config
	builder *Builder
}

func NewDiagnostics(cfg Config, b *Builder) *Diagnostics {
	if b == nil {
		b = NewBuilder(cfg, nil)
	}
	return &Diagnostics{cfg: cfg, builder: b}
}

// DetectAnomalies returns anomalies ordered by severity, then by absolute
// deviation.
func (d *Diagnostics) DetectAnomalies(points []models.IVSurfacePoint, surface models.InterpolatedSurface, spot float64) []models.SurfaceAnomaly {
	out := make([]models.SurfaceAnomaly, 0)
	out = append(out, d.outliers(points)...)
	for _, f := range d.flies(points) {
		if f.violation >= d.cfg.ButterflyFlag {
			continue
		}
		sev := models.SeverityMedium
		if f.violation < d.cfg.ButterflyHigh {
			sev = models.SeverityHigh
		}
		out = append(out, models.SurfaceAnomaly{
			Type:         models.AnomalyButterfly,
			Strike:       f.mid.Strike,
			DaysToExpiry: f.mid.DaysToExpiry,
			Severity:     sev,
			ExpectedIV:   f.mid.IV + f.violation,
			ActualIV:     f.mid.IV,
			Deviation:    f.violation,
		})
	}
	out = append(out, d.termJumps(surface)...)
	if spot > 0 {
		out = append(out, d.wingInversions(surface, spot)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return math.Abs(out[i].Deviation) > math.Abs(out[j].Deviation)
	})
	return out
}

// outliers compares every point to a leave-one-out IDW estimate built from
// the same option type.
func (d *Diagnostics) outliers(points []models.IVSurfacePoint) []models.SurfaceAnomaly {
	var out []models.SurfaceAnomaly
	for _, typ := range []models.OptionType{models.Call, models.Put} {
		same := make([]models.IVSurfacePoint, 0, len(points))
		for _, p := range points {
			if p.Type == typ {
				same = append(same, p)
			}
		}
		if len(same) < 3 {
			continue
		}
		a := newAxis(same)
		for i, p := range same {
			expected := idw(same, p.Strike, p.DaysToExpiry, i, a, d.cfg.IDWPower)
			if expected <= 0 {
				continue
			}
			dev := (p.IV - expected) / expected
			if math.Abs(dev) <= d.cfg.AnomalyThreshold {
				continue
			}
			kind := models.AnomalyIVSpike
			if dev < 0 {
				kind = models.AnomalyIVDip
			}
			out = append(out, models.SurfaceAnomaly{
				Type:         kind,
				Strike:       p.Strike,
				DaysToExpiry: p.DaysToExpiry,
				Severity:     d.deviationSeverity(math.Abs(dev)),
				ExpectedIV:   expected,
				ActualIV:     p.IV,
				Deviation:    dev,
			})
		}
	}
	return out
}

func (d *Diagnostics) deviationSeverity(dev float64) string {
	switch {
	case dev > d.cfg.HighDeviation:
		return models.SeverityHigh
	case dev > d.cfg.MediumDeviation:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (d *Diagnostics) termJumps(s models.InterpolatedSurface) []models.SurfaceAnomaly {
	var out []models.SurfaceAnomaly
	for i, row := range s.IVMatrix {
		for j := 1; j < len(row); j++ {
			prev, next := row[j-1], row[j]
			if prev <= 0 {
				continue
			}
			rel := (next - prev) / prev
			if math.Abs(rel) <= d.cfg.TermJump {
				continue
			}
			sev := models.SeverityMedium
			if math.Abs(rel) > 2*d.cfg.TermJump {
				sev = models.SeverityHigh
			}
			out = append(out, models.SurfaceAnomaly{
				Type:         models.AnomalyTerm,
				Strike:       s.Strikes[i],
				DaysToExpiry: s.Expirations[j],
				Severity:     sev,
				ExpectedIV:   prev,
				ActualIV:     next,
				Deviation:    rel,
			})
		}
	}
	return out
}

// wingInversions flags expiries where OTM calls trade richer than OTM puts
// by more than SkewWingSpread.
func (d *Diagnostics) wingInversions(s models.InterpolatedSurface, spot float64) []models.SurfaceAnomaly {
	var out []models.SurfaceAnomaly
	atm := 0
	for i, k := range s.Strikes {
		if math.Abs(k-spot) < math.Abs(s.Strikes[atm]-spot) {
			atm = i
		}
	}
	for j, days := range s.Expirations {
		var putSum, callSum float64
		var nPut, nCall int
		for i, k := range s.Strikes {
			m := k / spot
			iv := s.IVMatrix[i][j]
			switch {
			case m >= d.cfg.PutWingLow && m <= d.cfg.PutWingHigh:
				putSum += iv
				nPut++
			case m >= d.cfg.CallWingLow && m <= d.cfg.CallWingHigh:
				callSum += iv
				nCall++
			}
		}
		if nPut == 0 || nCall == 0 {
			continue
		}
		putWing, callWing := putSum/float64(nPut), callSum/float64(nCall)
		if spread := callWing - putWing; spread > d.cfg.SkewWingSpread {
			out = append(out, models.SurfaceAnomaly{
				Type:         models.AnomalySkew,
				Strike:       s.Strikes[atm],
				DaysToExpiry: days,
				Severity:     models.SeverityMedium,
				ExpectedIV:   putWing,
				ActualIV:     callWing,
				Deviation:    spread,
			})
		}
	}
	return out
}

func severityRank(s string) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}

// fly is three adjacent strikes of one expiry and type. violation is the
// wing average minus the body IV; negative means the body sits above it.
type fly struct {
	low, mid, high models.IVSurfacePoint
	violation      float64
}

func (d *Diagnostics) flies(points []models.IVSurfacePoint) []fly {
	type key struct {
		days int
		typ  models.OptionType
	}
	groups := map[key][]models.IVSurfacePoint{}
	var order []key
	for _, p := range points {
		k := key{p.DaysToExpiry, p.Type}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	var out []fly
	for _, k := range order {
		g := groups[k]
		sort.Slice(g, func(i, j int) bool { return g[i].Strike < g[j].Strike })
		for i := 0; i+2 < len(g); i++ {
			a, b, c := g[i], g[i+1], g[i+2]
			out = append(out, fly{low: a, mid: b, high: c, violation: (a.IV+c.IV)/2 - b.IV})
		}
	}
	return out
}

// FindArbitrage returns opportunities sorted by expected profit, largest
// first. Profits are per one-lot in dollars.
func (d *Diagnostics) FindArbitrage(points []models.IVSurfacePoint, spot float64) []models.ArbitrageOpportunity {
	out := make([]models.ArbitrageOpportunity, 0)
	if spot > 0 {
		out = append(out, d.calendars(points, spot)...)
	}
	for _, f := range d.flies(points) {
		if f.violation >= d.cfg.ButterflyArb {
			continue
		}
		vega := d.vega(spot, f.mid.Strike, f.mid.DaysToExpiry, f.mid.IV, f.mid.Type)
		risk := "low"
		if f.mid.DaysToExpiry < 7 {
			risk = "high"
		}
		out = append(out, models.ArbitrageOpportunity{
			Type: models.ArbButterfly,
			Legs: []models.ArbitrageLeg{
				leg(f.low, models.Buy, 1),
				leg(f.mid, models.Sell, 2),
				leg(f.high, models.Buy, 1),
			},
			ExpectedProfit: -f.violation * 100 * vega * 2 * contractMultiplier,
			RiskLevel:      risk,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpectedProfit > out[j].ExpectedProfit })
	return out
}

func (d *Diagnostics) calendars(points []models.IVSurfacePoint, spot float64) []models.ArbitrageOpportunity {
	var live []models.IVSurfacePoint
	for _, p := range points {
		if p.DaysToExpiry >= 1 {
			live = append(live, p)
		}
	}
	term := d.builder.TermStructure(live)
	var out []models.ArbitrageOpportunity
	for i := 0; i < len(term); i++ {
		for j := i + 1; j < len(term); j++ {
			if opp, ok := d.calendar(live, term[i], term[j], spot); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// calendar prices selling the near ATM call against buying the far one when
// the near expiry trades richer by more than CalendarArb.
func (d *Diagnostics) calendar(live []models.IVSurfacePoint, near, far models.TermStructurePoint, spot float64) (models.ArbitrageOpportunity, bool) {
	diff := near.AtmIV - far.AtmIV
	if diff <= d.cfg.CalendarArb {
		return models.ArbitrageOpportunity{}, false
	}
	nearLeg, ok1 := atmCall(live, near.DaysToExpiry, spot)
	farLeg, ok2 := atmCall(live, far.DaysToExpiry, spot)
	if !ok1 || !ok2 {
		return models.ArbitrageOpportunity{}, false
	}
	vega := d.vega(spot, nearLeg.Strike, near.DaysToExpiry, near.AtmIV, models.Call)
	risk := "medium"
	if near.DaysToExpiry < 7 {
		risk = "high"
	}
	return models.ArbitrageOpportunity{
		Type: models.ArbCalendarSpread,
		Legs: []models.ArbitrageLeg{
			leg(nearLeg, models.Sell, 1),
			leg(farLeg, models.Buy, 1),
		},
		ExpectedProfit: vega * diff * 100 * contractMultiplier,
		RiskLevel:      risk,
	}, true
}

// atmCall picks the call closest to spot at one expiry, falling back to any
// type when the expiry has no calls.
func atmCall(points []models.IVSurfacePoint, days int, spot float64) (models.IVSurfacePoint, bool) {
	var best models.IVSurfacePoint
	found, bestIsCall := false, false
	for _, p := range points {
		if p.DaysToExpiry != days {
			continue
		}
		isCall := p.Type == models.Call
		switch {
		case !found,
			isCall && !bestIsCall,
			isCall == bestIsCall && math.Abs(p.Strike-spot) < math.Abs(best.Strike-spot):
			best, found, bestIsCall = p, true, isCall
		}
	}
	return best, found
}

func leg(p models.IVSurfacePoint, action models.LegAction, qty int) models.ArbitrageLeg {
	return models.ArbitrageLeg{
		Strike:       p.Strike,
		DaysToExpiry: p.DaysToExpiry,
		Type:         p.Type,
		Action:       action,
		Quantity:     qty,
		IV:           p.IV,
	}
}

// vega per vol point; zero when the inputs fall outside the model.
func (d *Diagnostics) vega(spot, strike float64, days int, iv float64, typ models.OptionType) float64 {
	if spot <= 0 {
		return 0
	}
	res, err := pricing.PriceAndGreeks(models.OptionParameters{
		SpotPrice:         spot,
		Strike:            strike,
		TimeToExpiry:      pricing.YearsFromDays(float64(days)),
		RiskFreeRate:      d.cfg.RiskFreeRate,
		DividendYield:     d.cfg.DividendYield,
		ImpliedVolatility: iv,
		OptionType:        typ,
	})
	if err != nil {
		return 0
	}
	return res.First.Vega
}
