package surface

import (
	"math"
	"sort"
	"time"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/services/pricing"
	applogger "QuantLens/pkg/logger"
)

const maxIV = 5.0

// Builder turns option chains into IV surface points and derived curves.
type Builder struct {
	cfg Config
	l   *applogger.Logger
}

func NewBuilder(cfg Config, l *applogger.Logger) *Builder {
	if l == nil {
		l = applogger.Nop()
	}
	return &Builder{cfg: cfg, l: l}
}

// DaysToExpiry counts calendar days from asOf to expiration, by date.
func DaysToExpiry(asOf, expiration time.Time) int {
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(a).Hours() / 24)
}

// Enrich attaches days to expiry, a solved IV where the provider sent
// none, and model pricing. Contracts already expired are dropped.
func (b *Builder) Enrich(chain []models.OptionContract, spot float64, asOf time.Time) []models.EnhancedOptionData {
	out := make([]models.EnhancedOptionData, 0, len(chain))
	solved, failed := 0, 0
	for _, c := range chain {
		dte := DaysToExpiry(asOf, c.Expiration)
		if dte < 0 || c.Strike <= 0 {
			continue
		}
		e := models.EnhancedOptionData{OptionContract: c, DaysToExpiry: dte}
		p := models.OptionParameters{
			SpotPrice:         spot,
			Strike:            c.Strike,
			TimeToExpiry:      pricing.YearsFromDays(float64(dte)),
			RiskFreeRate:      b.cfg.RiskFreeRate,
			DividendYield:     b.cfg.DividendYield,
			ImpliedVolatility: c.ImpliedVolatility,
			OptionType:        c.Type,
		}
		if p.ImpliedVolatility <= 0 && dte > 0 && c.Mid() > 0 {
			iv, err := pricing.ImpliedVolatility(p, c.Mid())
			if err == nil {
				p.ImpliedVolatility = iv
				e.ImpliedVolatility = iv
				e.IVSolved = true
				solved++
			} else {
				failed++
			}
		}
		if res, err := pricing.PriceAndGreeks(p); err == nil {
			e.Pricing = &res
		}
		out = append(out, e)
	}
	if solved > 0 || failed > 0 {
		b.l.Debug("surface enrich solved implied vols",
			applogger.Int("solved", solved),
			applogger.Int("failed", failed),
			applogger.Int("contracts", len(chain)),
		)
	}
	return out
}

type pointKey struct {
	strike float64
	days   int
	typ    models.OptionType
}

// BuildSurface keeps one point per (strike, daysToExpiry, type) with a
// usable IV, sorted by expiry, strike, then type.
func (b *Builder) BuildSurface(priced []models.EnhancedOptionData) []models.IVSurfacePoint {
	seen := make(map[pointKey]struct{}, len(priced))
	points := make([]models.IVSurfacePoint, 0, len(priced))
	for _, o := range priced {
		iv := o.ImpliedVolatility
		if iv <= 0 || iv > maxIV || math.IsNaN(iv) || o.DaysToExpiry < 0 {
			continue
		}
		k := pointKey{o.Strike, o.DaysToExpiry, o.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		pt := models.IVSurfacePoint{Strike: o.Strike, DaysToExpiry: o.DaysToExpiry, IV: iv, Type: o.Type}
		switch {
		case o.Pricing != nil:
			pt.Delta = o.Pricing.First.Delta
		case o.Greeks != nil:
			pt.Delta = o.Greeks.Delta
		}
		points = append(points, pt)
	}
	sort.Slice(points, func(i, j int) bool {
		a, c := points[i], points[j]
		if a.DaysToExpiry != c.DaysToExpiry {
			return a.DaysToExpiry < c.DaysToExpiry
		}
		if a.Strike != c.Strike {
			return a.Strike < c.Strike
		}
		return a.Type < c.Type
	})
	return points
}

// TermStructure reports average IV per expiry and the IV of the call whose
// delta is nearest 0.5 as the ATM proxy.
func (b *Builder) TermStructure(points []models.IVSurfacePoint) []models.TermStructurePoint {
	byDays := map[int][]models.IVSurfacePoint{}
	for _, p := range points {
		byDays[p.DaysToExpiry] = append(byDays[p.DaysToExpiry], p)
	}
	out := make([]models.TermStructurePoint, 0, len(byDays))
	for days, pts := range byDays {
		var sum, callSum float64
		calls := 0
		atm, best := 0.0, math.Inf(1)
		for _, p := range pts {
			sum += p.IV
			if p.Type != models.Call {
				continue
			}
			callSum += p.IV
			calls++
			if p.Delta == 0 {
				continue
			}
			if dist := math.Abs(p.Delta - 0.5); dist < best {
				best, atm = dist, p.IV
			}
		}
		avg := sum / float64(len(pts))
		if math.IsInf(best, 1) {
			atm = avg
			if calls > 0 {
				atm = callSum / float64(calls)
			}
		}
		out = append(out, models.TermStructurePoint{DaysToExpiry: days, AvgIV: avg, AtmIV: atm})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysToExpiry < out[j].DaysToExpiry })
	return out
}

// Skew lays call and put IV side by side per strike. Strikes quoted at
// several expiries are averaged; pass a single expiry for a true smile.
func (b *Builder) Skew(points []models.IVSurfacePoint, spot float64) []models.SkewPoint {
	if spot <= 0 {
		return nil
	}
	type acc struct {
		call, put float64
		nc, np    int
	}
	byStrike := map[float64]*acc{}
	for _, p := range points {
		a := byStrike[p.Strike]
		if a == nil {
			a = &acc{}
			byStrike[p.Strike] = a
		}
		if p.Type == models.Call {
			a.call += p.IV
			a.nc++
		} else {
			a.put += p.IV
			a.np++
		}
	}
	out := make([]models.SkewPoint, 0, len(byStrike))
	for k, a := range byStrike {
		sp := models.SkewPoint{Strike: k, Moneyness: k / spot}
		if a.nc > 0 {
			sp.CallIV = a.call / float64(a.nc)
		}
		if a.np > 0 {
			sp.PutIV = a.put / float64(a.np)
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// ReferenceExpiry picks the listed expiry closest to SkewTargetDays.
func (b *Builder) ReferenceExpiry(points []models.IVSurfacePoint) (int, bool) {
	best, found := 0, false
	for _, p := range points {
		if !found || absInt(p.DaysToExpiry-b.cfg.SkewTargetDays) < absInt(best-b.cfg.SkewTargetDays) {
			best, found = p.DaysToExpiry, true
		}
	}
	return best, found
}

// AtExpiry filters points to one expiry.
func AtExpiry(points []models.IVSurfacePoint, days int) []models.IVSurfacePoint {
	out := make([]models.IVSurfacePoint, 0, len(points))
	for _, p := range points {
		if p.DaysToExpiry == days {
			out = append(out, p)
		}
	}
	return out
}

// ClassifySkew compares wing IV to ATM IV. Put wing reads put IV on strikes
// in [PutWingLow, PutWingHigh] moneyness, call wing reads call IV on
// [CallWingLow, CallWingHigh]; a missing side falls back to the other.
func (b *Builder) ClassifySkew(skew []models.SkewPoint) models.SkewShape {
	if len(skew) == 0 {
		return models.SkewNormal
	}
	atmIdx := 0
	for i, s := range skew {
		if math.Abs(s.Moneyness-1) < math.Abs(skew[atmIdx].Moneyness-1) {
			atmIdx = i
		}
	}
	atm := sideIV(skew[atmIdx], models.Call)
	if atm == 0 {
		return models.SkewNormal
	}
	putWing, okP := b.wingIV(skew, b.cfg.PutWingLow, b.cfg.PutWingHigh, models.Put)
	callWing, okC := b.wingIV(skew, b.cfg.CallWingLow, b.cfg.CallWingHigh, models.Call)
	if !okP || !okC {
		return models.SkewNormal
	}
	th := b.cfg.SkewThreshold
	putUp := putWing-atm > th
	callUp := callWing-atm > th
	putDown := atm-putWing > th
	switch {
	case putUp && callUp:
		return models.SkewSmile
	case putUp:
		return models.SkewSmirk
	case putDown && callUp:
		return models.SkewInverted
	default:
		return models.SkewNormal
	}
}

func (b *Builder) wingIV(skew []models.SkewPoint, lo, hi float64, side models.OptionType) (float64, bool) {
	var sum float64
	n := 0
	for _, s := range skew {
		if s.Moneyness < lo || s.Moneyness > hi {
			continue
		}
		if iv := sideIV(s, side); iv > 0 {
			sum += iv
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sideIV(s models.SkewPoint, side models.OptionType) float64 {
	if side == models.Call {
		if s.CallIV > 0 {
			return s.CallIV
		}
		return s.PutIV
	}
	if s.PutIV > 0 {
		return s.PutIV
	}
	return s.CallIV
}

// ClassifyTermStructure reads the ATM IV curve front to back.
func (b *Builder) ClassifyTermStructure(term []models.TermStructurePoint) models.TermShape {
	if len(term) < 2 {
		return models.TermFlat
	}
	front := term[0].AtmIV
	back := term[len(term)-1].AtmIV
	slope := back - front
	switch {
	case slope > b.cfg.TermSlope:
		return models.TermContango
	case slope < -b.cfg.TermSlope:
		return models.TermBackwardation
	}
	for _, p := range term[1 : len(term)-1] {
		if p.AtmIV-front > b.cfg.HumpMargin && p.AtmIV-back > b.cfg.HumpMargin {
			return models.TermHumped
		}
	}
	return models.TermFlat
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
