package surface

import (
	"math"
	"sort"

	"QuantLens/internal/domain/models"
)

// axis scales strike and expiry distances to comparable units.
type axis struct {
	strikeSpan float64
	daysSpan   float64
}

func newAxis(points []models.IVSurfacePoint) axis {
	if len(points) == 0 {
		return axis{1, 1}
	}
	minK, maxK := points[0].Strike, points[0].Strike
	minT, maxT := points[0].DaysToExpiry, points[0].DaysToExpiry
	for _, p := range points[1:] {
		minK = math.Min(minK, p.Strike)
		maxK = math.Max(maxK, p.Strike)
		minT = min(minT, p.DaysToExpiry)
		maxT = max(maxT, p.DaysToExpiry)
	}
	a := axis{strikeSpan: maxK - minK, daysSpan: float64(maxT - minT)}
	if a.strikeSpan <= 0 {
		a.strikeSpan = 1
	}
	if a.daysSpan <= 0 {
		a.daysSpan = 1
	}
	return a
}

// idw estimates IV at (strike, days) by inverse-distance weighting over
// points, ignoring index skip (pass -1 to use every point). Exact
// coordinate matches are averaged and returned directly. Returns 0 when
// no point contributes.
func idw(points []models.IVSurfacePoint, strike float64, days int, skip int, a axis, power float64) float64 {
	var wsum, vsum, exactSum float64
	exact := 0
	for i, p := range points {
		if i == skip {
			continue
		}
		dk := (p.Strike - strike) / a.strikeSpan
		dt := float64(p.DaysToExpiry-days) / a.daysSpan
		dist := math.Hypot(dk, dt)
		if dist < 1e-12 {
			exactSum += p.IV
			exact++
			continue
		}
		w := 1 / math.Pow(dist, power)
		wsum += w
		vsum += w * p.IV
	}
	if exact > 0 {
		return exactSum / float64(exact)
	}
	if wsum == 0 {
		return 0
	}
	return vsum / wsum
}

// Interpolate fills a dense strike x expiry grid spanning the observed
// points using inverse-distance weighting.
func (b *Builder) Interpolate(points []models.IVSurfacePoint) models.InterpolatedSurface {
	out := models.InterpolatedSurface{Strikes: []float64{}, Expirations: []int{}, IVMatrix: [][]float64{}}
	if len(points) == 0 {
		return out
	}
	ks := map[float64]struct{}{}
	ts := map[int]struct{}{}
	for _, p := range points {
		ks[p.Strike] = struct{}{}
		ts[p.DaysToExpiry] = struct{}{}
	}
	for k := range ks {
		out.Strikes = append(out.Strikes, k)
	}
	for t := range ts {
		out.Expirations = append(out.Expirations, t)
	}
	sort.Float64s(out.Strikes)
	sort.Ints(out.Expirations)

	a := newAxis(points)
	out.IVMatrix = make([][]float64, len(out.Strikes))
	for i, k := range out.Strikes {
		row := make([]float64, len(out.Expirations))
		for j, t := range out.Expirations {
			row[j] = idw(points, k, t, -1, a, b.cfg.IDWPower)
		}
		out.IVMatrix[i] = row
	}
	return out
}
