package features

import (
	"math"
	"time"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily bar statistics.
const TradingDaysPerYear = 252

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
// A non-positive close contributes a zero return.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using the sample standard deviation. Returns 0 when there
// are fewer than window returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	variance := stat.Variance(logReturns[len(logReturns)-window:], nil)
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// AverageVolume is the mean volume over bars, 0 for an empty slice.
func AverageVolume(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	v := make([]float64, len(bars))
	for i, b := range bars {
		v[i] = b.Volume
	}
	return stat.Mean(v, nil)
}

// AlignDay truncates t to midnight UTC of its calendar date.
func AlignDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AlignFromTo widens [from, to] to whole UTC days.
func AlignFromTo(from, to time.Time) (time.Time, time.Time) {
	return AlignDay(from), AlignDay(to).Add(24*time.Hour - time.Nanosecond)
}
