package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuite_ShortSeriesAreNeutral(t *testing.T) {
	s := NewSuite(DefaultSuiteConfig())
	for _, series := range [][]float64{nil, {1}, {1, 2, 3}} {
		res := s.Run(series)
		for _, r := range []struct {
			sig  bool
			p    float64
			name string
		}{
			{res.Normality.Significant, res.Normality.PValue, res.Normality.Name},
			{res.Autocorrelation.Significant, res.Autocorrelation.PValue, res.Autocorrelation.Name},
			{res.Heteroskedasticity.Significant, res.Heteroskedasticity.PValue, res.Heteroskedasticity.Name},
			{res.Stationarity.Significant, res.Stationarity.PValue, res.Stationarity.Name},
		} {
			assert.False(t, r.sig, r.name)
			assert.Equal(t, 1.0, r.p, r.name)
		}
		assert.Equal(t, "normal", res.Normality.Verdict)
		assert.Equal(t, "inconclusive", res.Stationarity.Verdict)
	}
}

func TestSuite_JarqueBera(t *testing.T) {
	s := NewSuite(DefaultSuiteConfig())

	flat := s.JarqueBera([]float64{-2, -1, 0, 1, 2})
	assert.False(t, flat.Significant)
	assert.InDelta(t, 5.0/6*(1.69/4), flat.Statistic, 1e-9)

	spiky := make([]float64, 20)
	spiky[19] = 10
	res := s.JarqueBera(spiky)
	assert.True(t, res.Significant)
	assert.Equal(t, "non_normal", res.Verdict)

	assert.False(t, s.JarqueBera([]float64{3, 3, 3, 3, 3}).Significant)
}

func alternating(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = hi
		} else {
			out[i] = lo
		}
	}
	return out
}

func TestSuite_LjungBox(t *testing.T) {
	s := NewSuite(DefaultSuiteConfig())
	res := s.LjungBox(alternating(30, -1, 1))
	assert.True(t, res.Significant)
	assert.Equal(t, "autocorrelated", res.Verdict)

	assert.False(t, s.LjungBox(alternating(11, -1, 1)).Significant)
}

func TestSuite_BreuschPagan(t *testing.T) {
	s := NewSuite(DefaultSuiteConfig())
	series := append(alternating(10, -0.1, 0.1), alternating(10, -5, 5)...)
	res := s.BreuschPagan(series)
	assert.True(t, res.Significant)
	assert.Equal(t, "heteroskedastic", res.Verdict)
	assert.InDelta(t, 2500.0, res.Statistic, 1e-6)

	same := s.BreuschPagan(alternating(20, -1, 1))
	assert.False(t, same.Significant)
	assert.InDelta(t, 1.0, same.Statistic, 1e-9)
}

func TestSuite_DickeyFuller(t *testing.T) {
	s := NewSuite(DefaultSuiteConfig())
	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = -float64(i)
		if i%2 == 1 {
			falling[i] += 0.1
		}
	}
	res := s.DickeyFuller(falling)
	assert.True(t, res.Significant)
	assert.Equal(t, "stationary", res.Verdict)
	assert.Less(t, res.PValue, 0.01)

	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i) + 0.1*float64(i%2)
	}
	assert.False(t, s.DickeyFuller(rising).Significant)
}
