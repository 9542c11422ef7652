package pricing

import (
	"math"
	"testing"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(spot, strike, t, r, iv float64, typ models.OptionType) models.OptionParameters {
	return models.OptionParameters{
		SpotPrice: spot, Strike: strike, TimeToExpiry: t,
		RiskFreeRate: r, ImpliedVolatility: iv, OptionType: typ,
	}
}

func TestPriceAndGreeks_KnownValues(t *testing.T) {
	call, err := PriceAndGreeks(params(100, 100, 1, 0.05, 0.2, models.Call))
	require.NoError(t, err)
	put, err := PriceAndGreeks(params(100, 100, 1, 0.05, 0.2, models.Put))
	require.NoError(t, err)

	assert.InDelta(t, 10.4506, call.Price, 1e-3)
	assert.InDelta(t, 5.5735, put.Price, 1e-3)
	assert.InDelta(t, 0.6368, call.First.Delta, 1e-3)
	assert.InDelta(t, 0.018762, call.First.Gamma, 1e-5)
	assert.InDelta(t, 0.37524, call.First.Vega, 1e-4)
}

func TestPriceAndGreeks_PutCallParity(t *testing.T) {
	for _, strike := range []float64{80, 95, 100, 105, 130} {
		call, err := PriceAndGreeks(params(100, strike, 0.5, 0.03, 0.35, models.Call))
		require.NoError(t, err)
		put, err := PriceAndGreeks(params(100, strike, 0.5, 0.03, 0.35, models.Put))
		require.NoError(t, err)
		assert.InDelta(t, 100-strike*math.Exp(-0.03*0.5), call.Price-put.Price, 1e-9, "strike %v", strike)
	}
}

func TestPriceAndGreeks_DeltaBoundsAndSymmetry(t *testing.T) {
	for _, spot := range []float64{50, 90, 100, 110, 200} {
		for _, iv := range []float64{0.05, 0.25, 0.8} {
			for _, tte := range []float64{1.0 / 365, 0.25, 2} {
				call, err := PriceAndGreeks(params(spot, 100, tte, 0.05, iv, models.Call))
				require.NoError(t, err)
				put, err := PriceAndGreeks(params(spot, 100, tte, 0.05, iv, models.Put))
				require.NoError(t, err)

				assert.GreaterOrEqual(t, call.First.Delta, 0.0)
				assert.LessOrEqual(t, call.First.Delta, 1.0)
				assert.GreaterOrEqual(t, put.First.Delta, -1.0)
				assert.LessOrEqual(t, put.First.Delta, 0.0)
				assert.InDelta(t, 1.0, call.First.Delta-put.First.Delta, 1e-9)

				assert.InDelta(t, call.First.Gamma, put.First.Gamma, 1e-12)
				assert.InDelta(t, call.First.Vega, put.First.Vega, 1e-12)
				assert.InDelta(t, call.Second.Vanna, put.Second.Vanna, 1e-12)
				assert.InDelta(t, call.Second.Vomma, put.Second.Vomma, 1e-9)
				assert.InDelta(t, call.Second.Speed, put.Second.Speed, 1e-12)
				assert.InDelta(t, call.Second.Zomma, put.Second.Zomma, 1e-12)
			}
		}
	}
}

func TestPriceAndGreeks_VannaMatchesFiniteDifference(t *testing.T) {
	base := params(100, 105, 0.5, 0.02, 0.3, models.Call)
	h := 1e-4
	up, down := base, base
	up.ImpliedVolatility += h
	down.ImpliedVolatility -= h

	ru, err := PriceAndGreeks(up)
	require.NoError(t, err)
	rd, err := PriceAndGreeks(down)
	require.NoError(t, err)
	r, err := PriceAndGreeks(base)
	require.NoError(t, err)

	assert.InDelta(t, (ru.First.Delta-rd.First.Delta)/(2*h), r.Second.Vanna, 1e-5)
}

func TestPriceAndGreeks_Expired(t *testing.T) {
	call, err := PriceAndGreeks(params(110, 100, 0, 0.05, 0.2, models.Call))
	require.NoError(t, err)
	assert.Equal(t, 10.0, call.Price)
	assert.Equal(t, 1.0, call.First.Delta)
	assert.Zero(t, call.First.Gamma)
	assert.Zero(t, call.First.Vega)
	assert.Zero(t, call.First.Theta)
	assert.Equal(t, models.SecondOrderGreeks{}, call.Second)

	otm, err := PriceAndGreeks(params(90, 100, -1, 0.05, 0.2, models.Call))
	require.NoError(t, err)
	assert.Zero(t, otm.Price)
	assert.Zero(t, otm.First.Delta)

	put, err := PriceAndGreeks(params(90, 100, 0, 0.05, 0.2, models.Put))
	require.NoError(t, err)
	assert.Equal(t, 10.0, put.Price)
	assert.Equal(t, -1.0, put.First.Delta)
}

func TestPriceAndGreeks_ZeroVolatility(t *testing.T) {
	r, err := PriceAndGreeks(params(120, 100, 1, 0.05, 0, models.Call))
	require.NoError(t, err)
	assert.InDelta(t, 120-100*math.Exp(-0.05), r.Price, 1e-9)
	assert.Equal(t, 1.0, r.First.Delta)
	assert.Zero(t, r.First.Gamma)
	assert.Equal(t, models.SecondOrderGreeks{}, r.Second)

	otm, err := PriceAndGreeks(params(80, 100, 1, 0.05, -0.1, models.Call))
	require.NoError(t, err)
	assert.Zero(t, otm.Price)
	assert.Equal(t, models.SecondOrderGreeks{}, otm.Second)
}

func TestPriceAndGreeks_InvalidInput(t *testing.T) {
	cases := []models.OptionParameters{
		params(0, 100, 1, 0.05, 0.2, models.Call),
		params(100, -5, 1, 0.05, 0.2, models.Call),
		params(100, 100, math.NaN(), 0.05, 0.2, models.Call),
		params(100, 100, 1, 0.05, 0.2, "straddle"),
	}
	for _, p := range cases {
		_, err := PriceAndGreeks(p)
		assert.ErrorIs(t, err, errs.ErrInvalidInput)
	}
}

func TestGammaProxy_MatchesKernelWithoutCarry(t *testing.T) {
	r, err := PriceAndGreeks(params(100, 95, 7.0/365, 0, 0.4, models.Call))
	require.NoError(t, err)
	assert.InDelta(t, r.First.Gamma, GammaProxy(100, 95, 7.0/365, 0.4), 1e-12)
	assert.Zero(t, GammaProxy(100, 95, 0, 0.4))
}
