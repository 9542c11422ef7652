package pricing

import (
	"math"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	daysPerYear = 365.0
	pct         = 100.0
)

var stdNormal = distuv.UnitNormal

// d holds the shared Black-Scholes terms for one parameter set.
type d struct {
	s, k, t, r, q, sigma float64
	sqrtT, d1, d2        float64
	dfq, dfr, nd1        float64
}

func newD(p models.OptionParameters) d {
	x := d{
		s: p.SpotPrice, k: p.Strike, t: p.TimeToExpiry,
		r: p.RiskFreeRate, q: p.DividendYield, sigma: p.ImpliedVolatility,
	}
	x.sqrtT = math.Sqrt(x.t)
	x.d1 = (math.Log(x.s/x.k) + (x.r-x.q+0.5*x.sigma*x.sigma)*x.t) / (x.sigma * x.sqrtT)
	x.d2 = x.d1 - x.sigma*x.sqrtT
	x.dfq = math.Exp(-x.q * x.t)
	x.dfr = math.Exp(-x.r * x.t)
	x.nd1 = stdNormal.Prob(x.d1)
	return x
}

func (x d) price(typ models.OptionType) float64 {
	if typ == models.Call {
		return x.s*x.dfq*stdNormal.CDF(x.d1) - x.k*x.dfr*stdNormal.CDF(x.d2)
	}
	return x.k*x.dfr*stdNormal.CDF(-x.d2) - x.s*x.dfq*stdNormal.CDF(-x.d1)
}

// vega per unit of volatility.
func (x d) rawVega() float64 { return x.s * x.dfq * x.nd1 * x.sqrtT }

// Validate rejects parameter sets outside the model's domain.
func Validate(p models.OptionParameters) error {
	for name, v := range map[string]float64{
		"spotPrice":         p.SpotPrice,
		"strike":            p.Strike,
		"timeToExpiry":      p.TimeToExpiry,
		"riskFreeRate":      p.RiskFreeRate,
		"impliedVolatility": p.ImpliedVolatility,
		"dividendYield":     p.DividendYield,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Invalid("%s must be finite", name)
		}
	}
	if p.SpotPrice <= 0 {
		return errs.Invalid("spotPrice must be positive, got %v", p.SpotPrice)
	}
	if p.Strike <= 0 {
		return errs.Invalid("strike must be positive, got %v", p.Strike)
	}
	if p.OptionType != models.Call && p.OptionType != models.Put {
		return errs.Invalid("unknown option type %q", p.OptionType)
	}
	return nil
}

// PriceAndGreeks prices a European option and computes its first- and
// second-order Greeks.
//
// Expired options (TimeToExpiry <= 0) return the intrinsic payoff with a
// step delta and every other Greek zero. A non-positive volatility returns
// the deterministic discounted-intrinsic limit with zero second-order Greeks.
func PriceAndGreeks(p models.OptionParameters) (models.PricingResult, error) {
	if err := Validate(p); err != nil {
		return models.PricingResult{}, err
	}
	if p.TimeToExpiry <= 0 {
		return expired(p), nil
	}
	if p.ImpliedVolatility <= 0 {
		return zeroVol(p), nil
	}

	x := newD(p)
	var res models.PricingResult
	res.Price = math.Max(0, x.price(p.OptionType))

	decay := -x.s * x.dfq * x.nd1 * x.sigma / (2 * x.sqrtT)
	if p.OptionType == models.Call {
		res.First.Delta = x.dfq * stdNormal.CDF(x.d1)
		res.First.Theta = (decay - x.r*x.k*x.dfr*stdNormal.CDF(x.d2) + x.q*x.s*x.dfq*stdNormal.CDF(x.d1)) / daysPerYear
		res.First.Rho = x.k * x.t * x.dfr * stdNormal.CDF(x.d2) / pct
	} else {
		res.First.Delta = -x.dfq * stdNormal.CDF(-x.d1)
		res.First.Theta = (decay + x.r*x.k*x.dfr*stdNormal.CDF(-x.d2) - x.q*x.s*x.dfq*stdNormal.CDF(-x.d1)) / daysPerYear
		res.First.Rho = -x.k * x.t * x.dfr * stdNormal.CDF(-x.d2) / pct
	}
	res.First.Gamma = x.dfq * x.nd1 / (x.s * x.sigma * x.sqrtT)
	res.First.Vega = x.rawVega() / pct
	res.Second = secondOrder(x, p.OptionType, res.First.Gamma)
	return res, nil
}

func secondOrder(x d, typ models.OptionType, gamma float64) models.SecondOrderGreeks {
	sigSqrtT := x.sigma * x.sqrtT
	drift := 2*(x.r-x.q)*x.t - x.d2*sigSqrtT

	charm := -x.dfq * x.nd1 * drift / (2 * x.t * sigSqrtT)
	if typ == models.Call {
		charm += x.q * x.dfq * stdNormal.CDF(x.d1)
	} else {
		charm -= x.q * x.dfq * stdNormal.CDF(-x.d1)
	}

	veta := -x.rawVega() * (x.q + (x.r-x.q)*x.d1/sigSqrtT - (1+x.d1*x.d2)/(2*x.t))
	color := -x.dfq * x.nd1 / (2 * x.s * x.t * sigSqrtT) *
		(2*x.q*x.t + 1 + drift*x.d1/sigSqrtT)

	return models.SecondOrderGreeks{
		Vanna: -x.dfq * x.nd1 * x.d2 / x.sigma,
		Charm: charm / daysPerYear,
		Vomma: x.rawVega() * x.d1 * x.d2 / x.sigma,
		Veta:  veta / pct / daysPerYear,
		Speed: -gamma / x.s * (x.d1/sigSqrtT + 1),
		Zomma: gamma * (x.d1*x.d2 - 1) / x.sigma,
		Color: color / daysPerYear,
	}
}

func expired(p models.OptionParameters) models.PricingResult {
	var res models.PricingResult
	if p.OptionType == models.Call {
		res.Price = math.Max(p.SpotPrice-p.Strike, 0)
		if p.SpotPrice > p.Strike {
			res.First.Delta = 1
		}
		return res
	}
	res.Price = math.Max(p.Strike-p.SpotPrice, 0)
	if p.SpotPrice < p.Strike {
		res.First.Delta = -1
	}
	return res
}

func zeroVol(p models.OptionParameters) models.PricingResult {
	t := p.TimeToExpiry
	dfq := math.Exp(-p.DividendYield * t)
	dfr := math.Exp(-p.RiskFreeRate * t)
	fwdS := p.SpotPrice * dfq
	pvK := p.Strike * dfr

	var res models.PricingResult
	switch {
	case p.OptionType == models.Call && fwdS > pvK:
		res.Price = fwdS - pvK
		res.First.Delta = dfq
		res.First.Theta = (p.DividendYield*fwdS - p.RiskFreeRate*pvK) / daysPerYear
		res.First.Rho = t * pvK / pct
	case p.OptionType == models.Put && pvK > fwdS:
		res.Price = pvK - fwdS
		res.First.Delta = -dfq
		res.First.Theta = (p.RiskFreeRate*pvK - p.DividendYield*fwdS) / daysPerYear
		res.First.Rho = -t * pvK / pct
	}
	return res
}

// GammaProxy is the one-factor gamma used where full per-contract Greeks
// are unavailable: zero rates, no dividends. years and iv must be positive.
func GammaProxy(spot, strike, years, iv float64) float64 {
	if spot <= 0 || strike <= 0 || years <= 0 || iv <= 0 {
		return 0
	}
	sigSqrtT := iv * math.Sqrt(years)
	d1 := (math.Log(spot/strike) + 0.5*iv*iv*years) / sigSqrtT
	return stdNormal.Prob(d1) / (spot * sigSqrtT)
}

// YearsFromDays converts calendar days to a year fraction.
func YearsFromDays(days float64) float64 { return days / daysPerYear }
