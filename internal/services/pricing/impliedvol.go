package pricing

import (
	"math"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
)

const (
	minVol        = 1e-4
	maxVol        = 5.0
	ivTolerance   = 1e-8
	newtonMaxIter = 100
	bisectMaxIter = 200
)

// ImpliedVolatility inverts the Black-Scholes price for sigma.
// ImpliedVolatility on p is ignored. Newton-Raphson is tried first and
// bisection takes over when vega vanishes or the step leaves the bracket.
func ImpliedVolatility(p models.OptionParameters, marketPrice float64) (float64, error) {
	p.ImpliedVolatility = 0
	if err := Validate(p); err != nil {
		return 0, err
	}
	if p.TimeToExpiry <= 0 {
		return 0, errs.Invalid("implied volatility undefined for expired option")
	}
	if math.IsNaN(marketPrice) || marketPrice <= 0 {
		return 0, errs.Invalid("market price must be positive, got %v", marketPrice)
	}

	lower := zeroVol(p).Price
	upper := p.SpotPrice * math.Exp(-p.DividendYield*p.TimeToExpiry)
	if p.OptionType == models.Put {
		upper = p.Strike * math.Exp(-p.RiskFreeRate*p.TimeToExpiry)
	}
	if marketPrice < lower-ivTolerance || marketPrice >= upper {
		return 0, errs.Invalid("market price %.4f outside no-arbitrage bounds [%.4f, %.4f)", marketPrice, lower, upper)
	}

	priceAt := func(sigma float64) (float64, float64) {
		q := p
		q.ImpliedVolatility = sigma
		x := newD(q)
		return x.price(p.OptionType), x.rawVega()
	}

	// Brenner-Subrahmanyam seed.
	sigma := math.Sqrt(2*math.Pi/p.TimeToExpiry) * marketPrice / p.SpotPrice
	sigma = math.Min(math.Max(sigma, 0.01), 3)
	for i := 0; i < newtonMaxIter; i++ {
		price, vega := priceAt(sigma)
		diff := price - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}
		if vega < 1e-10 {
			break
		}
		next := sigma - diff/vega
		if next <= minVol || next >= maxVol || math.IsNaN(next) {
			break
		}
		sigma = next
	}

	lo, hi := minVol, maxVol
	for i := 0; i < bisectMaxIter; i++ {
		mid := 0.5 * (lo + hi)
		price, _ := priceAt(mid)
		if math.Abs(price-marketPrice) < ivTolerance || hi-lo < ivTolerance {
			return mid, nil
		}
		if price > marketPrice {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0.5 * (lo + hi), nil
}
