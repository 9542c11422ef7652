package pinning

import (
	"fmt"
	"math"
	"sort"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/services/pricing"
)

// Config holds the pinning blend. The weights and cap reproduce the
// reference outputs and should not be tuned casually.
type Config struct {
	MagnetRange         float64 `yaml:"magnet_range" default:"0.05"`
	TimeWindowDays      float64 `yaml:"time_window_days" default:"5"`
	IVCeiling           float64 `yaml:"iv_ceiling" default:"0.5"`
	ConcentrationWeight float64 `yaml:"concentration_weight" default:"0.5"`
	TimeWeight          float64 `yaml:"time_weight" default:"0.3"`
	IVWeight            float64 `yaml:"iv_weight" default:"0.2"`
	MaxProbability      float64 `yaml:"max_probability" default:"0.9"`
	// Floor on days used for the gamma proxy so expiry-day gamma stays finite.
	MinGammaDays       float64 `yaml:"min_gamma_days" default:"0.5"`
	ContractMultiplier float64 `yaml:"contract_multiplier" default:"100"`
}

func DefaultConfig() Config {
	return Config{
		MagnetRange:         0.05,
		TimeWindowDays:      5,
		IVCeiling:           0.5,
		ConcentrationWeight: 0.5,
		TimeWeight:          0.3,
		IVWeight:            0.2,
		MaxProbability:      0.9,
		MinGammaDays:        0.5,
		ContractMultiplier:  100,
	}
}

type Predictor struct {
	cfg Config
}

func NewPredictor(cfg Config) *Predictor {
	return &Predictor{cfg: cfg}
}

// Predict estimates where dealer hedging is likely to hold the price into
// expiry. Dealers are modeled short the public's net call-minus-put position.
func (p *Predictor) Predict(symbol string, currentPrice float64, oi []models.StrikeOpenInterest, daysToExpiry, iv float64) (models.FridayEffectPrediction, error) {
	if err := validate(currentPrice, oi, daysToExpiry, iv); err != nil {
		return models.FridayEffectPrediction{}, err
	}

	years := pricing.YearsFromDays(math.Max(daysToExpiry, p.cfg.MinGammaDays))
	gammas := make([]models.StrikeGamma, 0, len(oi))
	var totalOI, nearOI int64
	var netSum, grossSum float64
	var magnets []models.MagnetStrike
	for _, s := range oi {
		g := pricing.GammaProxy(currentPrice, s.Strike, years, iv)
		total := s.CallOI + s.PutOI
		net := g * float64(s.CallOI-s.PutOI) * p.cfg.ContractMultiplier
		gammas = append(gammas, models.StrikeGamma{Strike: s.Strike, Gamma: g, NetGamma: net, TotalOI: total})

		totalOI += total
		netSum += net
		grossSum += g * float64(total) * p.cfg.ContractMultiplier

		dist := math.Abs(s.Strike-currentPrice) / currentPrice
		if dist <= p.cfg.MagnetRange {
			nearOI += total
			magnets = append(magnets, models.MagnetStrike{
				Strike: s.Strike, TotalOI: total, DistancePct: dist * 100, NetGamma: net,
			})
		}
	}
	sort.Slice(gammas, func(i, j int) bool { return gammas[i].Strike < gammas[j].Strike })
	sort.SliceStable(magnets, func(i, j int) bool {
		if magnets[i].TotalOI != magnets[j].TotalOI {
			return magnets[i].TotalOI > magnets[j].TotalOI
		}
		return magnets[i].DistancePct < magnets[j].DistancePct
	})

	out := models.FridayEffectPrediction{
		Symbol:        symbol,
		CurrentPrice:  currentPrice,
		DaysToExpiry:  daysToExpiry,
		MagnetStrikes: magnets,
		GammaByStrike: gammas,
	}
	if out.MagnetStrikes == nil {
		out.MagnetStrikes = []models.MagnetStrike{}
	}
	if len(magnets) > 0 {
		out.DominantStrike = magnets[0].Strike
	}

	var concentration float64
	if totalOI > 0 {
		concentration = float64(nearOI) / float64(totalOI)
	}
	out.PinningProbability = p.probability(concentration, daysToExpiry, iv)

	move := currentPrice * iv * math.Sqrt(daysToExpiry/365)
	out.ExpectedRange = models.PriceRange{Low: currentPrice - move, High: currentPrice + move}
	out.Hedging = hedging(netSum, grossSum, out.DominantStrike)
	return out, nil
}

func (p *Predictor) probability(concentration, days, iv float64) float64 {
	var timeFactor, ivFactor float64
	if days < p.cfg.TimeWindowDays {
		timeFactor = (p.cfg.TimeWindowDays - days) / p.cfg.TimeWindowDays
	}
	if iv < p.cfg.IVCeiling {
		ivFactor = (p.cfg.IVCeiling - iv) / p.cfg.IVCeiling
	}
	prob := p.cfg.ConcentrationWeight*concentration + p.cfg.TimeWeight*timeFactor + p.cfg.IVWeight*ivFactor
	return math.Min(prob, p.cfg.MaxProbability)
}

func hedging(net, gross, dominant float64) models.HedgingPressure {
	h := models.HedgingPressure{Flow: models.FlowNeutral, TotalNetGamma: net}
	if gross > 0 {
		h.Intensity = math.Abs(net) / gross
	}
	switch {
	case net > 0:
		h.Flow = models.FlowStabilizing
		h.Description = fmt.Sprintf("dealers short gamma against call interest: expect dips bought and rallies sold around %.2f", dominant)
	case net < 0:
		h.Flow = models.FlowDestabilizing
		h.Description = "put-heavy positioning: dealer hedging amplifies moves away from the strikes"
	default:
		h.Description = "balanced open interest: no directional hedging pressure"
	}
	return h
}

func validate(price float64, oi []models.StrikeOpenInterest, days, iv float64) error {
	switch {
	case !(price > 0) || math.IsInf(price, 0):
		return errs.Invalid("currentPrice must be positive, got %v", price)
	case !(days >= 0) || math.IsInf(days, 0):
		return errs.Invalid("daysToExpiry must be non-negative, got %v", days)
	case !(iv > 0) || math.IsInf(iv, 0):
		return errs.Invalid("impliedVolatility must be positive, got %v", iv)
	case len(oi) == 0:
		return errs.Invalid("open interest by strike is empty")
	}
	for _, s := range oi {
		if !(s.Strike > 0) || s.CallOI < 0 || s.PutOI < 0 {
			return errs.Invalid("bad open interest row at strike %v", s.Strike)
		}
	}
	return nil
}
