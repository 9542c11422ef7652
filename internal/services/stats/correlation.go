package stats

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"

	"gonum.org/v1/gonum/stat/distuv"
)

type Config struct {
	ConfidenceLevel float64 `yaml:"confidence_level" default:"0.95" validate:"gt=0,lt=1"`
	HighP           float64 `yaml:"high_p" default:"0.01"`
	MediumP         float64 `yaml:"medium_p" default:"0.05"`
	LowP            float64 `yaml:"low_p" default:"0.10"`
}

func DefaultConfig() Config {
	return Config{ConfidenceLevel: 0.95, HighP: 0.01, MediumP: 0.05, LowP: 0.10}
}

type cacheKey struct {
	factor string
	tf     models.Horizon
}

// Engine correlates sentiment factors with forward price moves. Results are
// cached per (factor, timeframe) for one input set, until ClearCache or until
// Matrix sees different inputs.
type Engine struct {
	cfg Config
	l   *applogger.Logger

	mu     sync.RWMutex
	cache  map[cacheKey]models.CorrelationResult
	inputs uint64
}

func NewEngine(cfg Config, l *applogger.Logger) *Engine {
	if l == nil {
		l = applogger.Nop()
	}
	return &Engine{cfg: cfg, l: l, cache: make(map[cacheKey]models.CorrelationResult)}
}

func (e *Engine) neutral(n int) models.CorrelationResult {
	return models.CorrelationResult{
		PValue:             1,
		ConfidenceInterval: models.ConfidenceInterval{Lower: -1, Upper: 1, Level: e.cfg.ConfidenceLevel},
		SampleSize:         n,
		Significance:       models.SignificanceNone,
	}
}

// Correlation is the Pearson coefficient of x and y with a Student-t
// p-value and a Fisher-z confidence interval. Fewer than three pairs,
// mismatched lengths and constant series give the neutral result.
func (e *Engine) Correlation(x, y []float64) models.CorrelationResult {
	n := min(len(x), len(y))
	if len(x) != len(y) || n < 3 {
		return e.neutral(n)
	}
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return e.neutral(n)
	}
	r := math.Max(-1, math.Min(1, sxy/math.Sqrt(sxx*syy)))

	res := models.CorrelationResult{
		Correlation: r,
		RSquared:    r * r,
		SampleSize:  n,
	}
	res.PValue = pValue(r, n)
	res.ConfidenceInterval = e.fisherInterval(r, n)
	res.Significance = e.significance(res.PValue)
	return res
}

// pValue is the two-sided p of t = r*sqrt(n-2)/sqrt(1-r^2).
func pValue(r float64, n int) float64 {
	denom := 1 - r*r
	if denom <= 1e-15 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)) / math.Sqrt(denom)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return math.Min(1, 2*dist.Survival(math.Abs(t)))
}

func (e *Engine) fisherInterval(r float64, n int) models.ConfidenceInterval {
	ci := models.ConfidenceInterval{Lower: -1, Upper: 1, Level: e.cfg.ConfidenceLevel}
	if n <= 3 {
		return ci
	}
	const edge = 1 - 1e-12
	rc := math.Max(-edge, math.Min(edge, r))
	z := math.Atanh(rc)
	se := 1 / math.Sqrt(float64(n-3))
	crit := distuv.UnitNormal.Quantile(1 - (1-e.cfg.ConfidenceLevel)/2)
	ci.Lower = math.Tanh(z - crit*se)
	ci.Upper = math.Tanh(z + crit*se)
	return ci
}

func (e *Engine) significance(p float64) models.Significance {
	switch {
	case p < e.cfg.HighP:
		return models.SignificanceHigh
	case p < e.cfg.MediumP:
		return models.SignificanceMedium
	case p < e.cfg.LowP:
		return models.SignificanceLow
	default:
		return models.SignificanceNone
	}
}

type pairKey struct {
	symbol string
	day    time.Time
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Pairs joins sentiment and movements on (symbol, earnings day), in the
// order of the sentiment slice.
func Pairs(sentiment []models.HistoricalSentimentData, movements []models.PriceMovement) ([]models.HistoricalSentimentData, []models.PriceMovement) {
	byKey := make(map[pairKey]models.PriceMovement, len(movements))
	for _, m := range movements {
		byKey[pairKey{m.Symbol, dayOf(m.EarningsDate)}] = m
	}
	var s []models.HistoricalSentimentData
	var p []models.PriceMovement
	for _, h := range sentiment {
		m, ok := byKey[pairKey{h.Symbol, dayOf(h.EarningsDate)}]
		if !ok {
			continue
		}
		s = append(s, h)
		p = append(p, m)
	}
	return s, p
}

// Matrix correlates every sentiment factor with the percent change of every
// horizon. Cached cells are reused only while the paired inputs are unchanged.
func (e *Engine) Matrix(sentiment []models.HistoricalSentimentData, movements []models.PriceMovement) models.CorrelationMatrix {
	s, p := Pairs(sentiment, movements)
	e.resetOnNewInputs(fingerprint(s, p))
	m := models.CorrelationMatrix{
		Factors:      append([]string(nil), models.SentimentFactors...),
		Timeframes:   append([]models.Horizon(nil), models.Horizons...),
		Correlations: make([][]float64, len(models.SentimentFactors)),
		PValues:      make([][]float64, len(models.SentimentFactors)),
		SampleSize:   len(s),
	}
	hits := 0
	for i, f := range m.Factors {
		m.Correlations[i] = make([]float64, len(m.Timeframes))
		m.PValues[i] = make([]float64, len(m.Timeframes))
		for j, tf := range m.Timeframes {
			res, cached := e.cached(f, tf)
			if cached {
				hits++
			} else {
				x, y := factorSeries(s, p, f, tf)
				res = e.Correlation(x, y)
				res.Factor, res.Timeframe = f, tf
				e.store(res)
			}
			m.Correlations[i][j] = res.Correlation
			m.PValues[i][j] = res.PValue
		}
	}
	e.l.Debug("correlation matrix built",
		applogger.Int("pairs", len(s)),
		applogger.Int("cache_hits", hits),
	)
	return m
}

func factorSeries(s []models.HistoricalSentimentData, p []models.PriceMovement, factor string, tf models.Horizon) ([]float64, []float64) {
	x := make([]float64, 0, len(s))
	y := make([]float64, 0, len(s))
	for i := range s {
		fv, ok := s[i].Sentiment.Factor(factor)
		if !ok {
			continue
		}
		mv, ok := p[i].Movement(tf)
		if !ok {
			continue
		}
		x = append(x, fv)
		y = append(y, mv.PercentChange)
	}
	return x, y
}

func (e *Engine) cached(f string, tf models.Horizon) (models.CorrelationResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.cache[cacheKey{f, tf}]
	return r, ok
}

func (e *Engine) store(r models.CorrelationResult) {
	e.mu.Lock()
	e.cache[cacheKey{r.Factor, r.Timeframe}] = r
	e.mu.Unlock()
}

func fingerprint(s []models.HistoricalSentimentData, p []models.PriceMovement) uint64 {
	h := fnv.New64a()
	enc := json.NewEncoder(h)
	_ = enc.Encode(s)
	_ = enc.Encode(p)
	return h.Sum64()
}

func (e *Engine) resetOnNewInputs(fp uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fp != e.inputs {
		e.cache = make(map[cacheKey]models.CorrelationResult)
		e.inputs = fp
	}
}

// ClearCache drops every cached (factor, timeframe) result.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[cacheKey]models.CorrelationResult)
	e.mu.Unlock()
}

// CachedResults returns a snapshot of the cache in factor, timeframe order.
func (e *Engine) CachedResults() []models.CorrelationResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.CorrelationResult, 0, len(e.cache))
	for _, f := range models.SentimentFactors {
		for _, tf := range models.Horizons {
			if r, ok := e.cache[cacheKey{f, tf}]; ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// BestPredictors returns the n cached results with the largest |r|, ties
// broken by the smaller p-value.
func (e *Engine) BestPredictors(n int) []models.CorrelationResult {
	all := e.CachedResults()
	sort.SliceStable(all, func(i, j int) bool {
		ai, aj := math.Abs(all[i].Correlation), math.Abs(all[j].Correlation)
		if ai != aj {
			return ai > aj
		}
		return all[i].PValue < all[j].PValue
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// DecomposeByFactor ranks factors at one timeframe by |r|*r^2, normalized
// to sum to 100.
func (e *Engine) DecomposeByFactor(m models.CorrelationMatrix, tf models.Horizon) []models.FactorDecomposition {
	out := make([]models.FactorDecomposition, 0, len(m.Factors))
	var total float64
	for _, f := range m.Factors {
		r, p, ok := m.Result(f, tf)
		if !ok {
			continue
		}
		d := models.FactorDecomposition{
			Factor:       f,
			Timeframe:    tf,
			Correlation:  r,
			RSquared:     r * r,
			PValue:       p,
			Contribution: math.Abs(r) * r * r,
			Significance: e.significance(p),
		}
		total += d.Contribution
		out = append(out, d)
	}
	for i := range out {
		if total > 0 {
			out[i].Contribution = out[i].Contribution / total * 100
		} else {
			out[i].Contribution = 0
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Contribution > out[j].Contribution })
	return out
}
