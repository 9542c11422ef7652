package movement

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/repository"
	"QuantLens/internal/services/features"
	applogger "QuantLens/pkg/logger"
)

type Config struct {
	Benchmark string `yaml:"benchmark" default:"SPY"`
	// Calendar days fetched around the event. They must cover VolWindow+1
	// trading bars before and the longest horizon after.
	LookbackDays     int           `yaml:"lookback_days" default:"45"`
	ForwardDays      int           `yaml:"forward_days" default:"50"`
	VolWindow        int           `yaml:"vol_window" default:"20"`
	VolumeWindow     int           `yaml:"volume_window" default:"20"`
	DecayDays        int           `yaml:"decay_days" default:"5"`
	BenchmarkTimeout time.Duration `yaml:"benchmark_timeout" default:"5s"`
	Workers          int           `yaml:"workers" default:"4"`
}

func DefaultConfig() Config {
	return Config{
		Benchmark:        "SPY",
		LookbackDays:     45,
		ForwardDays:      50,
		VolWindow:        20,
		VolumeWindow:     20,
		DecayDays:        5,
		BenchmarkTimeout: 5 * time.Second,
		Workers:          4,
	}
}

// Analyzer measures how a stock moved around an earnings event.
type Analyzer struct {
	cfg  Config
	bars repository.BarStore
	l    *applogger.Logger
}

func NewAnalyzer(cfg Config, bars repository.BarStore, l *applogger.Logger) *Analyzer {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Analyzer{cfg: cfg, bars: bars, l: l.With("movement")}
}

func (a *Analyzer) Analyze(ctx context.Context, symbol string, earningsDate time.Time) (models.PriceMovement, error) {
	if symbol == "" {
		return models.PriceMovement{}, errs.Invalid("symbol required")
	}
	if earningsDate.IsZero() {
		return models.PriceMovement{}, errs.Invalid("earnings date required for %s", symbol)
	}
	day := features.AlignDay(earningsDate)
	from, to := a.window(day)

	bars, err := a.fetch(ctx, symbol, from, to)
	if err != nil {
		return models.PriceMovement{}, err
	}
	idx, ok := eventIndex(bars, day)
	if !ok {
		return models.PriceMovement{}, errs.NotFound("no %s bar on or after %s", symbol, day.Format(time.DateOnly))
	}

	out := models.PriceMovement{
		Symbol:          symbol,
		EarningsDate:    day,
		EventDate:       bars[idx].Date,
		PriceAtEarnings: bars[idx].Close,
		Movements:       make([]models.TimeframedMovement, 0, len(models.Horizons)),
	}
	if synthetic(bars) {
		out.Fallbacks = append(out.Fallbacks, models.FallbackSyntheticBars)
	}
	for _, h := range models.Horizons {
		out.Movements = append(out.Movements, horizonMovement(bars, idx, h))
	}

	bench, benchIdx, err := a.benchmark(ctx, day, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return models.PriceMovement{}, errs.Cancelled(ctx.Err())
		}
		a.l.Warn("benchmark unavailable, using zero benchmark return",
			applogger.String("symbol", symbol),
			applogger.String("benchmark", a.cfg.Benchmark),
			applogger.Error(err),
		)
		out.Fallbacks = append(out.Fallbacks, models.FallbackBenchmarkUnavailable)
	}
	out.AbnormalReturns = abnormalReturns(out.Movements, bench, benchIdx)
	out.Volatility = a.volatility(bars, idx)
	out.Volume = a.volume(bars, idx)
	return out, nil
}

func (a *Analyzer) window(day time.Time) (time.Time, time.Time) {
	return features.AlignFromTo(day.AddDate(0, 0, -a.cfg.LookbackDays), day.AddDate(0, 0, a.cfg.ForwardDays))
}

func (a *Analyzer) fetch(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	bars, err := a.bars.GetDailyBars(ctx, symbol, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Cancelled(ctx.Err())
		}
		if errs.Classified(err) {
			return nil, err
		}
		return nil, errs.Upstream("bars "+symbol, err)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// benchmark fetches the benchmark series under its own timeout. An error
// means the caller should fall back to a zero benchmark return.
func (a *Analyzer) benchmark(ctx context.Context, day, from, to time.Time) ([]models.Bar, int, error) {
	bctx := ctx
	if a.cfg.BenchmarkTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, a.cfg.BenchmarkTimeout)
		defer cancel()
	}
	bars, err := a.bars.GetDailyBars(bctx, a.cfg.Benchmark, from, to)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	idx, ok := eventIndex(bars, day)
	if !ok {
		return nil, 0, errs.NotFound("no %s bar on or after %s", a.cfg.Benchmark, day.Format(time.DateOnly))
	}
	return bars, idx, nil
}

// eventIndex returns the first bar dated on or after day.
func eventIndex(bars []models.Bar, day time.Time) (int, bool) {
	i := sort.Search(len(bars), func(i int) bool {
		return !features.AlignDay(bars[i].Date).Before(day)
	})
	return i, i < len(bars)
}

func synthetic(bars []models.Bar) bool {
	for _, b := range bars {
		if b.Synthetic {
			return true
		}
	}
	return false
}

// horizonMovement measures bars[idx..idx+h.Bars()], clipped to the series.
func horizonMovement(bars []models.Bar, idx int, h models.Horizon) models.TimeframedMovement {
	end := idx + h.Bars()
	complete := end < len(bars)
	if !complete {
		end = len(bars) - 1
	}
	start := bars[idx].Close
	m := models.TimeframedMovement{
		Timeframe:      h,
		StartPrice:     start,
		EndPrice:       bars[end].Close,
		AbsoluteChange: bars[end].Close - start,
		High:           start,
		Low:            start,
		Bars:           end - idx,
		Complete:       complete,
	}
	if start > 0 {
		m.PercentChange = m.AbsoluteChange / start * 100
	}
	peak, trough := start, start
	for _, b := range bars[idx : end+1] {
		m.High = math.Max(m.High, highOf(b))
		m.Low = math.Min(m.Low, lowOf(b))
		peak = math.Max(peak, b.Close)
		trough = math.Min(trough, b.Close)
		if peak > 0 {
			m.MaxDrawdown = math.Max(m.MaxDrawdown, (peak-b.Close)/peak*100)
		}
		if trough > 0 {
			m.MaxRunup = math.Max(m.MaxRunup, (b.Close-trough)/trough*100)
		}
	}
	return m
}

func highOf(b models.Bar) float64 {
	if b.High > 0 {
		return b.High
	}
	return b.Close
}

func lowOf(b models.Bar) float64 {
	if b.Low > 0 {
		return b.Low
	}
	return b.Close
}

// abnormalReturns subtracts the benchmark move per horizon. The cumulative
// figure adds each horizon's abnormal return onto the previous total even
// though the windows overlap.
func abnormalReturns(moves []models.TimeframedMovement, bench []models.Bar, benchIdx int) []models.AbnormalReturn {
	out := make([]models.AbnormalReturn, 0, len(moves))
	var cum float64
	for _, m := range moves {
		var br float64
		if len(bench) > 0 {
			br = horizonMovement(bench, benchIdx, m.Timeframe).PercentChange
		}
		ar := m.PercentChange - br
		cum += ar
		out = append(out, models.AbnormalReturn{
			Timeframe:                m.Timeframe,
			StockReturn:              m.PercentChange,
			BenchmarkReturn:          br,
			AbnormalReturn:           ar,
			CumulativeAbnormalReturn: cum,
		})
	}
	return out
}

// volatility compares realized vol over VolWindow returns ending at the
// event bar with VolWindow returns starting from it.
func (a *Analyzer) volatility(bars []models.Bar, idx int) models.VolatilityShift {
	w := a.cfg.VolWindow
	if idx < w || idx+w >= len(bars) {
		return models.VolatilityShift{}
	}
	pre := features.RealizedVolatility(features.ComputeLogReturns(bars[idx-w:idx+1]), w, features.TradingDaysPerYear)
	post := features.RealizedVolatility(features.ComputeLogReturns(bars[idx:idx+w+1]), w, features.TradingDaysPerYear)
	change := post - pre
	return models.VolatilityShift{
		PreEventVol:      pre,
		PostEventVol:     post,
		VolatilityChange: change,
		IVCrushEstimate:  math.Max(0, -change) * 2,
		Sufficient:       true,
	}
}

func (a *Analyzer) volume(bars []models.Bar, idx int) models.VolumeShift {
	lo := max(0, idx-a.cfg.VolumeWindow)
	v := models.VolumeShift{
		PreEventAvg: features.AverageVolume(bars[lo:idx]),
		EventVolume: bars[idx].Volume,
		DecayRatios: make([]float64, 0, a.cfg.DecayDays),
	}
	if v.PreEventAvg <= 0 {
		return v
	}
	v.EventVolumeRatio = v.EventVolume / v.PreEventAvg
	for k := 1; k <= a.cfg.DecayDays && idx+k < len(bars); k++ {
		v.DecayRatios = append(v.DecayRatios, bars[idx+k].Volume/v.PreEventAvg)
	}
	return v
}

// BatchAnalyze analyzes events concurrently. Results keep the input order
// of the events that succeeded; every failure is reported, never dropped.
func (a *Analyzer) BatchAnalyze(ctx context.Context, events []models.EventRequest) ([]models.PriceMovement, []errs.SymbolFailure) {
	type item struct {
		pm  models.PriceMovement
		err error
	}
	results := make([]item, len(events))
	sem := make(chan struct{}, a.cfg.Workers)
	var wg sync.WaitGroup
	for i, ev := range events {
		wg.Add(1)
		go func(i int, ev models.EventRequest) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].err = errs.Cancelled(ctx.Err())
				return
			}
			defer func() { <-sem }()
			pm, err := a.Analyze(ctx, ev.Symbol, ev.EarningsDate)
			results[i] = item{pm, err}
		}(i, ev)
	}
	wg.Wait()

	out := make([]models.PriceMovement, 0, len(events))
	var failures []errs.SymbolFailure
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, errs.NewSymbolFailure(events[i].Symbol, r.err))
			if !errors.Is(r.err, errs.ErrNotFound) {
				a.l.Warn("movement analysis failed",
					applogger.String("symbol", events[i].Symbol),
					applogger.Error(r.err),
				)
			}
			continue
		}
		out = append(out, r.pm)
	}
	return out, failures
}
