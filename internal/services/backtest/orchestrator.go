package backtest

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/repository"
	"QuantLens/internal/domain/service"
	"QuantLens/internal/services/stats"
	applogger "QuantLens/pkg/logger"
)

var stagePercent = map[models.BacktestStage]float64{
	models.StageIdle:                0,
	models.StageCollectingSentiment: 10,
	models.StageAnalyzingPrices:     35,
	models.StageCorrelating:         55,
	models.StageDecomposing:         65,
	models.StageEvaluatingSignals:   75,
	models.StageTesting:             85,
	models.StageSummarizing:         95,
	models.StageDone:                100,
}

// ProgressFunc receives every stage transition.
type ProgressFunc func(models.BacktestProgress)

type Option func(*Orchestrator)

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func WithMetrics(m repository.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.l = l.With("backtest")
		}
	}
}

// Orchestrator runs one backtest. It owns the correlation cache for the
// run; callers must not start a second Run on a busy instance.
type Orchestrator struct {
	cfg       Config
	sentiment service.SentimentSource
	movement  service.MovementAnalyzer
	engine    *stats.Engine
	suite     *stats.Suite

	onProgress ProgressFunc
	metrics    repository.Metrics
	l          *applogger.Logger

	cancelled atomic.Bool
	mu        sync.RWMutex
	progress  models.BacktestProgress
	stageAt   time.Time
}

func NewOrchestrator(cfg Config, sentiment service.SentimentSource, movement service.MovementAnalyzer,
	engine *stats.Engine, suite *stats.Suite, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		sentiment: sentiment,
		movement:  movement,
		engine:    engine,
		suite:     suite,
		l:         applogger.Nop(),
		progress:  models.BacktestProgress{Stage: models.StageIdle},
	}
	if o.engine == nil {
		o.engine = stats.NewEngine(stats.DefaultConfig(), nil)
	}
	if o.suite == nil {
		o.suite = stats.NewSuite(stats.DefaultSuiteConfig())
	}
	if o.cfg.Workers <= 0 {
		o.cfg.Workers = 1
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Cancel asks the run to stop at the next stage boundary.
func (o *Orchestrator) Cancel() { o.cancelled.Store(true) }

// Progress returns the latest progress snapshot.
func (o *Orchestrator) Progress() models.BacktestProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}

func (o *Orchestrator) setStage(stage models.BacktestStage, msg string) {
	now := time.Now()
	o.mu.Lock()
	prev, prevAt := o.progress.Stage, o.stageAt
	p := o.progress
	p.Stage = stage
	p.Message = msg
	p.UpdatedAt = now
	if pct, ok := stagePercent[stage]; ok && pct > p.Percent {
		p.Percent = pct
	}
	o.progress = p
	o.stageAt = now
	o.mu.Unlock()

	if o.metrics != nil && prev != models.StageIdle && !prevAt.IsZero() {
		o.metrics.RecordBacktestStage(string(prev), now.Sub(prevAt).Seconds())
	}
	if o.onProgress != nil {
		o.onProgress(p)
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		o.setStage(models.StageCancelled, "context done")
		return errs.Cancelled(ctx.Err())
	}
	if o.cancelled.Load() {
		o.setStage(models.StageCancelled, "cancelled by request")
		return errs.ErrCancelled
	}
	return nil
}

func (o *Orchestrator) normalize(c models.BacktestConfig) (models.BacktestConfig, error) {
	if len(c.Symbols) == 0 {
		return c, errs.Invalid("at least one symbol required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return c, errs.Invalid("empty symbol in backtest config")
		}
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || !c.StartDate.Before(c.EndDate) {
		return c, errs.Invalid("startDate must precede endDate")
	}
	if c.SignalHorizon == "" {
		c.SignalHorizon = o.cfg.SignalHorizon
	}
	if !models.IsValidHorizon(c.SignalHorizon) {
		return c, errs.Invalid("unsupported signal horizon %q", c.SignalHorizon)
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = append([]models.Horizon(nil), models.Horizons...)
	}
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = o.cfg.MinSampleSize
	}
	return c, nil
}

// Run executes every stage in order. Per-symbol failures are collected in
// the result; only invalid config, cancellation or a run with no usable
// data return an error.
func (o *Orchestrator) Run(ctx context.Context, runID string, bc models.BacktestConfig) (*models.BacktestResult, error) {
	bc, err := o.normalize(bc)
	if err != nil {
		o.setStage(models.StageFailed, err.Error())
		return nil, err
	}
	o.mu.Lock()
	o.progress.RunID = runID
	o.mu.Unlock()

	res := &models.BacktestResult{RunID: runID, Config: bc, StartedAt: time.Now().UTC()}
	o.engine.ClearCache()
	log := o.l

	o.setStage(models.StageCollectingSentiment, "collecting sentiment history")
	events, failures := o.collectSentiment(ctx, bc)
	res.Failures = append(res.Failures, failures...)
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}
	if len(events) == 0 && len(failures) == len(bc.Symbols) {
		o.setStage(models.StageFailed, "no symbol returned sentiment")
		return nil, errs.Upstream("sentiment", errs.ErrUpstreamUnavailable)
	}

	o.setStage(models.StageAnalyzingPrices, "analyzing price movements")
	moves, failures := o.analyzePrices(ctx, events)
	res.Failures = append(res.Failures, failures...)
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}

	o.setStage(models.StageCorrelating, "correlating factors")
	sent, paired := stats.Pairs(events, moves)
	if len(sent) < bc.MinSampleSize {
		log.Warn("sample below minimum, correlations reported neutral",
			applogger.String("run_id", runID),
			applogger.Int("pairs", len(sent)),
			applogger.Int("min_sample_size", bc.MinSampleSize),
		)
		m := o.engine.Matrix(nil, nil)
		m.SampleSize = len(sent)
		res.CorrelationMatrix = restrict(m, bc.Timeframes)
	} else {
		res.CorrelationMatrix = restrict(o.engine.Matrix(sent, paired), bc.Timeframes)
	}
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}

	o.setStage(models.StageDecomposing, "decomposing by factor")
	res.Decomposition = o.engine.DecomposeByFactor(res.CorrelationMatrix, bc.SignalHorizon)
	res.BestPredictors = o.engine.BestPredictors(o.cfg.BestPredictors)
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}

	o.setStage(models.StageEvaluatingSignals, "evaluating trading signals")
	res.TradingSignals = EvaluateSignals(o.cfg, sent, paired, bc.SignalHorizon)
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}

	o.setStage(models.StageTesting, "running statistical tests")
	forward := make([]float64, 0, len(res.TradingSignals.Outcomes))
	for _, out := range res.TradingSignals.Outcomes {
		forward = append(forward, out.ForwardReturn)
	}
	res.StatisticalTests = o.suite.Run(forward)
	if err := o.checkpoint(ctx); err != nil {
		return nil, err
	}

	o.setStage(models.StageSummarizing, "summarizing")
	res.Summary = summarize(bc, events, sent, res.CorrelationMatrix)
	res.Recommendations = Recommend(o.cfg, res)
	res.CompletedAt = time.Now().UTC()
	o.setStage(models.StageDone, "done")

	log.Info("backtest finished",
		applogger.String("run_id", runID),
		applogger.Int("events", len(events)),
		applogger.Int("pairs", len(sent)),
		applogger.Int("failures", len(res.Failures)),
		applogger.Duration("duration", res.CompletedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (o *Orchestrator) collectSentiment(ctx context.Context, bc models.BacktestConfig) ([]models.HistoricalSentimentData, []errs.SymbolFailure) {
	type item struct {
		data []models.HistoricalSentimentData
		err  error
	}
	results := make([]item, len(bc.Symbols))
	o.fanOut(ctx, len(bc.Symbols), func(i int) {
		d, err := o.sentiment.HistoricalSentiment(ctx, bc.Symbols[i], bc.StartDate, bc.EndDate)
		results[i] = item{d, err}
	}, func(i int, err error) { results[i].err = err })

	var events []models.HistoricalSentimentData
	var failures []errs.SymbolFailure
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, errs.NewSymbolFailure(bc.Symbols[i], r.err))
			o.l.Warn("sentiment collection failed", applogger.String("symbol", bc.Symbols[i]), applogger.Error(r.err))
			continue
		}
		events = append(events, r.data...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].EarningsDate.Before(events[j].EarningsDate) })
	return events, failures
}

func (o *Orchestrator) analyzePrices(ctx context.Context, events []models.HistoricalSentimentData) ([]models.PriceMovement, []errs.SymbolFailure) {
	type item struct {
		pm  models.PriceMovement
		err error
	}
	results := make([]item, len(events))
	o.fanOut(ctx, len(events), func(i int) {
		pm, err := o.movement.Analyze(ctx, events[i].Symbol, events[i].EarningsDate)
		results[i] = item{pm, err}
	}, func(i int, err error) { results[i].err = err })

	moves := make([]models.PriceMovement, 0, len(events))
	var failures []errs.SymbolFailure
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, errs.NewSymbolFailure(events[i].Symbol, r.err))
			continue
		}
		moves = append(moves, r.pm)
	}
	return moves, failures
}

// fanOut runs work(i) for i in [0,n) on at most Workers goroutines. Items
// not started before ctx ends get onSkip.
func (o *Orchestrator) fanOut(ctx context.Context, n int, work func(int), onSkip func(int, error)) {
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < n; j++ {
				onSkip(j, errs.Cancelled(ctx.Err()))
			}
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			work(i)
		}(i)
	}
	wg.Wait()
}

// restrict keeps only the requested timeframe columns.
func restrict(m models.CorrelationMatrix, tfs []models.Horizon) models.CorrelationMatrix {
	if len(tfs) == len(m.Timeframes) {
		return m
	}
	keep := make([]int, 0, len(tfs))
	out := models.CorrelationMatrix{Factors: m.Factors, SampleSize: m.SampleSize}
	for j, tf := range m.Timeframes {
		for _, want := range tfs {
			if tf == want {
				keep = append(keep, j)
				out.Timeframes = append(out.Timeframes, tf)
				break
			}
		}
	}
	for i := range m.Factors {
		rc := make([]float64, len(keep))
		rp := make([]float64, len(keep))
		for k, j := range keep {
			rc[k] = m.Correlations[i][j]
			rp[k] = m.PValues[i][j]
		}
		out.Correlations = append(out.Correlations, rc)
		out.PValues = append(out.PValues, rp)
	}
	return out
}

func summarize(bc models.BacktestConfig, events, paired []models.HistoricalSentimentData, m models.CorrelationMatrix) models.BacktestSummary {
	s := models.BacktestSummary{
		TotalEvents: len(events),
		SampleSize:  len(paired),
		StartDate:   bc.StartDate,
		EndDate:     bc.EndDate,
	}
	symbols := map[string]struct{}{}
	for _, p := range paired {
		symbols[p.Symbol] = struct{}{}
	}
	s.SymbolsAnalyzed = len(symbols)

	var sumAbs float64
	cells := 0
	for i, f := range m.Factors {
		for j, tf := range m.Timeframes {
			r, p := m.Correlations[i][j], m.PValues[i][j]
			sumAbs += math.Abs(r)
			cells++
			if p < 0.05 {
				s.SignificantCorrelations++
			}
			if math.Abs(r) > math.Abs(s.StrongestCorrelation) {
				s.StrongestCorrelation, s.StrongestFactor, s.StrongestTimeframe = r, f, tf
			}
		}
	}
	if cells > 0 {
		s.AverageAbsCorrelation = sumAbs / float64(cells)
	}
	return s
}
