package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	domsvc "QuantLens/internal/domain/service"
	"QuantLens/internal/services/backtest"
	"QuantLens/internal/services/stats"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/queue"
)

// BacktestJobType is the queue message type of an async backtest.
const BacktestJobType = "backtest.run"

// BacktestRun is the pollable state of one run.
type BacktestRun struct {
	Progress models.BacktestProgress `json:"progress"`
	Result   *models.BacktestResult  `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// BacktestRunner admits one backtest at a time and keeps the last runs for
// polling. Further starts while a run is active fail with ErrBusy.
type BacktestRunner struct {
	cfg       backtest.Config
	corr      stats.Config
	suite     stats.SuiteConfig
	sentiment domsvc.SentimentSource
	movement  domsvc.MovementAnalyzer
	reports   domrepo.ReportPublisher
	metrics   domrepo.Metrics
	queue     queue.QueueService
	keep      int
	l         *applogger.Logger

	mu      sync.Mutex
	active  string
	orch    *backtest.Orchestrator
	cancel  context.CancelFunc
	runs    map[string]*BacktestRun
	order   []string
	pending map[string]models.BacktestConfig
}

type RunnerOption func(*BacktestRunner)

// WithQueue makes Start enqueue runs instead of starting a goroutine.
func WithQueue(q queue.QueueService) RunnerOption {
	return func(r *BacktestRunner) { r.queue = q }
}

func WithReports(p domrepo.ReportPublisher) RunnerOption {
	return func(r *BacktestRunner) { r.reports = p }
}

func WithRunnerMetrics(m domrepo.Metrics) RunnerOption {
	return func(r *BacktestRunner) { r.metrics = orNop(m) }
}

func WithStatsConfig(c stats.Config, s stats.SuiteConfig) RunnerOption {
	return func(r *BacktestRunner) {
		r.corr = c
		r.suite = s
	}
}

func NewBacktestRunner(cfg backtest.Config, sentiment domsvc.SentimentSource, mv domsvc.MovementAnalyzer, l *applogger.Logger, opts ...RunnerOption) *BacktestRunner {
	if l == nil {
		l = applogger.Nop()
	}
	r := &BacktestRunner{
		cfg:       cfg,
		corr:      stats.DefaultConfig(),
		suite:     stats.DefaultSuiteConfig(),
		sentiment: sentiment,
		movement:  mv,
		metrics:   nopMetrics{},
		keep:      20,
		l:         l.With("backtest_runner"),
		runs:      make(map[string]*BacktestRun),
		pending:   make(map[string]models.BacktestConfig),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start admits a run and returns its id. The run executes in the
// background, or through the job queue when one is configured.
func (r *BacktestRunner) Start(ctx context.Context, bc models.BacktestConfig) (string, error) {
	if len(bc.Symbols) == 0 || bc.StartDate.IsZero() || bc.EndDate.IsZero() || !bc.StartDate.Before(bc.EndDate) {
		return "", errs.Invalid("backtest needs symbols and startDate before endDate")
	}
	runID := uuid.NewString()

	r.mu.Lock()
	if r.active != "" {
		r.mu.Unlock()
		return "", errs.ErrBusy
	}
	r.active = runID
	r.remember(runID, &BacktestRun{Progress: models.BacktestProgress{
		RunID:     runID,
		Stage:     models.StageIdle,
		UpdatedAt: time.Now().UTC(),
	}})
	r.pending[runID] = bc
	r.mu.Unlock()

	if r.queue != nil {
		if err := r.queue.PublishMessage(ctx, BacktestJobType, BacktestJobPayload{RunID: runID, Config: bc}); err != nil {
			r.finish(runID, nil, errs.Upstream("queue", err))
			return "", errs.Upstream("queue", err)
		}
		return runID, nil
	}
	go func() { _ = r.Execute(context.Background(), runID, bc) }()
	return runID, nil
}

// Execute runs an admitted backtest to completion. Unknown or already
// finished run ids are rejected so redelivered jobs do not run twice.
func (r *BacktestRunner) Execute(ctx context.Context, runID string, bc models.BacktestConfig) error {
	r.mu.Lock()
	if _, ok := r.pending[runID]; !ok || r.active != runID {
		r.mu.Unlock()
		return errs.NotFound("backtest run %s is not pending", runID)
	}
	delete(r.pending, runID)
	ctx, cancel := context.WithCancel(ctx)
	orch := backtest.NewOrchestrator(r.cfg, r.sentiment, r.movement,
		stats.NewEngine(r.corr, r.l), stats.NewSuite(r.suite),
		backtest.WithLogger(r.l),
		backtest.WithMetrics(r.metrics),
		backtest.WithProgress(func(p models.BacktestProgress) { r.setProgress(runID, p) }),
	)
	r.orch = orch
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	res, err := orch.Run(ctx, runID, bc)
	if err == nil && r.reports != nil {
		if perr := r.reports.PublishBacktest(ctx, res); perr != nil {
			r.metrics.RecordError("publish_backtest")
			r.l.Warn("publish backtest failed", applogger.String("run_id", runID), applogger.Error(perr))
		}
	}
	r.finish(runID, res, err)
	return err
}

// Status returns a copy of the run state.
func (r *BacktestRunner) Status(runID string) (BacktestRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return BacktestRun{}, errs.NotFound("backtest run %s", runID)
	}
	return *run, nil
}

// Cancel asks an active run to stop. Cancelling a finished run is a no-op.
func (r *BacktestRunner) Cancel(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return errs.NotFound("backtest run %s", runID)
	}
	if run.Progress.Stage.Terminal() || r.active != runID {
		return nil
	}
	if _, queued := r.pending[runID]; queued {
		delete(r.pending, runID)
		r.active = ""
		run.Progress.Stage = models.StageCancelled
		run.Progress.Message = "cancelled before start"
		run.Progress.UpdatedAt = time.Now().UTC()
		return nil
	}
	if r.orch != nil {
		r.orch.Cancel()
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Busy reports whether a run is admitted or executing.
func (r *BacktestRunner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != ""
}

func (r *BacktestRunner) setProgress(runID string, p models.BacktestProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		p.RunID = runID
		run.Progress = p
	}
}

func (r *BacktestRunner) finish(runID string, res *models.BacktestResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		run.Result = res
		if err != nil {
			run.Error = err.Error()
			if !run.Progress.Stage.Terminal() {
				run.Progress.Stage = models.StageFailed
				if errors.Is(err, errs.ErrCancelled) {
					run.Progress.Stage = models.StageCancelled
				}
				run.Progress.UpdatedAt = time.Now().UTC()
			}
		}
	}
	delete(r.pending, runID)
	if r.active == runID {
		r.active = ""
		r.orch = nil
		r.cancel = nil
	}
	if err != nil && !errors.Is(err, errs.ErrCancelled) {
		r.metrics.RecordError("backtest_" + errs.Kind(err))
	}
}

// remember stores run and evicts the oldest finished runs past keep.
func (r *BacktestRunner) remember(runID string, run *BacktestRun) {
	r.runs[runID] = run
	r.order = append(r.order, runID)
	for len(r.order) > r.keep {
		oldest := r.order[0]
		if oldest == r.active {
			break
		}
		delete(r.runs, oldest)
		r.order = r.order[1:]
	}
}
