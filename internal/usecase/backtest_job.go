package usecase

import (
	"context"
	"errors"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/queue"
)

type BacktestJobPayload struct {
	RunID  string                `json:"runId"`
	Config models.BacktestConfig `json:"config"`
}

// BacktestJob executes queued backtests.
type BacktestJob struct {
	runner *BacktestRunner
	l      *applogger.Logger
}

var _ queue.Job = (*BacktestJob)(nil)

func NewBacktestJob(runner *BacktestRunner, l *applogger.Logger) *BacktestJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &BacktestJob{runner: runner, l: l.With("backtest_job")}
}

func (j *BacktestJob) Name() string { return "backtest" }

func (j *BacktestJob) Type() string { return BacktestJobType }

// Handle runs the payload. A run is admitted once, so failures are recorded
// on the run and acknowledged rather than retried.
func (j *BacktestJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[BacktestJobPayload](payload)
	if err != nil {
		j.l.Error("bad backtest payload", applogger.Error(err))
		return nil
	}
	err = j.runner.Execute(ctx, p.RunID, p.Config)
	if err != nil && !errors.Is(err, errs.ErrCancelled) {
		j.l.Warn("backtest finished with error",
			applogger.String("run_id", p.RunID),
			applogger.String("kind", errs.Kind(err)),
			applogger.Error(err),
		)
	}
	return nil
}
