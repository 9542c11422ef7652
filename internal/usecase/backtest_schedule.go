package usecase

import (
	"context"
	"errors"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/scheduler"
	"QuantLens/pkg/util"
)

// BacktestSchedule is a recurring backtest over a trailing window.
type BacktestSchedule struct {
	Name         string
	Spec         string
	Symbols      []string
	LookbackDays int
	Benchmark    string
}

// ScheduleBacktests registers one scheduler task per schedule. A tick that
// finds another run active is skipped.
func ScheduleBacktests(s *scheduler.Scheduler, runner *BacktestRunner, schedules []BacktestSchedule, l *applogger.Logger) error {
	for _, sc := range schedules {
		if err := s.Add(sc.Name, sc.Spec, backtestTask(runner, sc, time.Now, l)); err != nil {
			return err
		}
	}
	return nil
}

func backtestTask(runner *BacktestRunner, sc BacktestSchedule, now func() time.Time, l *applogger.Logger) scheduler.Task {
	if l == nil {
		l = applogger.Nop()
	}
	return func(ctx context.Context) error {
		end := util.Day(now())
		lookback := sc.LookbackDays
		if lookback <= 0 {
			lookback = 365
		}
		runID, err := runner.Start(ctx, models.BacktestConfig{
			Symbols:   util.NormalizeSymbols(sc.Symbols),
			StartDate: end.AddDate(0, 0, -lookback),
			EndDate:   end,
			Benchmark: sc.Benchmark,
		})
		if errors.Is(err, errs.ErrBusy) {
			l.Warn("scheduled backtest skipped, another run is active", applogger.String("schedule", sc.Name))
			return nil
		}
		if err != nil {
			return err
		}
		l.Info("scheduled backtest started",
			applogger.String("schedule", sc.Name),
			applogger.String("run_id", runID),
		)
		return nil
	}
}
