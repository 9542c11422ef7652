package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/services/backtest"
	"QuantLens/pkg/scheduler"
)

func TestBacktestTask(t *testing.T) {
	s, m := linearScenario()
	q := &captureQueue{}
	r := NewBacktestRunner(backtest.DefaultConfig(), s, m, nil, WithQueue(q))
	now := func() time.Time { return time.Date(2024, 6, 14, 18, 30, 0, 0, time.UTC) }

	task := backtestTask(r, BacktestSchedule{Name: "nightly", Symbols: []string{"aapl", "AAPL", "msft"}, LookbackDays: 30}, now, nil)
	require.NoError(t, task(context.Background()))

	require.Equal(t, BacktestJobType, q.msgType)
	payload, ok := q.payload.(BacktestJobPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT"}, payload.Config.Symbols)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), payload.Config.EndDate)
	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), payload.Config.StartDate)

	// The first run is still pending, so the next tick is skipped quietly.
	require.NoError(t, task(context.Background()))
	run, err := r.Status(payload.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.StageIdle, run.Progress.Stage)
}

func TestScheduleBacktests(t *testing.T) {
	s, m := linearScenario()
	r := NewBacktestRunner(backtest.DefaultConfig(), s, m, nil, WithQueue(&captureQueue{}))
	sch := scheduler.New(nil)

	require.NoError(t, ScheduleBacktests(sch, r, []BacktestSchedule{
		{Name: "weekly", Spec: "0 6 * * 1", Symbols: []string{"SPY"}},
	}, nil))
	require.Len(t, sch.Entries(), 1)

	require.NoError(t, sch.RunNow("weekly"))
	assert.True(t, r.Busy())

	assert.Error(t, ScheduleBacktests(sch, r, []BacktestSchedule{{Name: "bad", Spec: "whenever", Symbols: []string{"SPY"}}}, nil))
}
