package main

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	"QuantLens/internal/repository"
	"QuantLens/internal/services/backtest"
	"QuantLens/internal/services/movement"
	"QuantLens/internal/services/sentiment"
	"QuantLens/internal/services/stats"
	"QuantLens/internal/usecase"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/util"
)

// fixture is the offline input of a backtest: earnings events, with a
// transcript or a precomputed score, and the daily bars around them.
type fixture struct {
	Events []models.EarningsEvent `json:"events"`
	Bars   []models.Bar           `json:"bars"`
}

func backtestCmd(e *env) *cobra.Command {
	var (
		fixturePath string
		symbols     []string
		start, end  string
		benchmark   string
		horizon     string
		synthetic   bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a sentiment backtest over a JSON fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var fx fixture
			if err := readJSON(fixturePath, &fx); err != nil {
				return err
			}

			bc := models.BacktestConfig{
				Symbols:       util.NormalizeSymbols(symbols),
				Benchmark:     strings.ToUpper(benchmark),
				SignalHorizon: models.Horizon(horizon),
			}
			var ok bool
			if bc.StartDate, ok = util.ParseTime(start); !ok {
				return errs.Invalid("bad --start %q", start)
			}
			if bc.EndDate, ok = util.ParseTime(end); !ok {
				return errs.Invalid("bad --end %q", end)
			}
			if len(bc.Symbols) == 0 {
				bc.Symbols = fixtureSymbols(fx)
			}

			bars := repository.NewMemoryBarStore()
			for _, b := range fx.Bars {
				bars.Add(b.Symbol, b)
			}
			if synthetic {
				seedSynthetic(bars, fx, bc)
			}

			extractor, err := sentiment.NewExtractor(e.cfg.Sentiment, e.l)
			if err != nil {
				return err
			}
			mv := movement.NewAnalyzer(e.cfg.Movement, bars, e.l)
			earnings := usecase.NewEarningsUseCase(repository.NewMemorySentimentStore(), extractor, mv, nil, e.cfg.Earnings.MaxBatch, e.l)
			for i := range fx.Events {
				if err := earnings.Ingest(ctx, &fx.Events[i], false); err != nil {
					return err
				}
			}

			orch := backtest.NewOrchestrator(e.cfg.Backtest, earnings, mv,
				stats.NewEngine(e.cfg.Correlation, e.l), stats.NewSuite(e.cfg.Diagnostics),
				backtest.WithLogger(e.l),
				backtest.WithProgress(func(p models.BacktestProgress) {
					e.l.Info("backtest progress",
						applogger.String("stage", string(p.Stage)),
						applogger.Float64("percent", p.Percent),
					)
				}),
			)
			res, err := orch.Run(ctx, uuid.NewString(), bc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fixturePath, "fixture", "-", "fixture JSON file, - for stdin")
	f.StringSliceVar(&symbols, "symbols", nil, "symbols to test (defaults to every symbol in the fixture)")
	f.StringVar(&start, "start", "", "start date, YYYY-MM-DD")
	f.StringVar(&end, "end", "", "end date, YYYY-MM-DD")
	f.StringVar(&benchmark, "benchmark", "", "benchmark symbol for abnormal returns")
	f.StringVar(&horizon, "horizon", "", "signal horizon, e.g. 5d")
	f.BoolVar(&synthetic, "synthetic", false, "generate bars for symbols the fixture has none for")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func fixtureSymbols(fx fixture) []string {
	syms := make([]string, 0, len(fx.Events))
	for _, ev := range fx.Events {
		syms = append(syms, ev.Symbol)
	}
	return util.NormalizeSymbols(syms)
}

// seedSynthetic covers the backtest window plus a margin for the pre-event
// baseline and the longest post-event horizon.
func seedSynthetic(store *repository.MemoryBarStore, fx fixture, bc models.BacktestConfig) {
	have := make(map[string]bool)
	for _, b := range fx.Bars {
		have[strings.ToUpper(b.Symbol)] = true
	}
	from := bc.StartDate.AddDate(0, 0, -60)
	to := bc.EndDate.AddDate(0, 0, 60)
	syms := append([]string{}, bc.Symbols...)
	if bc.Benchmark != "" {
		syms = append(syms, bc.Benchmark)
	}
	for _, s := range syms {
		if have[s] {
			continue
		}
		store.Add(s, repository.SyntheticBars(s, util.Day(from), util.Day(to))...)
	}
}
