package usecase

import (
	"context"
	"strings"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	domsvc "QuantLens/internal/domain/service"
	"QuantLens/internal/services/movement"
	applogger "QuantLens/pkg/logger"
)

// EarningsUseCase stores earnings events, scores them lazily and measures
// the price reaction around them. It is the SentimentSource of backtests.
type EarningsUseCase struct {
	store     domrepo.SentimentStore
	extractor domsvc.SentimentExtractor
	movement  *movement.Analyzer
	metrics   domrepo.Metrics
	maxBatch  int
	l         *applogger.Logger
}

var _ domsvc.SentimentSource = (*EarningsUseCase)(nil)

func NewEarningsUseCase(
	store domrepo.SentimentStore,
	extractor domsvc.SentimentExtractor,
	mv *movement.Analyzer,
	metrics domrepo.Metrics,
	maxBatch int,
	l *applogger.Logger,
) *EarningsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	if maxBatch <= 0 {
		maxBatch = 200
	}
	return &EarningsUseCase{
		store:     store,
		extractor: extractor,
		movement:  mv,
		metrics:   orNop(metrics),
		maxBatch:  maxBatch,
		l:         l.With("earnings"),
	}
}

// Score runs the configured extractor on a transcript without storing it.
func (uc *EarningsUseCase) Score(ctx context.Context, t models.Transcript) (models.SentimentScore, error) {
	start := time.Now()
	s, err := uc.extractor.Extract(ctx, t)
	if err != nil {
		uc.metrics.RecordError("sentiment_" + errs.Kind(err))
		return s, err
	}
	uc.metrics.RecordLatency("sentiment_"+uc.extractor.Name(), time.Since(start).Seconds())
	return s, nil
}

// Ingest upserts an event. When score is true and the event has a
// transcript but no sentiment, it is scored and saved right away.
func (uc *EarningsUseCase) Ingest(ctx context.Context, e *models.EarningsEvent, score bool) error {
	if e == nil || strings.TrimSpace(e.Symbol) == "" || e.EarningsDate.IsZero() {
		return errs.Invalid("symbol and earningsDate are required")
	}
	e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
	if err := uc.store.UpsertEvent(ctx, e); err != nil {
		return err
	}
	if !score || e.Sentiment != nil || e.Transcript == "" {
		return nil
	}
	_, err := uc.scoreEvent(ctx, e)
	return err
}

func (uc *EarningsUseCase) scoreEvent(ctx context.Context, e *models.EarningsEvent) (models.SentimentScore, error) {
	s, err := uc.Score(ctx, models.Transcript{
		Symbol:       e.Symbol,
		EarningsDate: e.EarningsDate,
		Quarter:      e.Quarter,
		Text:         e.Transcript,
	})
	if err != nil {
		return s, err
	}
	if err := uc.store.SaveSentiment(ctx, e.ID, s); err != nil {
		return s, err
	}
	e.Sentiment = &s
	return s, nil
}

// HistoricalSentiment lists the scored events for symbol in [from, to].
// Unscored events with a transcript are scored and saved; events that can
// not be scored are skipped and logged.
func (uc *EarningsUseCase) HistoricalSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSentimentData, error) {
	events, err := uc.store.ListEvents(ctx, strings.ToUpper(symbol), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]models.HistoricalSentimentData, 0, len(events))
	for i := range events {
		e := &events[i]
		if e.Sentiment == nil {
			if e.Transcript == "" {
				continue
			}
			if _, err := uc.scoreEvent(ctx, e); err != nil {
				if ctx.Err() != nil {
					return nil, errs.Cancelled(ctx.Err())
				}
				uc.l.Warn("skipping unscored event",
					applogger.String("symbol", e.Symbol),
					applogger.String("earnings_date", e.EarningsDate.Format("2006-01-02")),
					applogger.Error(err),
				)
				continue
			}
		}
		out = append(out, models.HistoricalSentimentData{
			Symbol:       e.Symbol,
			EarningsDate: e.EarningsDate,
			Sentiment:    *e.Sentiment,
		})
	}
	return out, nil
}

// Movements analyzes a batch of events with partial-failure semantics.
func (uc *EarningsUseCase) Movements(ctx context.Context, events []models.EventRequest) ([]models.PriceMovement, []errs.SymbolFailure, error) {
	if len(events) == 0 {
		return nil, nil, errs.Invalid("at least one event required")
	}
	if len(events) > uc.maxBatch {
		return nil, nil, errs.Invalid("batch of %d events exceeds limit %d", len(events), uc.maxBatch)
	}
	start := time.Now()
	moves, failures := uc.movement.BatchAnalyze(ctx, events)
	uc.metrics.RecordLatency("movement_batch", time.Since(start).Seconds())
	return moves, failures, nil
}
