package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
)

// PGSentimentStore keeps earnings events and their scores in PostgreSQL.
type PGSentimentStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPGSentimentStore(db *sqlx.DB, timeout time.Duration) *PGSentimentStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PGSentimentStore{db: db, timeout: timeout}
}

type eventRow struct {
	ID           int64     `db:"id"`
	Symbol       string    `db:"symbol"`
	EarningsDate time.Time `db:"earnings_date"`
	Quarter      string    `db:"quarter"`
	Transcript   string    `db:"transcript"`
	Sentiment    []byte    `db:"sentiment"`
}

func (r eventRow) event() (models.EarningsEvent, error) {
	e := models.EarningsEvent{
		ID:           r.ID,
		Symbol:       r.Symbol,
		EarningsDate: r.EarningsDate.UTC(),
		Quarter:      r.Quarter,
		Transcript:   r.Transcript,
	}
	if len(r.Sentiment) > 0 {
		var s models.SentimentScore
		if err := json.Unmarshal(r.Sentiment, &s); err != nil {
			return e, fmt.Errorf("decode sentiment for event %d: %w", r.ID, err)
		}
		e.Sentiment = &s
	}
	return e, nil
}

func (s *PGSentimentStore) ListEvents(ctx context.Context, symbol string, from, to time.Time) ([]models.EarningsEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, earnings_date, quarter, transcript, sentiment
		FROM earnings_events
		WHERE symbol = $1 AND earnings_date >= $2 AND earnings_date <= $3
		ORDER BY earnings_date ASC`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, symbol, from, to); err != nil {
		return nil, fmt.Errorf("failed to list earnings events: %w", err)
	}

	out := make([]models.EarningsEvent, 0, len(rows))
	for _, r := range rows {
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpsertEvent inserts or updates the event keyed by (symbol, earnings date)
// and stores the assigned id on e. An empty transcript keeps the stored one.
func (s *PGSentimentStore) UpsertEvent(ctx context.Context, e *models.EarningsEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sentiment []byte
	if e.Sentiment != nil {
		b, err := json.Marshal(e.Sentiment)
		if err != nil {
			return fmt.Errorf("failed to marshal sentiment: %w", err)
		}
		sentiment = b
	}

	query := `
		INSERT INTO earnings_events (symbol, earnings_date, quarter, transcript, sentiment, scored_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $5::jsonb IS NULL THEN NULL ELSE now() END)
		ON CONFLICT (symbol, earnings_date) DO UPDATE SET
			quarter = EXCLUDED.quarter,
			transcript = COALESCE(NULLIF(EXCLUDED.transcript, ''), earnings_events.transcript),
			sentiment = COALESCE(EXCLUDED.sentiment, earnings_events.sentiment),
			scored_at = COALESCE(EXCLUDED.scored_at, earnings_events.scored_at)
		RETURNING id`

	err := s.db.QueryRowxContext(ctx, query,
		e.Symbol, e.EarningsDate, e.Quarter, e.Transcript, sentiment).
		Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert earnings event: %w", err)
	}
	return nil
}

func (s *PGSentimentStore) SaveSentiment(ctx context.Context, eventID int64, score models.SentimentScore) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE earnings_events SET sentiment = $2, scored_at = now() WHERE id = $1`, eventID, b)
	if err != nil {
		return fmt.Errorf("failed to save sentiment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFound("earnings event %d", eventID)
	}
	return nil
}
