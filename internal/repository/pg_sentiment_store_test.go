package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
)

func newMockStore(t *testing.T) (*PGSentimentStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGSentimentStore(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestPGSentimentStoreListEvents(t *testing.T) {
	store, mock := newMockStore(t)

	d1 := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC)
	score, _ := json.Marshal(models.SentimentScore{Overall: 0.8, Source: "keyword"})
	rows := sqlmock.NewRows([]string{"id", "symbol", "earnings_date", "quarter", "transcript", "sentiment"}).
		AddRow(int64(1), "ACME", d1, "Q4 2023", "text one", score).
		AddRow(int64(2), "ACME", d2, "Q1 2024", "text two", nil)
	mock.ExpectQuery(`SELECT id, symbol, earnings_date, quarter, transcript, sentiment\s+FROM earnings_events`).
		WithArgs("ACME", d1, d2).
		WillReturnRows(rows)

	events, err := store.ListEvents(context.Background(), "ACME", d1, d2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Sentiment)
	assert.Equal(t, 0.8, events[0].Sentiment.Overall)
	assert.Nil(t, events[1].Sentiment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSentimentStoreUpsertEvent(t *testing.T) {
	store, mock := newMockStore(t)
	d := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO earnings_events`).
		WithArgs("ACME", d, "Q4 2023", "hello", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	e := &models.EarningsEvent{Symbol: "ACME", EarningsDate: d, Quarter: "Q4 2023", Transcript: "hello"}
	require.NoError(t, store.UpsertEvent(context.Background(), e))
	assert.Equal(t, int64(17), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSentimentStoreSaveSentiment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE earnings_events SET sentiment`).
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SaveSentiment(context.Background(), 3, models.SentimentScore{Overall: 0.4}))

	mock.ExpectExec(`UPDATE earnings_events SET sentiment`).
		WithArgs(int64(99), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.SaveSentiment(context.Background(), 99, models.SentimentScore{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
