package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
)

func TestCHBarStoreGetDailyBars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	rows := sqlmock.NewRows([]string{"day", "symbol", "open", "high", "low", "close", "volume"}).
		AddRow(from, "ACME", 10.0, 11.0, 9.5, 10.5, 1000.0).
		AddRow(to, "ACME", 10.5, 12.0, 10.0, 11.5, 1500.0)
	mock.ExpectQuery(`SELECT day, symbol, open, high, low, close, volume\s+FROM quantlens.daily_bars FINAL`).
		WithArgs("ACME", from, to).
		WillReturnRows(rows)

	s := NewCHBarStoreDB(db, "", nil)
	bars, err := s.GetDailyBars(context.Background(), "ACME", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 11.5, bars[1].Close)
	assert.Equal(t, 1500.0, bars[1].Volume)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT day`).WillReturnError(errors.New("connection reset"))
	s := NewCHBarStoreDB(db, "", nil)
	_, err = s.GetDailyBars(context.Background(), "ACME", time.Now(), time.Now())
	assert.ErrorContains(t, err, "connection reset")
}

func TestCHBarStoreInsertSkipsSynthetic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO quantlens.daily_bars \(day, symbol, open, high, low, close, volume\) VALUES \(\?, \?, \?, \?, \?, \?, \?\)$`).
		WithArgs(d, "ACME", 1.0, 2.0, 0.5, 1.5, 10.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewCHBarStoreDB(db, "", nil)
	err = s.InsertBars(context.Background(), []models.Bar{
		{Date: d, Symbol: "ACME", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Date: d.AddDate(0, 0, 1), Symbol: "ACME", Close: 3, Synthetic: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
