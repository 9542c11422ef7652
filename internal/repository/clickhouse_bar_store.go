package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuantLens/internal/domain/models"
	pkgch "QuantLens/pkg/clickhouse"
	applogger "QuantLens/pkg/logger"
)

const defaultBarTable = "quantlens.daily_bars"

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	return NewCHBarStoreDB(ch.DB(), defaultBarTable, l)
}

// NewCHBarStoreDB builds the store on an existing handle.
func NewCHBarStoreDB(db *sql.DB, table string, l *applogger.Logger) *CHBarStore {
	if table == "" {
		table = defaultBarTable
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{db: db, table: table, l: l}
}

func (s *CHBarStore) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT day, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND day >= ? AND day <= ?
        ORDER BY day ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse daily_bars query error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get daily bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 256)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse daily_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// InsertBars writes bars in multi-row batches. Re-inserted days are
// collapsed by the ReplacingMergeTree engine.
func (s *CHBarStore) InsertBars(ctx context.Context, bars []models.Bar) error {
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := min(start+chunkSize, len(bars))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Date.IsZero() || b.Synthetic {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Date.UTC(), b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (day, symbol, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}
