package repository

import (
	"context"
	"time"

	"QuantLens/internal/domain/models"
)

// BarStore provides read-only access to daily OHLCV bars, oldest first.
type BarStore interface {
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// BarStoreFunc adapts a function to BarStore.
type BarStoreFunc func(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)

func (f BarStoreFunc) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	return f(ctx, symbol, from, to)
}
