package service

import (
	"context"
	"time"

	"QuantLens/internal/domain/models"
)

// SentimentExtractor scores an earnings-call transcript.
type SentimentExtractor interface {
	Name() string
	Extract(ctx context.Context, t models.Transcript) (models.SentimentScore, error)
}

// MovementAnalyzer measures the price reaction around one earnings event.
type MovementAnalyzer interface {
	Analyze(ctx context.Context, symbol string, earningsDate time.Time) (models.PriceMovement, error)
}

// SentimentSource yields scored historical events for one symbol.
type SentimentSource interface {
	HistoricalSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalSentimentData, error)
}
