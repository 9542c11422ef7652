package repository

import (
	"context"
	"time"

	"QuantLens/internal/domain/models"
)

// ChainStream delivers option-chain snapshots from a live feed.
type ChainStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.ChainSnapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SnapshotPublisher forwards chain snapshots to the analysis pipeline.
type SnapshotPublisher interface {
	Publish(ctx context.Context, s *models.ChainSnapshot) error
	Close() error
}

// ChainProvider returns the most recent chain for an underlying.
type ChainProvider interface {
	LatestChain(ctx context.Context, underlying string) (models.ChainSnapshot, error)
}

// ReportPublisher emits analysis results to downstream consumers.
type ReportPublisher interface {
	PublishSurfaceAnalysis(ctx context.Context, a *models.SurfaceAnalysis) error
	PublishBacktest(ctx context.Context, r *models.BacktestResult) error
}

// SentimentStore persists earnings events and their sentiment scores.
type SentimentStore interface {
	ListEvents(ctx context.Context, symbol string, from, to time.Time) ([]models.EarningsEvent, error)
	UpsertEvent(ctx context.Context, e *models.EarningsEvent) error
	SaveSentiment(ctx context.Context, eventID int64, s models.SentimentScore) error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSnapshot(underlying string, contracts int)
	RecordAnomalies(underlying string, count int)
	RecordBacktestStage(stage string, seconds float64)
}
