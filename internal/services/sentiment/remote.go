package sentiment

import (
	"context"
	"fmt"
	"time"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	xhttp "QuantLens/pkg/http"
	applogger "QuantLens/pkg/logger"
)

// RemoteExtractor delegates scoring to an HTTP scoring service that accepts
// a Transcript and answers with a SentimentScore.
type RemoteExtractor struct {
	path   string
	unit   bool
	client *xhttp.Client
}

func NewRemoteExtractor(cfg RemoteConfig, l *applogger.Logger) (*RemoteExtractor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sentiment.remote.url is required for the remote strategy")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &RemoteExtractor{
		path: cfg.Path,
		unit: cfg.Scale == ScaleUnit,
		client: xhttp.NewClient(
			xhttp.WithBaseURL(cfg.URL),
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(cfg.Attempts, 50*time.Millisecond),
			xhttp.WithClientLogger(l.With("sentiment_remote")),
		),
	}, nil
}

func (e *RemoteExtractor) Name() string { return StrategyRemote }

func (e *RemoteExtractor) Extract(ctx context.Context, t models.Transcript) (models.SentimentScore, error) {
	if t.Text == "" {
		return models.SentimentScore{}, errs.Invalid("empty transcript for %s", t.Symbol)
	}
	var score models.SentimentScore
	if err := e.client.PostJSON(ctx, e.path, t, &score); err != nil {
		if ctx.Err() != nil {
			return models.SentimentScore{}, errs.Cancelled(ctx.Err())
		}
		return models.SentimentScore{}, errs.Upstream("sentiment service", err)
	}
	if !e.unit {
		score.Overall = (score.Overall + 1) / 2
	}
	score = clamp(score)
	if score.Source == "" {
		score.Source = StrategyRemote
	}
	return score, nil
}
