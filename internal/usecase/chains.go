package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"QuantLens/internal/domain/models"
	drepo "QuantLens/internal/domain/repository"
	mid "QuantLens/internal/middleware"
	pkgkafka "QuantLens/pkg/kafka"
	applogger "QuantLens/pkg/logger"
)

// SnapshotSaver keeps the latest chain per underlying.
type SnapshotSaver interface {
	Save(s models.ChainSnapshot) bool
}

// Chain processing backends.
const (
	BackendKafka  = "kafka"
	BackendDirect = "direct"
)

// SnapshotProcessor routes chain snapshots to the configured backend:
// Kafka for the distributed pipeline, or straight into storage and analysis.
type SnapshotProcessor struct {
	pub     drepo.SnapshotPublisher
	store   SnapshotSaver
	options *OptionsUseCase
	metrics drepo.Metrics
	backend string
}

func NewSnapshotProcessor(pub drepo.SnapshotPublisher, store SnapshotSaver, options *OptionsUseCase, metrics drepo.Metrics, backend string) *SnapshotProcessor {
	return &SnapshotProcessor{pub: pub, store: store, options: options, metrics: orNop(metrics), backend: backend}
}

func (p *SnapshotProcessor) Process(ctx context.Context, s *models.ChainSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		if p.pub == nil {
			err = fmt.Errorf("kafka backend without publisher")
			break
		}
		err = p.pub.Publish(ctx, s)
	case BackendDirect:
		err = storeAndAnalyze(ctx, p.store, p.options, *s)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process snapshot: %w", err)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Close closes the publisher if one is configured.
func (p *SnapshotProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}

func storeAndAnalyze(ctx context.Context, store SnapshotSaver, options *OptionsUseCase, s models.ChainSnapshot) error {
	if store != nil && !store.Save(s) {
		return nil
	}
	if options == nil {
		return nil
	}
	_, err := options.AnalyzeSurface(ctx, s)
	return err
}

// ChainCollector reads the live chain feed into the pipeline.
type ChainCollector struct {
	stream  drepo.ChainStream
	pipe    *mid.SnapshotPipeline
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewChainCollector(stream drepo.ChainStream, pipe *mid.SnapshotPipeline, metrics drepo.Metrics, l *applogger.Logger) *ChainCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &ChainCollector{stream: stream, pipe: pipe, metrics: orNop(metrics), l: l.With("chain_collector")}
}

// IsConnected returns true if the chain stream is connected.
func (c *ChainCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *ChainCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	go c.consume(ctx)
	return nil
}

func (c *ChainCollector) consume(ctx context.Context) {
	for {
		snaps, errCh := c.stream.Read(ctx)
		c.drain(ctx, snaps, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		for ctx.Err() == nil {
			err := c.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			c.l.Warn("chain feed reconnect failed", applogger.Error(err))
		}
	}
}

// drain returns when the stream ends or reports an error.
func (c *ChainCollector) drain(ctx context.Context, snaps <-chan *models.ChainSnapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.l.Warn("chain feed error", applogger.Error(err))
			}
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			if err := c.pipe.Process(ctx, s); err != nil {
				c.l.Debug("snapshot not processed", applogger.String("underlying", s.Underlying), applogger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *ChainCollector) Shutdown(_ context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}

// ChainSnapshotHandler consumes chain snapshots from Kafka, keeps the latest
// per underlying and runs the surface analysis.
type ChainSnapshotHandler struct {
	topic   string
	store   SnapshotSaver
	options *OptionsUseCase
	metrics drepo.Metrics
}

var _ pkgkafka.MessageHandler = (*ChainSnapshotHandler)(nil)

func NewChainSnapshotHandler(topic string, store SnapshotSaver, options *OptionsUseCase, metrics drepo.Metrics) *ChainSnapshotHandler {
	return &ChainSnapshotHandler{topic: topic, store: store, options: options, metrics: orNop(metrics)}
}

func (h *ChainSnapshotHandler) Topic() string { return h.topic }

func (h *ChainSnapshotHandler) Handle(ctx context.Context, b []byte) error {
	var s models.ChainSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode chain snapshot: %w", err))
	}
	if err := mid.ValidateSnapshot(&s); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(err)
	}
	if !s.AsOf.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(s.AsOf).Seconds())
	}
	if err := storeAndAnalyze(ctx, h.store, h.options, s); err != nil {
		return pkgkafka.Permanent(err)
	}
	return nil
}
