package repository

import (
	"context"
	"fmt"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/domain/repository"
	pkgkafka "QuantLens/pkg/kafka"
)

// Topics names the Kafka topics the pipeline writes to.
type Topics struct {
	Chains    string
	Surfaces  string
	Backtests string
}

// KafkaPublisher implements SnapshotPublisher and ReportPublisher on one producer.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topics   Topics
	onSent   func(topic string)
}

var (
	_ repository.SnapshotPublisher = (*KafkaPublisher)(nil)
	_ repository.ReportPublisher   = (*KafkaPublisher)(nil)
)

// NewKafkaPublisher creates a Kafka publisher. onSent may be nil.
func NewKafkaPublisher(producer *pkgkafka.Producer, topics Topics, onSent func(topic string)) *KafkaPublisher {
	if onSent == nil {
		onSent = func(string) {}
	}
	return &KafkaPublisher{producer: producer, topics: topics, onSent: onSent}
}

// Publish sends a chain snapshot keyed by underlying so one partition keeps its order.
func (p *KafkaPublisher) Publish(ctx context.Context, s *models.ChainSnapshot) error {
	if s == nil || s.Underlying == "" {
		return fmt.Errorf("publish chain: empty snapshot")
	}
	return p.send(ctx, p.topics.Chains, s.Underlying, s)
}

func (p *KafkaPublisher) PublishSurfaceAnalysis(ctx context.Context, a *models.SurfaceAnalysis) error {
	if a == nil {
		return nil
	}
	return p.send(ctx, p.topics.Surfaces, a.Underlying, a)
}

func (p *KafkaPublisher) PublishBacktest(ctx context.Context, r *models.BacktestResult) error {
	if r == nil {
		return nil
	}
	return p.send(ctx, p.topics.Backtests, r.RunID, r)
}

func (p *KafkaPublisher) send(ctx context.Context, topic, key string, v interface{}) error {
	if topic == "" {
		return nil
	}
	if err := p.producer.Publish(ctx, topic, []byte(key), v); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.onSent(topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
