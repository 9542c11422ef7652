package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON values to Kafka.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}

	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{writer: w, compression: cfg.Compression}, nil
}

// Publish encodes value as JSON, unless it already is bytes, and writes it
// under key. A trace id on ctx travels as a header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   payload,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}
	if id := TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: traceHeader, Value: []byte(id)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Inc()
	producerBytes.WithLabelValues(topic, p.compression).Add(float64(len(payload)))
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return err
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

var (
	producerMetricsOnce sync.Once
	producerMessages    *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_producer",
		Name:      "messages_total",
		Help:      "Messages written to Kafka by topic and result",
	}, []string{"topic", "result"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_producer",
		Name:      "bytes_total",
		Help:      "Payload bytes written to Kafka",
	}, []string{"topic", "compression"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_producer",
		Name:      "write_seconds",
		Help:      "Time to write one message",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})
}
