package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "QuantLens/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// PermanentError marks a handler failure that retrying cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer skips retries for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Consumer reads registered topics as one consumer group. Messages of a
// partition always land on the same worker lane, so they are handled and
// committed in offset order.
type Consumer struct {
	cfg  ConsumerConfig
	l    *applogger.Logger
	hook ConsumerHook

	mu       sync.Mutex
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	dlq      *kafka.Writer
	running  bool

	stopFetch context.CancelFunc
	stopWork  context.CancelFunc
	fetchers  sync.WaitGroup
	workers   sync.WaitGroup
}

type delivery struct {
	reader  *kafka.Reader
	handler MessageHandler
	msg     kafka.Message
}

func NewConsumer(cfg ConsumerConfig, l *applogger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	cfg.fillDefaults()
	if l == nil {
		l = applogger.Nop()
	}

	consumerMetricsOnce.Do(registerConsumerMetrics)
	c := &Consumer{
		cfg:      cfg,
		l:        l.With("kafka_consumer"),
		hook:     HookChain(nil),
		handlers: make(map[string]MessageHandler),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// SetHook replaces the consumer hook. Call before Start.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h == nil {
		h = HookChain(nil)
	}
	c.hook = h
}

func (c *Consumer) RegisterHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[h.Topic()] = h
}

// Start opens one reader per registered topic and returns once the fetch
// loops are running.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	fetchCtx, stopFetch := context.WithCancel(context.Background())
	workCtx, stopWork := context.WithCancel(context.Background())
	c.stopFetch, c.stopWork = stopFetch, stopWork

	lanes := make([]chan delivery, c.cfg.Workers)
	depth := c.cfg.BufferSize / c.cfg.Workers
	if depth < 1 {
		depth = 1
	}
	for i := range lanes {
		lanes[i] = make(chan delivery, depth)
		c.workers.Add(1)
		go c.work(workCtx, lanes[i])
	}

	for topic, h := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: c.cfg.startOffset(),
		})
		c.readers = append(c.readers, r)
		c.fetchers.Add(1)
		go c.fetch(fetchCtx, r, h, lanes)
	}

	go func() {
		c.fetchers.Wait()
		for _, lane := range lanes {
			close(lane)
		}
	}()

	c.running = true
	c.l.Info("consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("workers", c.cfg.Workers),
	)
	return nil
}

// Stop halts fetching and lets in-flight messages drain until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.stopFetch()
	drained := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		c.stopWork()
		<-drained
		err = ctx.Err()
	}
	c.stopWork()

	for _, r := range c.readers {
		if cerr := r.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	c.readers = nil
	if c.dlq != nil {
		if cerr := c.dlq.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func (c *Consumer) fetch(ctx context.Context, r *kafka.Reader, h MessageHandler, lanes []chan delivery) {
	defer c.fetchers.Done()
	failures := 0
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.l.Warn("fetch failed", applogger.String("topic", h.Topic()), applogger.Error(err))
			if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0
		select {
		case lanes[laneFor(msg.Topic, msg.Partition, len(lanes))] <- delivery{reader: r, handler: h, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane <-chan delivery) {
	defer c.workers.Done()
	for d := range lane {
		c.process(ctx, d)
	}
}

func (c *Consumer) process(ctx context.Context, d delivery) {
	topic := d.msg.Topic
	ctx = WithTraceID(ctx, traceFromHeaders(d.msg))

	err := c.handle(ctx, d.handler, d.msg)
	switch {
	case err == nil:
		consumerMessages.WithLabelValues(topic, "ok").Inc()
	case ctx.Err() != nil:
		// Shutting down: leave the offset for the next group member.
		return
	default:
		consumerMessages.WithLabelValues(topic, "failed").Inc()
		c.hook.OnError(ctx, d.msg, err)
		if c.dlq != nil {
			if derr := c.deadLetter(ctx, d.msg, err); derr != nil {
				c.l.Error("dead letter write failed",
					applogger.String("topic", topic),
					applogger.Int64("offset", d.msg.Offset),
					applogger.Error(derr),
				)
				return
			}
		}
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := d.reader.CommitMessages(commitCtx, d.msg); cerr != nil {
		c.l.Warn("commit failed",
			applogger.String("topic", topic),
			applogger.Int("partition", d.msg.Partition),
			applogger.Int64("offset", d.msg.Offset),
			applogger.Error(cerr),
		)
	}
}

// handle runs the handler with retries. Permanent errors are not retried.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			consumerRetries.WithLabelValues(msg.Topic).Inc()
			if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
				return ctx.Err()
			}
		}

		hctx := c.hook.BeforeHandle(ctx, msg)
		start := time.Now()
		err = h.Handle(hctx, msg.Value)
		elapsed := time.Since(start)
		consumerLatency.WithLabelValues(msg.Topic).Observe(elapsed.Seconds())
		c.hook.AfterHandle(hctx, msg, elapsed, err)

		if err == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq_source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
	if err == nil {
		consumerDLQ.WithLabelValues(msg.Topic).Inc()
	}
	return err
}

func laneFor(topic string, partition, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(n))
}

// backoff doubles from min per attempt, caps at max and adds up to 20% jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitter := int64(d) / 5; jitter > 0 {
		d += time.Duration(rand.Int63n(jitter))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var (
	consumerMetricsOnce sync.Once
	consumerMessages    *prometheus.CounterVec
	consumerRetries     *prometheus.CounterVec
	consumerDLQ         *prometheus.CounterVec
	consumerLatency     *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_consumer",
		Name:      "messages_total",
		Help:      "Consumed messages by topic and final result",
	}, []string{"topic", "result"})
	consumerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_consumer",
		Name:      "retries_total",
		Help:      "Handler retries",
	}, []string{"topic"})
	consumerDLQ = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_consumer",
		Name:      "dead_letters_total",
		Help:      "Messages routed to the dead letter topic",
	}, []string{"topic"})
	consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantlens",
		Subsystem: "kafka_consumer",
		Name:      "handle_seconds",
		Help:      "Handler latency per attempt",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})
}
