package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"QuantLens/pkg/logger"
)

// RedisQueue delivers jobs through a Redis stream consumed by one group.
// Failed jobs wait in a sorted set until their retry time, then re-enter
// the stream; exhausted ones are appended to a dead letter stream.
type RedisQueue struct {
	logger   *logger.Logger
	config   *Config
	client   redis.UniversalClient
	prefix   string
	consumer string
	maxLen   int64

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RedisOption func(*RedisQueue)

// WithKeyPrefix namespaces every key the queue touches.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisQueue) { r.maxLen = n }
}

func NewRedisQueue(lgr *logger.Logger, config *Config, client redis.UniversalClient, opts ...RedisOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	host, _ := os.Hostname()
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		logger:   lgr.With("redis_queue"),
		config:   config,
		client:   client,
		prefix:   "quantlens:queue",
		consumer: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		maxLen:   10000,
		jobs:     make(map[string]Job),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) streamKey() string  { return r.prefix + ":jobs" }
func (r *RedisQueue) delayedKey() string { return r.prefix + ":delayed" }
func (r *RedisQueue) deadKey() string    { return r.prefix + ":dead" }
func (r *RedisQueue) group() string      { return r.prefix + ":workers" }

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start creates the consumer group if needed and launches the workers.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	err := r.client.XGroupCreateMkStream(ctx, r.streamKey(), r.group(), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	r.wg.Add(1)
	go r.promote()

	r.running = true
	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("stream", r.streamKey()),
		logger.String("consumer", r.consumer),
	)
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}

func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: json.RawMessage(body), Timestamp: time.Now()}
	return r.add(ctx, r.streamKey(), msg, nil)
}

func (r *RedisQueue) add(ctx context.Context, stream string, msg Message, cause error) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: encodeFields(msg, cause),
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

func (r *RedisQueue) work(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		streams, err := r.client.XReadGroup(r.ctx, &redis.XReadGroupArgs{
			Group:    r.group(),
			Consumer: r.consumer,
			Streams:  []string{r.streamKey(), ">"},
			Count:    1,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("xreadgroup", logger.Int("worker", id), logger.Error(err))
			r.sleep(time.Second)
			continue
		}
		for _, s := range streams {
			for _, xm := range s.Messages {
				r.deliver(xm)
			}
		}
	}
}

func (r *RedisQueue) deliver(xm redis.XMessage) {
	msg, err := decodeFields(xm.Values)
	if err != nil {
		r.logger.Error("bad queue entry", logger.String("entry", xm.ID), logger.Error(err))
		r.settle(xm.ID, func(p redis.Pipeliner) {
			p.XAdd(r.ctx, &redis.XAddArgs{Stream: r.deadKey(), Values: xm.Values})
		})
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.settle(xm.ID, func(p redis.Pipeliner) {
			p.XAdd(r.ctx, &redis.XAddArgs{Stream: r.deadKey(), Values: encodeFields(msg, errors.New("unknown type"))})
		})
		return
	}

	start := time.Now()
	err = job.Handle(r.ctx, msg.Payload)
	switch {
	case err == nil:
		r.settle(xm.ID, nil)
	case r.ctx.Err() != nil:
		// Left pending; reclaimed by another consumer after ClaimIdle.
		r.logger.Warn("job interrupted", logger.String("id", msg.ID), logger.Duration("elapsed", time.Since(start)))
	case msg.Attempts < r.config.RetryLimit:
		msg.Attempts++
		due := time.Now().Add(r.config.RetryDelay)
		entry, _ := json.Marshal(encodeFields(msg, nil))
		r.logger.Warn("job failed, retry scheduled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Error(err),
		)
		r.settle(xm.ID, func(p redis.Pipeliner) {
			p.ZAdd(r.ctx, r.delayedKey(), redis.Z{Score: float64(due.UnixMilli()), Member: entry})
		})
	default:
		r.logger.Error("job failed, retries exhausted",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Error(err),
		)
		r.settle(xm.ID, func(p redis.Pipeliner) {
			p.XAdd(r.ctx, &redis.XAddArgs{Stream: r.deadKey(), MaxLen: r.maxLen, Approx: true, Values: encodeFields(msg, err)})
		})
	}
}

// settle acknowledges and deletes a stream entry, running extra in the same
// transaction.
func (r *RedisQueue) settle(id string, extra func(redis.Pipeliner)) {
	_, err := r.client.TxPipelined(r.ctx, func(p redis.Pipeliner) error {
		if extra != nil {
			extra(p)
		}
		p.XAck(r.ctx, r.streamKey(), r.group(), id)
		p.XDel(r.ctx, r.streamKey(), id)
		return nil
	})
	if err != nil && r.ctx.Err() == nil {
		r.logger.Error("settle entry", logger.String("entry", id), logger.Error(err))
	}
}

// promote moves due retries back into the stream and reclaims deliveries
// abandoned by dead consumers.
func (r *RedisQueue) promote() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue()
			r.reclaim()
		}
	}
}

func (r *RedisQueue) promoteDue() {
	due, err := r.client.ZRangeByScore(r.ctx, r.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("read delayed jobs", logger.Error(err))
		}
		return
	}
	for _, entry := range due {
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(entry), &fields); err != nil {
			r.client.ZRem(r.ctx, r.delayedKey(), entry)
			continue
		}
		removed, err := r.client.ZRem(r.ctx, r.delayedKey(), entry).Result()
		if err != nil || removed == 0 {
			// Another instance promoted it first.
			continue
		}
		if err := r.client.XAdd(r.ctx, &redis.XAddArgs{Stream: r.streamKey(), Values: fields}).Err(); err != nil {
			r.logger.Error("promote delayed job", logger.Error(err))
		}
	}
}

func (r *RedisQueue) reclaim() {
	if r.config.ClaimIdle <= 0 {
		return
	}
	msgs, _, err := r.client.XAutoClaim(r.ctx, &redis.XAutoClaimArgs{
		Stream:   r.streamKey(),
		Group:    r.group(),
		Consumer: r.consumer,
		MinIdle:  r.config.ClaimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("reclaim pending", logger.Error(err))
		}
		return
	}
	for _, xm := range msgs {
		r.logger.Info("reclaimed job", logger.String("entry", xm.ID))
		r.deliver(xm)
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}

func encodeFields(msg Message, cause error) map[string]interface{} {
	payload, ok := msg.Payload.(json.RawMessage)
	if !ok {
		payload, _ = json.Marshal(msg.Payload)
	}
	fields := map[string]interface{}{
		"id":       msg.ID,
		"type":     msg.Type,
		"attempts": strconv.Itoa(msg.Attempts),
		"ts":       strconv.FormatInt(msg.Timestamp.UnixMilli(), 10),
		"payload":  string(payload),
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	return fields
}

func decodeFields(values map[string]interface{}) (Message, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}
	msg := Message{ID: str("id"), Type: str("type")}
	if msg.Type == "" {
		return msg, errors.New("missing type")
	}
	attempts, err := strconv.Atoi(str("attempts"))
	if err != nil {
		return msg, fmt.Errorf("attempts: %w", err)
	}
	msg.Attempts = attempts
	if ms, err := strconv.ParseInt(str("ts"), 10, 64); err == nil {
		msg.Timestamp = time.UnixMilli(ms)
	}
	msg.Payload = json.RawMessage(str("payload"))
	return msg, nil
}
