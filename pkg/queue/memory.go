package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuantLens/pkg/logger"
)

// MemoryQueue runs jobs on in-process workers. It is used when Redis is
// disabled and keeps the retry semantics of RedisQueue without a dead letter store.
type MemoryQueue struct {
	logger *logger.Logger
	config *Config
	jobs   map[string]Job
	msgs   chan Message
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewMemoryQueue(lgr *logger.Logger, config *Config, jobs ...Job) *MemoryQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &MemoryQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job),
		msgs:   make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		q.jobs[j.Type()] = j
	}
	return q
}

// RegisterJob adds a job after construction. It must be called before Start.
func (q *MemoryQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Type()] = job
}

// Start launches the workers.
func (q *MemoryQueue) Start() error {
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return nil
}

func (q *MemoryQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue not running")
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	select {
	case q.msgs <- Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}:
		return nil
	default:
		return fmt.Errorf("queue full")
	}
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgs:
			q.process(msg)
		}
	}
}

func (q *MemoryQueue) process(msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()
	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil || q.ctx.Err() != nil {
			return
		}
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.config.RetryLimit {
			q.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
			return
		}
		msg.Attempts++
		select {
		case <-time.After(q.config.RetryDelay):
		case <-q.ctx.Done():
			return
		}
	}
}

// Stop cancels running jobs and waits for the workers.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
