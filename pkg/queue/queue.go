package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job handles one message type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Queue is a QueueService that also runs registered jobs.
type Queue interface {
	QueueService
	RegisterJob(job Job)
	Start() error
	Stop(ctx context.Context) error
}

var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = (*RedisQueue)(nil)
)

type Config struct {
	Workers    int
	QueueSize  int
	RetryLimit int
	RetryDelay time.Duration
	// ClaimIdle is how long a Redis delivery may stay unacknowledged before
	// another worker takes it over. Zero disables reclaiming.
	ClaimIdle time.Duration
}

// Message is one queued job invocation.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// ParsePayload converts a job payload into T. In-process queues hand over
// the published value, Redis hands over the JSON bytes.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case nil:
		return nil, fmt.Errorf("empty payload")
	}

	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
