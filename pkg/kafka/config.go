package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig tunes the writer. Brokers, RequiredAcks and Compression
// are shared cluster settings and are filled in by the caller.
type ProducerConfig struct {
	Brokers      []string `yaml:"-"`
	RequiredAcks int      `yaml:"-"`
	Compression  string   `yaml:"-"`

	MaxAttempts  int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	// Async writes return before the broker acknowledges.
	Async bool `yaml:"async"`
	// HashByKey keeps every message of one underlying on one partition.
	HashByKey bool `yaml:"hash_by_key" default:"true"`
}

// ConsumerConfig tunes the group reader and its worker pool.
type ConsumerConfig struct {
	Brokers []string `yaml:"-"`

	GroupID         string        `yaml:"group_id" default:"quantlens-surface"`
	AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=earliest latest"`
	Workers         int           `yaml:"workers" default:"4" validate:"gte=1"`
	BufferSize      int           `yaml:"buffer_size" default:"1000" validate:"gte=1"`
	RetryMax        int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax      time.Duration `yaml:"backoff_max" default:"5s"`
	// DLQTopic receives messages that still fail after RetryMax. When empty
	// the failure is only reported to the hook and the offset moves on.
	DLQTopic string `yaml:"dlq_topic" default:"quantlens.chains.dlq"`
	MinBytes int    `yaml:"min_bytes" default:"1"`
	MaxBytes int    `yaml:"max_bytes" default:"10485760"`
}

func (c *ConsumerConfig) startOffset() int64 {
	if c.AutoOffsetReset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func (c *ConsumerConfig) fillDefaults() {
	if c.GroupID == "" {
		c.GroupID = "quantlens"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 10
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 50 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
}

func compressionCodec(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Gzip
	}
}
