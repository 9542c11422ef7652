package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"QuantLens/internal/repository"
	"QuantLens/internal/services/backtest"
	"QuantLens/internal/services/movement"
	"QuantLens/internal/services/pinning"
	"QuantLens/internal/services/sentiment"
	"QuantLens/internal/services/stats"
	"QuantLens/internal/services/surface"
	pkgcache "QuantLens/pkg/cache"
	pkgch "QuantLens/pkg/clickhouse"
	pkgkafka "QuantLens/pkg/kafka"
	"QuantLens/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		// Requests per second allowed on the API; 0 disables the limiter.
		RateLimit   float64 `yaml:"rate_limit" default:"50"`
		Compression bool    `yaml:"compression" default:"true"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging logger.Config `yaml:"logging"`

	ClickHouse pkgch.Config         `yaml:"clickhouse"`
	Postgres   PostgresConfig       `yaml:"postgres"`
	Redis      pkgcache.RedisConfig `yaml:"redis"`
	Kafka      KafkaConfig          `yaml:"kafka"`
	Queue      QueueConfig          `yaml:"queue"`
	ChainFeed  ChainFeedConfig      `yaml:"chain_feed"`

	Options struct {
		// Workers bounds concurrent surface analyses in a batch.
		Workers int `yaml:"workers" default:"4" validate:"gte=1"`
	} `yaml:"options"`
	Surface     surface.Config               `yaml:"surface"`
	Pinning     pinning.Config               `yaml:"pinning"`
	Movement    movement.Config              `yaml:"movement"`
	Correlation stats.Config                 `yaml:"correlation"`
	Diagnostics stats.SuiteConfig            `yaml:"diagnostics"`
	Backtest    backtest.Config              `yaml:"backtest"`
	Sentiment   sentiment.Config             `yaml:"sentiment"`
	Bars        repository.BarProviderConfig `yaml:"bars"`
	Earnings    struct {
		MaxBatch int `yaml:"max_batch" default:"200" validate:"gte=1"`
	} `yaml:"earnings"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type PostgresConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DSN          string        `yaml:"dsn" validate:"required_if=Enabled true"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"5s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"zstd" validate:"oneof=none gzip snappy lz4 zstd"`
	Topics       struct {
		Chains    string `yaml:"chains" default:"quantlens.chains"`
		Surfaces  string `yaml:"surfaces" default:"quantlens.surfaces"`
		Backtests string `yaml:"backtests" default:"quantlens.backtests"`
	} `yaml:"topics"`
	Producer pkgkafka.ProducerConfig `yaml:"producer"`
	Consumer pkgkafka.ConsumerConfig `yaml:"consumer"`
}

type QueueConfig struct {
	// Backend is "redis" or "memory". Redis requires redis.enabled.
	Backend    string        `yaml:"backend" default:"memory" validate:"oneof=redis memory"`
	Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
	QueueSize  int           `yaml:"queue_size" default:"16"`
	RetryLimit int           `yaml:"retry_limit" default:"2"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	// ClaimIdle hands a Redis job left unacknowledged this long to another worker.
	ClaimIdle time.Duration `yaml:"claim_idle" default:"30m"`
}

type ChainFeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" validate:"required_if=Enabled true"`
	Underlyings    []string      `yaml:"underlyings"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	// Backend is "kafka" (publish then consume) or "direct" (analyze inline).
	Backend    string  `yaml:"backend" default:"direct" validate:"oneof=kafka direct"`
	MaxRPS     float64 `yaml:"max_rps" default:"5" validate:"gt=0"`
	BufferSize int     `yaml:"buffer_size" default:"256" validate:"gte=1"`
}

type SchedulerConfig struct {
	Enabled bool           `yaml:"enabled"`
	Jobs    []ScheduledJob `yaml:"jobs" validate:"dive"`
}

// ScheduledJob runs a backtest over the trailing LookbackDays on a cron spec.
type ScheduledJob struct {
	Name         string   `yaml:"name" validate:"required"`
	Spec         string   `yaml:"spec" validate:"required"`
	Symbols      []string `yaml:"symbols" validate:"required,min=1"`
	LookbackDays int      `yaml:"lookback_days" default:"365" validate:"gt=0"`
	Benchmark    string   `yaml:"benchmark"`
}

// Default returns a Config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := applyDefaults(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Sentiment.Keyword.QASeparators) == 0 {
		c.Sentiment.Keyword.QASeparators = sentiment.DefaultConfig().Keyword.QASeparators
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults for unset fields and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyDefaults(&c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CHAIN_FEED_API_KEY"); v != "" {
		c.ChainFeed.APIKey = v
	}
	if v := getenv("UNDERLYINGS"); v != "" {
		c.ChainFeed.Underlyings = splitList(v)
	}
	if v := getenv("CHAIN_BACKEND"); v != "" {
		c.ChainFeed.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Sentiment.LLM.APIKey = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.ChainFeed.Enabled && len(c.ChainFeed.Underlyings) == 0 {
		return fmt.Errorf("chain_feed.underlyings cannot be empty")
	}
	if c.ChainFeed.Enabled && c.ChainFeed.Backend == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("chain_feed.backend 'kafka' requires kafka.enabled")
	}
	if c.Queue.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("queue.backend 'redis' requires redis.enabled")
	}
	if c.Sentiment.Strategy == sentiment.StrategyLLM && c.Sentiment.LLM.APIKey == "" {
		return fmt.Errorf("sentiment.llm.api_key is required for the llm strategy")
	}
	if c.Backtest.BearishThreshold >= c.Backtest.BullishThreshold {
		return fmt.Errorf("backtest.bearish_threshold must be below bullish_threshold")
	}
	return nil
}
