package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	domrepo "QuantLens/internal/domain/repository"
	domsvc "QuantLens/internal/domain/service"
	"QuantLens/internal/handler/api"
	mid "QuantLens/internal/middleware"
	"QuantLens/internal/repository"
	svccache "QuantLens/internal/service/cache"
	"QuantLens/internal/service/chainfeed"
	svcmetrics "QuantLens/internal/service/metrics"
	"QuantLens/internal/service/ratelimit"
	"QuantLens/internal/services/movement"
	"QuantLens/internal/services/pinning"
	"QuantLens/internal/services/sentiment"
	"QuantLens/internal/services/surface"
	"QuantLens/internal/usecase"
	pkgcache "QuantLens/pkg/cache"
	pkgch "QuantLens/pkg/clickhouse"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	pkgkafka "QuantLens/pkg/kafka"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/metrics"
	"QuantLens/pkg/postgres"
	"QuantLens/pkg/queue"
	"QuantLens/pkg/scheduler"
	"QuantLens/pkg/server"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	svcmetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideDomainMetrics(r *metrics.Recorder) domrepo.Metrics {
	return r
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, pkgch.Schema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close", applogger.Error(err))
		}
	}, nil
}

// ProvidePostgresClient opens the earnings database. It returns nil when
// Postgres is disabled.
func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*postgres.Client, func(), error) {
	if !cfg.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxOpenConns/2+1, 30*time.Minute, 5*time.Minute),
	)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, postgres.Schema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	l.Info("postgres ready")

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close", applogger.Error(err))
		}
	}, nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
// The connection is closed by the cache layered on top of it.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(context.Background(), cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-memory L1 over Redis, or falls back to memory only.
func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	if rc == nil {
		mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Redis.MemorySize))
		return mc, func() { _ = mc.Close() }
	}
	lc := pkgcache.NewLayeredCache(rc, cfg.Redis.MemorySize, cfg.Redis.MemoryTTL)
	return lc, func() { _ = lc.Close() }
}

func ProvideBarCache(cfg *config.Config, store pkgcache.Service) *svccache.BarCache {
	return svccache.NewBarCache(store, cfg.Bars.CacheTTL)
}

// ProvideBarStore reads bars from ClickHouse when it is configured.
func ProvideBarStore(ch *pkgch.Client, l *applogger.Logger) domrepo.BarStore {
	if ch == nil {
		return repository.NewMemoryBarStore()
	}
	return repository.NewCHBarStore(ch, l)
}

func ProvideBarProvider(
	cfg *config.Config,
	upstream domrepo.BarStore,
	cache *svccache.BarCache,
	m domrepo.Metrics,
	l *applogger.Logger,
) *repository.CachedBarProvider {
	return repository.NewCachedBarProvider(upstream, cache, cfg.Bars, m, l)
}

// ProvideSentimentStore keeps earnings events in Postgres when it is configured.
func ProvideSentimentStore(cfg *config.Config, pg *postgres.Client) domrepo.SentimentStore {
	if pg == nil {
		return repository.NewMemorySentimentStore()
	}
	return repository.NewPGSentimentStore(pg.DB(), cfg.Postgres.QueryTimeout)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	pcfg := cfg.Kafka.Producer
	pcfg.Brokers = cfg.Kafka.Brokers
	pcfg.RequiredAcks = cfg.Kafka.RequiredAcks
	pcfg.Compression = cfg.Kafka.Compression
	producer, err := pkgkafka.NewProducer(pcfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaPublisher wraps the producer. Closing the publisher closes the producer.
func ProvideKafkaPublisher(cfg *config.Config, producer *pkgkafka.Producer, rec *metrics.Recorder, l *applogger.Logger) (*repository.KafkaPublisher, func()) {
	if producer == nil {
		return nil, func() {}
	}
	pub := repository.NewKafkaPublisher(producer, repository.Topics{
		Chains:    cfg.Kafka.Topics.Chains,
		Surfaces:  cfg.Kafka.Topics.Surfaces,
		Backtests: cfg.Kafka.Topics.Backtests,
	}, rec.RecordMessageSent)
	return pub, func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close", applogger.Error(err))
		}
	}
}

// ProvideReportPublisher returns a nil interface when Kafka is disabled so
// callers can skip publishing.
func ProvideReportPublisher(pub *repository.KafkaPublisher) domrepo.ReportPublisher {
	if pub == nil {
		return nil
	}
	return pub
}

func ProvideSnapshotPublisher(pub *repository.KafkaPublisher) domrepo.SnapshotPublisher {
	if pub == nil {
		return nil
	}
	return pub
}

func ProvideSnapshotStore() *repository.SnapshotStore {
	return repository.NewSnapshotStore()
}

func ProvideSurfaceAnalyzer(cfg *config.Config, l *applogger.Logger) *surface.Analyzer {
	return surface.NewAnalyzer(cfg.Surface, l)
}

func ProvidePinningPredictor(cfg *config.Config) *pinning.Predictor {
	return pinning.NewPredictor(cfg.Pinning)
}

func ProvideMovementAnalyzer(cfg *config.Config, bars *repository.CachedBarProvider, l *applogger.Logger) *movement.Analyzer {
	return movement.NewAnalyzer(cfg.Movement, bars, l)
}

func ProvideSentimentExtractor(cfg *config.Config, l *applogger.Logger) (domsvc.SentimentExtractor, error) {
	e, err := sentiment.NewExtractor(cfg.Sentiment, l)
	if err != nil {
		return nil, fmt.Errorf("sentiment extractor: %w", err)
	}
	l.Info("sentiment extractor ready", applogger.String("strategy", e.Name()))
	return e, nil
}

func ProvideOptionsUseCase(
	cfg *config.Config,
	analyzer *surface.Analyzer,
	predictor *pinning.Predictor,
	snaps *repository.SnapshotStore,
	reports domrepo.ReportPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.OptionsUseCase {
	return usecase.NewOptionsUseCase(analyzer, predictor, snaps, reports, m, cfg.Options.Workers, l)
}

func ProvideEarningsUseCase(
	cfg *config.Config,
	store domrepo.SentimentStore,
	extractor domsvc.SentimentExtractor,
	mv *movement.Analyzer,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.EarningsUseCase {
	return usecase.NewEarningsUseCase(store, extractor, mv, m, cfg.Earnings.MaxBatch, l)
}

// ProvideJobQueue builds the backtest queue on Redis or in memory.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) (queue.Queue, error) {
	qcfg := &queue.Config{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		ClaimIdle:  cfg.Queue.ClaimIdle,
	}
	switch cfg.Queue.Backend {
	case "redis":
		if rc == nil {
			return nil, errors.New("redis queue requires redis.enabled")
		}
		return queue.NewRedisQueue(l, qcfg, rc.Client(),
			queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
		), nil
	default:
		return queue.NewMemoryQueue(l, qcfg), nil
	}
}

// ProvideBacktestRunner creates the runner and registers its job on q.
func ProvideBacktestRunner(
	cfg *config.Config,
	earnings *usecase.EarningsUseCase,
	mv *movement.Analyzer,
	q queue.Queue,
	reports domrepo.ReportPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.BacktestRunner {
	opts := []usecase.RunnerOption{
		usecase.WithQueue(q),
		usecase.WithRunnerMetrics(m),
		usecase.WithStatsConfig(cfg.Correlation, cfg.Diagnostics),
	}
	if reports != nil {
		opts = append(opts, usecase.WithReports(reports))
	}
	runner := usecase.NewBacktestRunner(cfg.Backtest, earnings, mv, l, opts...)
	q.RegisterJob(usecase.NewBacktestJob(runner, l))
	return runner
}

// ProvideChainStream creates the option chain feed, or nil when it is disabled.
func ProvideChainStream(cfg *config.Config, l *applogger.Logger) domrepo.ChainStream {
	if !cfg.ChainFeed.Enabled {
		return nil
	}
	return chainfeed.New(
		cfg.ChainFeed.APIKey,
		cfg.ChainFeed.WebSocketURL,
		cfg.ChainFeed.Underlyings,
		cfg.ChainFeed.ReconnectDelay,
		cfg.ChainFeed.PingInterval,
		l,
	)
}

func ProvideSnapshotProcessor(
	cfg *config.Config,
	pub domrepo.SnapshotPublisher,
	snaps *repository.SnapshotStore,
	options *usecase.OptionsUseCase,
	m domrepo.Metrics,
) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(pub, snaps, options, m, cfg.ChainFeed.Backend)
}

// ProvideChainCollector builds the pipeline between the feed and the processor.
func ProvideChainCollector(
	cfg *config.Config,
	stream domrepo.ChainStream,
	proc *usecase.SnapshotProcessor,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ChainCollector {
	if stream == nil {
		return nil
	}
	pipe := mid.NewSnapshotPipeline(proc, m,
		mid.WithMaxRPS(cfg.ChainFeed.MaxRPS),
		mid.WithBufferSize(cfg.ChainFeed.BufferSize),
	)
	return usecase.NewChainCollector(stream, pipe, m, l)
}

// ProvideKafkaConsumer creates the chain topic consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	ccfg := cfg.Kafka.Consumer
	ccfg.Brokers = cfg.Kafka.Brokers
	consumer, err := pkgkafka.NewConsumer(ccfg, l)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.NewHookChain(pkgkafka.HookFuncs{
		Err: func(_ context.Context, km kafka.Message, err error) {
			m.RecordError("consumer_" + km.Topic)
			l.Warn("kafka message failed",
				applogger.String("topic", km.Topic),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	}))
	return consumer, nil
}

func ProvideChainSnapshotHandler(
	cfg *config.Config,
	snaps *repository.SnapshotStore,
	options *usecase.OptionsUseCase,
	m domrepo.Metrics,
) *usecase.ChainSnapshotHandler {
	return usecase.NewChainSnapshotHandler(cfg.Kafka.Topics.Chains, snaps, options, m)
}

// ProvideScheduler registers the configured recurring backtests, or returns
// nil when scheduling is disabled.
func ProvideScheduler(cfg *config.Config, runner *usecase.BacktestRunner, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s := scheduler.New(l)
	schedules := make([]usecase.BacktestSchedule, 0, len(cfg.Scheduler.Jobs))
	for _, j := range cfg.Scheduler.Jobs {
		schedules = append(schedules, usecase.BacktestSchedule{
			Name:         j.Name,
			Spec:         j.Spec,
			Symbols:      j.Symbols,
			LookbackDays: j.LookbackDays,
			Benchmark:    j.Benchmark,
		})
	}
	if err := usecase.ScheduleBacktests(s, runner, schedules, l); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return s, nil
}

// ProvideHealthHandler checks every enabled dependency.
func ProvideHealthHandler(
	ch *pkgch.Client,
	pg *postgres.Client,
	rc *pkgcache.RedisCache,
	collector *usecase.ChainCollector,
) *api.HealthHandler {
	checks := map[string]api.Check{}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if pg != nil {
		checks["postgres"] = pg.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	if collector != nil {
		checks["chain_feed"] = func(context.Context) error {
			if !collector.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	return api.NewHealthHandler(checks)
}

// ProvideRouter mounts every API handler.
func ProvideRouter(
	options *usecase.OptionsUseCase,
	earnings *usecase.EarningsUseCase,
	runner *usecase.BacktestRunner,
	health *api.HealthHandler,
	l *applogger.Logger,
) xhttp.Handler {
	return api.NewRouter(
		api.NewOptionsHandler(l, options),
		api.NewEarningsHandler(l, earnings),
		api.NewBacktestHandler(l, runner),
		health,
	)
}

func ProvideHTTPServer(cfg *config.Config, handler xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCompression(cfg.Server.Compression),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	if cfg.Server.RateLimit > 0 {
		burst := int(cfg.Server.RateLimit * 2)
		opts = append(opts, xhttp.WithRateLimit(ratelimit.New(cfg.Server.RateLimit, burst)))
	}
	return xhttp.NewServer(handler, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	collector *usecase.ChainCollector,
	consumer *pkgkafka.Consumer,
	chains *usecase.ChainSnapshotHandler,
	q queue.Queue,
	sched *scheduler.Scheduler,
) *server.App {
	return server.New(cfg, l, httpServer, collector, consumer, chains, q, sched)
}
