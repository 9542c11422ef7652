//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"QuantLens/pkg/config"
	"QuantLens/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application and
// a cleanup that releases the infrastructure clients.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideDomainMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBarCache,
		ProvideBarStore,
		ProvideBarProvider,
		ProvideSentimentStore,
		ProvideKafkaPublisher,
		ProvideReportPublisher,
		ProvideSnapshotPublisher,
		ProvideSnapshotStore,
		ProvideChainStream,

		// Analytics services
		ProvideSurfaceAnalyzer,
		ProvidePinningPredictor,
		ProvideMovementAnalyzer,
		ProvideSentimentExtractor,

		// Use cases
		ProvideOptionsUseCase,
		ProvideEarningsUseCase,
		ProvideJobQueue,
		ProvideBacktestRunner,
		ProvideSnapshotProcessor,
		ProvideChainCollector,
		ProvideChainSnapshotHandler,
		ProvideScheduler,

		// HTTP
		ProvideHealthHandler,
		ProvideRouter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
