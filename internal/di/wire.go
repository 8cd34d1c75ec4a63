//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"Confluence/pkg/config"
	"Confluence/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideRedisPrimary,
		ProvideCache,

		// Resilience and upstream access
		ProvideThrottle,
		ProvideClientFactory,
		ProvideExecutorRegistry,

		// Domain services
		ProvideSampler,
		ProvideController,
		ProvideResourceManager,
		ProvideScorer,
		ProvideFuser,

		// Use cases
		ProvideSignalFusion,
		ProvidePoller,
		ProvideTickPipeline,
		ProvideTickCollector,
		ProvideKafkaConsumer,

		// Delivery
		ProvideOpsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
