//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"BrentShift/pkg/config"
	"BrentShift/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideEngineSettings,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCache,
		ProvideQueue,

		// Repositories
		ProvideStores,
		ProvidePublisher,

		// Use cases
		ProvideAnalysisService,
		ProvideAnalysisJob,
		ProvideDashboard,
		ProvidePricesHandler,

		// HTTP
		ProvideRateLimiter,
		ProvideChangePointsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
