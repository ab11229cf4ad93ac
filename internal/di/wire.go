//go:build wireinject
// +build wireinject

package di

import (
	"UniAD/pkg/config"
	"UniAD/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideEndpointMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideAuditStore,
		ProvideResultCache,
		ProvideEventPublisher,

		// Detection
		ProvideStrategies,
		ProvideDetectionService,
		ProvideKafkaDetectHandler,

		// Transport
		ProvideRateLimiter,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
