//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"QuantPulse/pkg/config"
	"QuantPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideSnapshotCache,

		// Market data
		ProvideTickBuffer,
		ProvideResampleCache,
		ProvideHub,

		// Recording
		ProvideTickRecorder,
		ProvidePersistPipeline,

		// Use cases
		ProvideTickIngestor,
		ProvideStreamManager,
		ProvideAnalyticsEngine,
		ProvidePairProcessor,
		ProvideAlertEngine,
		ProvideRateLimiter,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
