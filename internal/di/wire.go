//go:build wireinject
// +build wireinject

package di

import (
	"FinPrep/pkg/config"
	"FinPrep/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideYahooClient,

		// Repositories and domain services
		ProvideCalendar,
		ProvideIndicatorEngine,
		ProvideCHBarSource,
		ProvideBarProvider,
		ProvideArraysPublisher,

		// Use cases and transports
		ProvidePipelineConfig,
		ProvidePipelineUseCase,
		ProvidePipelineHandler,
		ProvideKafkaConsumer,
		ProvideJobsHandler,
		ProvideJobQueue,
		ProvideJobsEchoHandler,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
