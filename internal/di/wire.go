//go:build wireinject
// +build wireinject

package di

import (
	"FxRollup/internal/usecase"
	"FxRollup/pkg/config"
	"FxRollup/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires every dependency. The returned cleanup closes
// infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvidePrometheus,
		ProvideMetrics,

		ProvideStores,
		ProvideSessionStore,
		ProvideRegistry,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideReportPublisher,

		ProvideEngine,
		ProvideGate,
		ProvideRefresher,
		ProvideRollupsUseCase,
		ProvideQualityUseCase,
		usecase.NewSessionsUseCase,
		ProvideScheduler,
		ProvideExporter,

		ProvideAPIHandler,
		ProvideHTTPServer,
		ProvideBarBatcher,
		ProvideKafkaConsumer,
		ProvideApp,
	)
	return nil, nil, nil
}
