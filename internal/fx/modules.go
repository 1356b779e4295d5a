package fx

import (
	"nodewar-tracker/internal/api"
	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/database"
	"nodewar-tracker/internal/logger"
	"nodewar-tracker/internal/repository"
	"nodewar-tracker/internal/resolver"
	"nodewar-tracker/internal/server"
	"nodewar-tracker/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewWarLogRepository),
	fx.Provide(repository.NewMonthlyRepository),
	// external lookup
	fx.Provide(api.NewLookupClient),
	fx.Provide(resolver.NewFromConfig),
	fx.Provide(func(client *api.LookupClient) service.RosterSource { return service.NewAPIRoster(client) }),
	// svc
	fx.Provide(service.NewPipeline),
	fx.Provide(service.NewWarService),
	fx.Provide(service.NewMergeEngine),
	// server
	fx.Provide(server.NewTrackerServer),
)
