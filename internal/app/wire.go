//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/pipelinecrm/crm-auth-service/internal/config"
	"github.com/pipelinecrm/crm-auth-service/internal/http/handler"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
)

func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(
		config.Load,
		provideLoggerBundle,
		provideLogger,
		provideRuntime,
		provideDatabase,
		provideRedis,
		provideJWTManager,
		provideNotifier,
		provideActionTokenStore,
		repository.NewUserRepository,
		repository.NewSessionRepository,
		provideAuthService,
		provideAdminService,
		provideSessionService,
		provideReadiness,
		handler.NewAuthHandler,
		handler.NewUserHandler,
		handler.NewAdminHandler,
		provideHandler,
		provideServer,
		provideBackground,
		New,
	)
	return nil, nil, nil
}
