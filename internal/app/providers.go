package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/pipelinecrm/crm-auth-service/internal/config"
	"github.com/pipelinecrm/crm-auth-service/internal/health"
	"github.com/pipelinecrm/crm-auth-service/internal/http/handler"
	"github.com/pipelinecrm/crm-auth-service/internal/http/middleware"
	"github.com/pipelinecrm/crm-auth-service/internal/http/router"
	"github.com/pipelinecrm/crm-auth-service/internal/notify"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
)

type loggerBundle struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

func provideLoggerBundle(ctx context.Context, cfg *config.Config) (*loggerBundle, error) {
	logger, provider, err := observability.InitLogger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &loggerBundle{logger: logger, provider: provider}, nil
}

func provideLogger(b *loggerBundle) *slog.Logger { return b.logger }

func provideRuntime(ctx context.Context, cfg *config.Config, b *loggerBundle) (*observability.Runtime, error) {
	rt, err := observability.InitRuntime(ctx, cfg, b.logger)
	if err != nil {
		return nil, err
	}
	rt.LoggerProvider = b.provider
	return rt, nil
}

func provideDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = repository.Close(db) }, nil
}

// provideRedis returns a nil client when no address is configured; every
// consumer treats nil as "fall back to the in-process implementation".
func provideRedis(cfg *config.Config) (redis.UniversalClient, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.TokenTTL)
}

func provideNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.SMTPAddr == "" {
		return &notify.LogNotifier{Logger: logger}
	}
	return notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, cfg.NotifyTimeout)
}

func provideActionTokenStore(rdb redis.UniversalClient) service.ActionTokenStore {
	if rdb == nil {
		return service.NewInMemoryActionTokenStore()
	}
	return service.NewRedisActionTokenStore(rdb, "action_token")
}

func provideAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	jwtMgr *security.JWTManager,
	tokens service.ActionTokenStore,
	notifier notify.Notifier,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(service.AuthServiceParams{
		Users:         users,
		Sessions:      sessions,
		JWTManager:    jwtMgr,
		Tokens:        tokens,
		Notifier:      notifier,
		Logger:        logger,
		SessionPepper: cfg.SessionPepper,
		VerifyTTL:     cfg.VerifyTokenTTL,
		ResetTTL:      cfg.ResetTokenTTL,
		NotifyTimeout: cfg.NotifyTimeout,
		BaseURL:       cfg.AppBaseURL,
	})
}

func provideAdminService(cfg *config.Config, users repository.UserRepository, notifier notify.Notifier, logger *slog.Logger) *service.AdminService {
	return service.NewAdminService(users, notifier, logger, cfg.NotifyTimeout)
}

func provideSessionService(cfg *config.Config, sessions repository.SessionRepository, logger *slog.Logger) *service.SessionService {
	return service.NewSessionService(sessions, logger, cfg.SessionPepper, cfg.SessionRetention)
}

func provideReadiness(db *gorm.DB, rdb redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDatabaseChecker(db)}
	if rdb != nil {
		checkers = append(checkers, health.NewRedisChecker(rdb))
	}
	return health.NewProbeRunner(10*time.Second, 2*time.Second, checkers...)
}

func provideHandler(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	jwtMgr *security.JWTManager,
	readiness *health.ProbeRunner,
	rdb redis.UniversalClient,
) http.Handler {
	dep := router.Dependencies{
		AuthHandler:                authHandler,
		UserHandler:                userHandler,
		AdminHandler:               adminHandler,
		JWTManager:                 jwtMgr,
		CORSOrigins:                cfg.CORSOrigins,
		APIRateLimitRPM:            cfg.APIRateLimitRPM,
		AuthRateLimitRPM:           cfg.AuthRateLimitRPM,
		PasswordForgotRateLimitRPM: cfg.ForgotRateLimitRPM,
		Readiness:                  readiness,
		EnableOTelHTTP:             cfg.OTELTracingEnabled,
	}
	if rdb != nil {
		backend := middleware.NewRedisFixedWindowLimiter(rdb, "ratelimit")
		dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(backend, cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "global").Middleware()
		dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(backend, cfg.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware()
		dep.ForgotRateLimiter = middleware.NewDistributedRateLimiter(backend, cfg.ForgotRateLimitRPM, time.Minute, middleware.FailClosed, "password_forgot").Middleware()
	}
	return router.NewRouter(dep)
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// provideBackground starts the hourly session janitor and returns its stop
// function for App.StopBackgroundTasks.
func provideBackground(sessions *service.SessionService, logger *slog.Logger) func() {
	ticker := time.NewTicker(time.Hour)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := sessions.Cleanup(ctx); err != nil {
					logger.Warn("scheduled session cleanup failed", "error", err)
				}
				cancel()
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
