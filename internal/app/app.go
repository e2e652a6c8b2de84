package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipelinecrm/crm-auth-service/internal/config"
	"github.com/pipelinecrm/crm-auth-service/internal/health"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
)

// App holds the assembled service and owns the serve/shutdown lifecycle.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		stopBackground:               stopBackground,
	}
}

// StopBackgroundTasks halts periodic workers started during assembly. Safe to
// call more than once.
func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
		a.stopBackground = nil
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// flushes telemetry within the configured shutdown budget.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	a.Logger.Info("shutting down",
		"drain_timeout", a.ShutdownHTTPDrainTimeout,
		"observability_timeout", a.ShutdownObservabilityTimeout,
	)
	a.StopBackgroundTasks()

	overall, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	var errs []error
	drainCtx, drainCancel := context.WithTimeout(overall, a.ShutdownHTTPDrainTimeout)
	defer drainCancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}

	obsCtx, obsCancel := context.WithTimeout(overall, a.ShutdownObservabilityTimeout)
	defer obsCancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
