package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/pipelinecrm/crm-auth-service/internal/config"
)

const meterName = "crm-auth-service"

type AppMetrics struct {
	authOpCounter  metric.Int64Counter
	adminOpCounter metric.Int64Counter
	notifyCounter  metric.Int64Counter
	cleanupCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics

	lazyOnce         sync.Once
	repoOpCounter    metric.Int64Counter
	tokenCounter     metric.Int64Counter
	rateLimitCounter metric.Int64Counter
	retryAfterHisto  metric.Float64Histogram
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)
	authCounter, err := meter.Int64Counter("auth.operation.attempts")
	if err != nil {
		return nil, err
	}
	adminCounter, err := meter.Int64Counter("admin.provisioning.operations")
	if err != nil {
		return nil, err
	}
	notifyCounter, err := meter.Int64Counter("notify.dispatch.attempts")
	if err != nil {
		return nil, err
	}
	cleanupCounter, err := meter.Int64Counter("session.cleanup.removed")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		authOpCounter:  authCounter,
		adminOpCounter: adminCounter,
		notifyCounter:  notifyCounter,
		cleanupCounter: cleanupCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// RecordAuthOperation counts one auth workflow call by operation and outcome
// (success, invalid_input, invalid_credentials, error, ...).
func RecordAuthOperation(op, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.authOpCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("status", status),
		),
	)
}

func RecordAdminOperation(action, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.adminOpCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

func RecordNotificationDispatch(kind, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.notifyCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

func RecordSessionCleanup(category string, count int64) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil || count <= 0 {
		return
	}
	m.cleanupCounter.Add(context.Background(), count,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// Lazy counters below are usable before InitMetrics runs (repositories are
// exercised by migrations and tests); they bind to whatever meter provider
// is current on first use.
func initLazyCounters() {
	lazyOnce.Do(func() {
		meter := otel.Meter(meterName)
		if c, err := meter.Int64Counter("repository.operations"); err == nil {
			repoOpCounter = c
		}
		if c, err := meter.Int64Counter("auth.token.validations"); err == nil {
			tokenCounter = c
		}
		if c, err := meter.Int64Counter("ratelimit.decisions"); err == nil {
			rateLimitCounter = c
		}
		if h, err := meter.Float64Histogram("ratelimit.retry_after.seconds"); err == nil {
			retryAfterHisto = h
		}
	})
}

func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	initLazyCounters()
	if repoOpCounter == nil {
		return
	}
	repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	initLazyCounters()
	if tokenCounter == nil {
		return
	}
	tokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode string) {
	initLazyCounters()
	if rateLimitCounter == nil {
		return
	}
	rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
		attribute.String("mode", mode),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	initLazyCounters()
	if retryAfterHisto == nil {
		return
	}
	retryAfterHisto.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}
