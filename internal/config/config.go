package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Profile  string
	HTTPAddr string

	// Database. Driver is "sqlite" or "postgres"; DSN is a file path (or
	// :memory: form) for sqlite and a connection string for postgres.
	DBDriver string
	DBDSN    string

	// Redis is optional. When Addr is empty the action-token store and
	// rate limiter fall back to their in-process implementations.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer     string
	JWTAudience   string
	JWTSecret     string
	TokenTTL      time.Duration
	SessionPepper string

	VerifyTokenTTL   time.Duration
	ResetTokenTTL    time.Duration
	SessionRetention time.Duration

	// Seeded system administrator. Created on migrate if absent; can never
	// be deleted through the API.
	SystemAdminEmail    string
	SystemAdminPassword string
	SystemAdminName     string

	SMTPAddr      string
	SMTPFrom      string
	SMTPUsername  string
	SMTPPassword  string
	NotifyTimeout time.Duration
	AppBaseURL    string

	CORSOrigins []string

	APIRateLimitRPM    int
	AuthRateLimitRPM   int
	ForgotRateLimitRPM int

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

// Load builds the config from the process environment. Defaults target
// local development; validation failures are wrapped with a stable
// "validate config:" prefix so operators can grep startup logs for them.
func Load() (*Config, error) {
	cfg := &Config{
		Profile:  envString("APP_PROFILE", "development"),
		HTTPAddr: envString("HTTP_ADDR", ":8080"),

		DBDriver: envString("DB_DRIVER", "sqlite"),
		DBDSN:    envString("DB_DSN", "crm-auth.db"),

		RedisAddr:     envString("REDIS_ADDR", ""),
		RedisPassword: envString("REDIS_PASSWORD", ""),

		JWTIssuer:     envString("JWT_ISSUER", "crm-auth-service"),
		JWTAudience:   envString("JWT_AUDIENCE", "crm-web"),
		JWTSecret:     envString("JWT_SECRET", ""),
		SessionPepper: envString("SESSION_PEPPER", ""),

		SystemAdminEmail:    envString("SYSTEM_ADMIN_EMAIL", "admin@crm.local"),
		SystemAdminPassword: envString("SYSTEM_ADMIN_PASSWORD", ""),
		SystemAdminName:     envString("SYSTEM_ADMIN_NAME", "System Administrator"),

		SMTPAddr:     envString("SMTP_ADDR", ""),
		SMTPFrom:     envString("SMTP_FROM", "no-reply@crm.local"),
		SMTPUsername: envString("SMTP_USERNAME", ""),
		SMTPPassword: envString("SMTP_PASSWORD", ""),
		AppBaseURL:   envString("APP_BASE_URL", "http://localhost:8080"),

		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELServiceName:          envString("OTEL_SERVICE_NAME", "crm-auth-service"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "development"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.VerifyTokenTTL, err = envDuration("VERIFY_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ResetTokenTTL, err = envDuration("RESET_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionRetention, err = envDuration("SESSION_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = envDuration("NOTIFY_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.APIRateLimitRPM, err = envInt("API_RATE_LIMIT_RPM", 600); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimitRPM, err = envInt("AUTH_RATE_LIMIT_RPM", 60); err != nil {
		return nil, err
	}
	if cfg.ForgotRateLimitRPM, err = envInt("FORGOT_RATE_LIMIT_RPM", 10); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELTracingEnabled, err = envBool("OTEL_TRACING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownHTTPDrainTimeout, err = envDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownObservabilityTimeout, err = envDuration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if origins := envString("CORS_ORIGINS", "http://localhost:3000"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Profile, "invalid", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Profile, "valid", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.Profile == "production" {
			return fmt.Errorf("validate config: JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-only-insecure-jwt-secret-32b!"
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("validate config: JWT_SECRET must be at least 32 bytes")
	}
	if c.SessionPepper == "" {
		if c.Profile == "production" {
			return fmt.Errorf("validate config: SESSION_PEPPER is required in production")
		}
		c.SessionPepper = "dev-only-session-pepper"
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("validate config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("validate config: TOKEN_TTL must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
