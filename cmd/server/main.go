package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipelinecrm/crm-auth-service/internal/app"
	"github.com/pipelinecrm/crm-auth-service/internal/config"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
	"github.com/pipelinecrm/crm-auth-service/internal/tools/common"
	"github.com/pipelinecrm/crm-auth-service/internal/tools/loadgen"
	"github.com/pipelinecrm/crm-auth-service/internal/tools/ui"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "crm-auth-service",
		Short: "Authentication and account provisioning service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file loaded before config")
	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newCleanupSessionsCommand())
	root.AddCommand(newLoadgenCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run database migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := migrate(ctx); err != nil {
				return err
			}

			a, cleanup, err := app.InitializeApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed the system administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context())
		},
	}
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() { _ = repository.Close(db) }()

	if err := repository.Migrate(db); err != nil {
		return err
	}
	logger := slog.Default()
	users := repository.NewUserRepository(db)
	if err := service.EnsureSystemAdmin(ctx, users, logger, cfg.SystemAdminEmail, cfg.SystemAdminPassword, cfg.SystemAdminName); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func newCleanupSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-sessions",
		Short: "Remove expired and stale session ledger rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := repository.Open(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer func() { _ = repository.Close(db) }()

			logger := slog.Default()
			svc := service.NewSessionService(repository.NewSessionRepository(db), logger, cfg.SessionPepper, cfg.SessionRetention)
			result, err := svc.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("cleanup complete",
				"expired_removed", result.Expired,
				"stale_inactive_removed", result.StaleInactive,
			)
			return nil
		},
	}
}

func newLoadgenCommand() *cobra.Command {
	cfg := loadgen.Config{}
	var ci bool
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate synthetic traffic against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			runFn := func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures),
				}
				for class, n := range res.StatusClasses {
					details = append(details, fmt.Sprintf("%s=%d", class, n))
				}
				return details, nil
			}

			var details []string
			var err error
			if ci {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Duration+time.Minute)
				defer cancel()
				details, err = runFn(ctx)
				common.PrintCIResult(err == nil, "loadgen", details, err)
			} else {
				details, err = ui.Run("loadgen", runFn)
				for _, d := range details {
					fmt.Println(d)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: mixed, auth or health")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to run")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 6, "concurrent workers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "rng seed")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}
