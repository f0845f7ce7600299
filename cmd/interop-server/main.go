package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/db"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/events"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/middleware"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/telemetry"
	"github.com/palladiumkenya/openmrs-module-interop/migrations"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "interop-server",
		Short:        "Publishes clinical events to the shared health record as FHIR bundles",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(bundleCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the event ingress and publishing pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.HasDatabase() {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the current SHR bearer token, granting a new one if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Debug().Str("status", a.tokens.Status(cmd.Context()).String()).Msg("stored token")
			var token string
			if force {
				token, err = a.tokens.Refresh(cmd.Context())
			} else {
				token, err = a.tokens.Token(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Grant a new token even when the stored one is valid")
	return cmd
}

func bundleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundle <encounter-uuid>",
		Short: "Print the transaction bundle for an encounter without publishing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg.Env))
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.assembler().Build(cmd.Context(), auth.SystemPrincipal("cli"), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	metrics, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "interop-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	a, err := newApp(ctx, cfg, logger, auth.WithGrantObserver(metrics.TokenGrant))
	if err != nil {
		return err
	}
	defer a.Close()

	pub, err := a.publisher(ctx, metrics)
	if err != nil {
		return err
	}
	reg, encHandler, err := a.registry(pub)
	if err != nil {
		return err
	}
	router := events.NewRouter(reg, logger, events.WithOutcome(func(evt events.DomainEvent, handler string, err error) {
		metrics.EventHandled(context.Background(), evt.Kind, handler, err)
	}))
	logger.Info().Strs("kinds", reg.Kinds()).Msg("event handlers registered")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", db.HealthHandler(a.pool, a.checks))
	events.NewIngress(router, logger).RegisterRoutes(e)
	encHandler.RegisterRoutes(e)
	if !cfg.HasDatabase() {
		clinical.NewHandler(a.svc, logger).RegisterRoutes(e)
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	// In-flight handlers finish before the pool and stores close.
	done := make(chan struct{})
	go func() {
		router.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("event handlers still running at shutdown")
	}

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics shutdown failed")
	}
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("server stopped")
	return nil
}
