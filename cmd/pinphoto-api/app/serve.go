package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/pinphoto-server/database"
	"github.com/stacklok/pinphoto-server/internal/app"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pinphoto API server",
		Long: `Start the pinphoto API server.

The server requires a configuration file (--config) that specifies:
- The image search provider and how pages are fetched
- The storage backend (memory with an optional snapshot, or PostgreSQL)
- Telemetry settings`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().Bool("migrate", false, "Apply pending database migrations before serving")
	cmd.Flags().Duration("graceful-timeout", defaultGracefulTimeout, "How long to wait for in-flight requests on shutdown")

	for _, name := range []string{"address", "config", "migrate", "graceful-timeout"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}

	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"storage", cfg.Storage.GetType(),
		"provider", cfg.Provider.GetEndpoint())

	if viper.GetBool("migrate") {
		if err := migrateOnStartup(cfg); err != nil {
			return err
		}
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	opts := []app.PinPhotoAppOptions{
		app.WithConfig(cfg),
		app.WithAddress(viper.GetString("address")),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, app.WithMetricsHandler(h))
	}

	pinPhotoApp, err := app.NewPinPhotoApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinPhotoApp.Start()
	}()

	select {
	case err := <-errCh:
		// The server never came up; release what was built
		if stopErr := pinPhotoApp.Stop(viper.GetDuration("graceful-timeout")); stopErr != nil {
			slog.Error("Cleanup after failed start", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	if err := pinPhotoApp.Stop(viper.GetDuration("graceful-timeout")); err != nil {
		return err
	}
	return <-errCh
}

// migrateOnStartup applies pending migrations when the database backend is selected
func migrateOnStartup(cfg *config.Config) error {
	if cfg.Storage.GetType() != config.StorageTypeDatabase {
		slog.Info("Skipping migrations, storage is not a database", "storage", cfg.Storage.GetType())
		return nil
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to build connection string: %w", err)
	}

	slog.Info("Applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
