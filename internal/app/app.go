// Package app provides application lifecycle management for the pinphoto server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/pinphoto-server/internal/config"
)

// PinPhotoApp encapsulates all components needed to run the API server.
// It provides lifecycle management and graceful shutdown capabilities.
type PinPhotoApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start bootstraps empty pins, starts the autosaver and serves HTTP.
// It blocks until the HTTP server stops or encounters an error.
func (app *PinPhotoApp) Start() error {
	started, err := app.components.Controller.BootstrapAll(app.ctx)
	if err != nil {
		// The server is still useful; pins bootstrap again when watched
		slog.Error("Failed to bootstrap pins", "error", err)
	} else if started > 0 {
		slog.Info("Started first fetch for pins without photos", "pins", started)
	}

	if saver := app.components.Autosaver; saver != nil {
		go func() {
			if err := saver.Start(app.ctx); err != nil {
				slog.Error("Autosave failed", "error", err)
			}
		}()
	}

	// Open event streams end once the server begins shutting down
	app.httpServer.RegisterOnShutdown(app.components.Batches.Close)

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// In-flight requests drain first, then running fetches are cancelled and the
// store is flushed before its resources are released.
func (app *PinPhotoApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	app.components.Controller.Stop()
	app.components.Batches.Close()

	if saver := app.components.Autosaver; saver != nil {
		if err := saver.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("final flush failed: %w", err))
		}
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.components.StorageFactory.Cleanup()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *PinPhotoApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *PinPhotoApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
