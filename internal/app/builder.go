package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pinphoto-server/internal/api"
	"github.com/stacklok/pinphoto-server/internal/app/storage"
	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/fetcher"
	"github.com/stacklok/pinphoto-server/internal/httpclient"
	"github.com/stacklok/pinphoto-server/internal/provider"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/store"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
	"github.com/stacklok/pinphoto-server/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// tracerName prefixes the tracers handed to each component
	tracerName = "github.com/stacklok/pinphoto-server"

	// providerAccept is sent on search requests; downloads accept anything
	providerAccept = "application/json"
)

// PinPhotoAppOptions is a function that configures the app builder
type PinPhotoAppOptions func(*pinPhotoAppConfig) error

// pinPhotoAppConfig collects everything NewPinPhotoApp needs.
// Component overrides are primarily for testing.
type pinPhotoAppConfig struct {
	config *config.Config

	// Optional component overrides
	storageFactory storage.Factory
	pageFetcher    pinsync.PageFetcher

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...PinPhotoAppOptions) (*pinPhotoAppConfig, error) {
	cfg := &pinPhotoAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewPinPhotoApp wires the store, the sync controller, the service and the
// HTTP server from the given configuration.
func NewPinPhotoApp(
	ctx context.Context,
	opts ...PinPhotoAppOptions,
) (*PinPhotoApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Storage factory is the single decision point for memory vs database
	if cfg.storageFactory == nil {
		var storageOpts []storage.Option
		if cfg.tracerProvider != nil {
			storageOpts = append(storageOpts, storage.WithTracer(cfg.tracerProvider.Tracer(tracerName+"/store")))
		}
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config, storageOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	batches := changes.NewBus[changes.Batch]()

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
			batches.Close()
		}
	}()

	st, err := cfg.storageFactory.CreateStore(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	autosaver, err := cfg.storageFactory.CreateAutosaver(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create autosaver: %w", err)
	}

	controller, err := buildSyncComponents(cfg, st)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	photoService, err := buildServiceComponents(cfg, st, controller, batches)
	if err != nil {
		controller.Stop()
		return nil, fmt.Errorf("failed to build service components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, photoService)
	if err != nil {
		controller.Stop()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app
	cleanupNeeded = false

	return &PinPhotoApp{
		config: cfg.config,
		components: &AppComponents{
			Store:          st,
			Controller:     controller,
			PhotoService:   photoService,
			Autosaver:      autosaver,
			Batches:        batches,
			StorageFactory: cfg.storageFactory,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds every request except event streams
func WithRequestTimeout(d time.Duration) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithPageFetcher replaces the provider-backed fetcher (for testing)
func WithPageFetcher(f pinsync.PageFetcher) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.pageFetcher = f
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP, sync and store metrics
func WithMeterProvider(mp metric.MeterProvider) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) PinPhotoAppOptions {
	return func(cfg *pinPhotoAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildPageFetcher builds the provider client and the page fetcher on top of it
func buildPageFetcher(b *pinPhotoAppConfig) (pinsync.PageFetcher, error) {
	apiKey, err := b.config.Provider.GetAPIKey()
	if err != nil {
		return nil, err
	}

	fetchCfg := &b.config.Fetch
	searchClient := httpclient.NewDefaultClient(fetchCfg.GetTimeout(),
		httpclient.WithMaxTries(fetchCfg.GetMaxRetries()),
		httpclient.WithAccept(providerAccept),
	)

	var flickrOpts []provider.FlickrOption
	flickrOpts = append(flickrOpts, provider.WithRadiusKM(b.config.Provider.GetRadiusKM()))
	if b.config.Provider.SafeSearch > 0 {
		flickrOpts = append(flickrOpts, provider.WithSafeSearch(b.config.Provider.SafeSearch))
	}
	searcher := provider.NewFlickr(searchClient, b.config.Provider.GetEndpoint(), apiKey, flickrOpts...)

	downloadClient := httpclient.NewDefaultClient(fetchCfg.GetTimeout(),
		httpclient.WithMaxTries(fetchCfg.GetMaxRetries()),
	)

	fetcherOpts := []fetcher.Option{
		fetcher.WithConcurrency(fetchCfg.GetConcurrency()),
		fetcher.WithPerPage(fetchCfg.GetPageSize()),
	}
	if b.tracerProvider != nil {
		fetcherOpts = append(fetcherOpts, fetcher.WithTracer(b.tracerProvider.Tracer(tracerName+"/fetcher")))
	}

	slog.Info("Photo provider configured",
		"endpoint", b.config.Provider.GetEndpoint(),
		"page_size", fetchCfg.GetPageSize(),
		"concurrency", fetchCfg.GetConcurrency())
	return fetcher.New(searcher, downloadClient, fetcherOpts...), nil
}

// buildSyncComponents builds the page fetcher and the sync controller
func buildSyncComponents(b *pinPhotoAppConfig, st store.Store) (pinsync.Controller, error) {
	slog.Info("Initializing sync components")

	if b.pageFetcher == nil {
		f, err := buildPageFetcher(b)
		if err != nil {
			return nil, fmt.Errorf("failed to build page fetcher: %w", err)
		}
		b.pageFetcher = f
	}

	var opts []pinsync.Option
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			opts = append(opts, pinsync.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}
	if b.tracerProvider != nil {
		opts = append(opts, pinsync.WithTracer(b.tracerProvider.Tracer(tracerName+"/sync")))
	}

	controller := pinsync.New(st, b.pageFetcher, opts...)
	slog.Info("Sync components initialized successfully")
	return controller, nil
}

// buildServiceComponents builds the photo service
func buildServiceComponents(
	b *pinPhotoAppConfig,
	st store.Store,
	controller pinsync.Controller,
	batches *changes.Bus[changes.Batch],
) (service.PhotoService, error) {
	slog.Info("Initializing service components")

	var opts []service.Option
	if b.meterProvider != nil {
		storeMetrics, err := telemetry.NewStoreMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create store metrics: %w", err)
		}
		if storeMetrics != nil {
			opts = append(opts, service.WithStoreMetrics(storeMetrics))
			slog.Info("Store metrics enabled")
		}
	}

	return service.New(st, controller, batches, opts...), nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *pinPhotoAppConfig,
	svc service.PhotoService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			timeoutExceptStreams(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Tracing sits outside logging so request logs carry the span
	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}

	// Metrics go first to capture every request
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// timeoutExceptStreams applies middleware.Timeout to everything but the
// long-lived event streams, which end when the client goes away.
func timeoutExceptStreams(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		bounded := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/events") {
				next.ServeHTTP(w, r)
				return
			}
			bounded.ServeHTTP(w, r)
		})
	}
}
