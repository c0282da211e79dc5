package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// newCollector accepts OTLP exports so shutdown flushes succeed
func newCollector(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		config        *Config
		sdkTracer     bool
		sdkMeter      bool
		promHandler   bool
		errorContains string
	}{
		{name: "no config"},
		{name: "disabled", config: &Config{Enabled: false, Tracing: &TracingConfig{Enabled: true}}},
		{
			name: "enabled with both signals off",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false},
				Metrics: &MetricsConfig{Enabled: false},
			},
		},
		{
			name:          "invalid sampling",
			config:        &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			errorContains: "invalid telemetry configuration",
		},
		{
			name: "tracing only",
			config: &Config{
				Enabled:  true,
				Insecure: true,
				Tracing:  &TracingConfig{Enabled: true, Sampling: 1.0},
			},
			sdkTracer: true,
		},
		{
			name: "prometheus metrics",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterPrometheus},
			},
			sdkMeter:    true,
			promHandler: true,
		},
		{
			name: "otlp metrics and tracing",
			config: &Config{
				Enabled:  true,
				Insecure: true,
				Tracing:  &TracingConfig{Enabled: true, Sampling: 1.0},
				Metrics:  &MetricsConfig{Enabled: true, Exporter: ExporterOTLP},
			},
			sdkTracer: true,
			sdkMeter:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			if tt.config != nil {
				tt.config.Endpoint = newCollector(t)
			}

			tel, err := New(ctx, WithTelemetryConfig(tt.config))
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)

			if tt.sdkTracer {
				_, ok := tel.TracerProvider().(*sdktrace.TracerProvider)
				assert.True(t, ok, "expected SDK tracer provider")
			} else {
				_, ok := tel.TracerProvider().(tracenoop.TracerProvider)
				assert.True(t, ok, "expected no-op tracer provider")
			}

			if tt.sdkMeter {
				_, ok := tel.MeterProvider().(*sdkmetric.MeterProvider)
				assert.True(t, ok, "expected SDK meter provider")
			} else {
				_, ok := tel.MeterProvider().(noop.MeterProvider)
				assert.True(t, ok, "expected no-op meter provider")
			}

			assert.Equal(t, tt.promHandler, tel.MetricsHandler() != nil)
			assert.NotNil(t, tel.Tracer("test"))

			require.NoError(t, tel.Shutdown(ctx))
		})
	}
}

func TestTelemetry_PrometheusHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true},
	}))
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(ctx) }()

	metrics, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordSync(ctx, "complete", 250*time.Millisecond, 3, 0)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pinphoto_photos_downloaded_total")
	assert.Contains(t, string(body), "pinphoto_sync_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTelemetry_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := newNoOpTelemetry(ctx)
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(ctx))
	require.NoError(t, tel.Shutdown(ctx))
}

func TestOption_WithTelemetryConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{Enabled: true, ServiceName: "test"}
	tc := &telemetryConfig{}
	WithTelemetryConfig(cfg)(tc)
	assert.Equal(t, cfg, tc.config)
}
