package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/pinphoto-server/sync"

	// StoreMetricsMeterName is the name used for the photo store metrics meter
	StoreMetricsMeterName = "github.com/stacklok/pinphoto-server/store"
)

// SyncMetrics holds the instruments recorded for each page fetch.
// A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	syncDuration     metric.Float64Histogram
	photosDownloaded metric.Int64Counter
	photosSkipped    metric.Int64Counter
	syncsRejected    metric.Int64Counter
}

// NewSyncMetrics creates the sync instruments. A nil provider yields nil metrics.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"pinphoto_sync_duration_seconds",
		metric.WithDescription("Duration of page fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	photosDownloaded, err := meter.Int64Counter(
		"pinphoto_photos_downloaded_total",
		metric.WithDescription("Photos downloaded and stored"),
		metric.WithUnit("{photo}"),
	)
	if err != nil {
		return nil, err
	}

	photosSkipped, err := meter.Int64Counter(
		"pinphoto_photos_skipped_total",
		metric.WithDescription("Photo URLs that failed to download"),
		metric.WithUnit("{photo}"),
	)
	if err != nil {
		return nil, err
	}

	syncsRejected, err := meter.Int64Counter(
		"pinphoto_sync_rejected_total",
		metric.WithDescription("Sync requests rejected because a fetch was already in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:     syncDuration,
		photosDownloaded: photosDownloaded,
		photosSkipped:    photosSkipped,
		syncsRejected:    syncsRejected,
	}, nil
}

// RecordSync records one finished page fetch and its counts
func (m *SyncMetrics) RecordSync(ctx context.Context, status string, duration time.Duration, downloaded, skipped int) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
	if downloaded > 0 {
		m.photosDownloaded.Add(ctx, int64(downloaded))
	}
	if skipped > 0 {
		m.photosSkipped.Add(ctx, int64(skipped))
	}
}

// RecordRejected counts a sync request refused while another was loading
func (m *SyncMetrics) RecordRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.syncsRejected.Add(ctx, 1)
}

// StoreMetrics holds the photo store gauges
type StoreMetrics struct {
	pinsTotal   metric.Int64Gauge
	photosTotal metric.Int64Gauge
}

// NewStoreMetrics creates the store instruments. A nil provider yields nil metrics.
func NewStoreMetrics(provider metric.MeterProvider) (*StoreMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(StoreMetricsMeterName)

	pinsTotal, err := meter.Int64Gauge(
		"pinphoto_pins_total",
		metric.WithDescription("Number of pins"),
		metric.WithUnit("{pin}"),
	)
	if err != nil {
		return nil, err
	}

	photosTotal, err := meter.Int64Gauge(
		"pinphoto_photos_total",
		metric.WithDescription("Number of stored photos"),
		metric.WithUnit("{photo}"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{pinsTotal: pinsTotal, photosTotal: photosTotal}, nil
}

// RecordTotals records the current pin and photo counts
func (m *StoreMetrics) RecordTotals(ctx context.Context, pins, photos int64) {
	if m == nil {
		return
	}
	m.pinsTotal.Record(ctx, pins)
	m.photosTotal.Record(ctx, photos)
}
