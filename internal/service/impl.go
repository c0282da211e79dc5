package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
	"github.com/stacklok/pinphoto-server/internal/telemetry"
)

type photoService struct {
	store      store.Store
	controller pinsync.Controller
	batches    *changes.Bus[changes.Batch]
	metrics    *telemetry.StoreMetrics
}

// Option configures the service
type Option func(*photoService)

// WithStoreMetrics records pin and photo totals after every mutation
func WithStoreMetrics(metrics *telemetry.StoreMetrics) Option {
	return func(s *photoService) {
		s.metrics = metrics
	}
}

// New creates the service. batches must be the bus the store publishes to.
func New(
	st store.Store,
	controller pinsync.Controller,
	batches *changes.Bus[changes.Batch],
	opts ...Option,
) PhotoService {
	s := &photoService{
		store:      st,
		controller: controller,
		batches:    batches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *photoService) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

func (s *photoService) CreatePin(ctx context.Context, coord store.Coordinate) (*PinDetail, error) {
	pin, err := s.store.CreatePin(ctx, coord)
	if err != nil {
		return nil, err
	}
	slog.Info("Pin created", "pin_id", pin.ID, "latitude", pin.Latitude, "longitude", pin.Longitude)

	results, started, err := s.controller.Bootstrap(ctx, pin.ID)
	if err != nil {
		// The pin exists; the client can still request a sync
		slog.Warn("Failed to start first fetch for new pin", "pin_id", pin.ID, "error", err)
	} else if started {
		go s.await(results)
	}
	s.refreshTotals(ctx)

	return &PinDetail{Pin: pin, Sync: s.controller.State(pin.ID)}, nil
}

func (s *photoService) ListPins(ctx context.Context) ([]*PinDetail, error) {
	pins, err := s.store.ListPins(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*PinDetail, 0, len(pins))
	for _, pin := range pins {
		n, err := s.store.CountPhotos(ctx, pin.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count photos of pin %s: %w", pin.ID, err)
		}
		out = append(out, &PinDetail{Pin: pin, PhotoCount: n, Sync: s.controller.State(pin.ID)})
	}
	return out, nil
}

func (s *photoService) GetPin(ctx context.Context, pinID uuid.UUID) (*PinDetail, error) {
	pin, err := s.store.GetPin(ctx, pinID)
	if err != nil {
		return nil, err
	}
	n, err := s.store.CountPhotos(ctx, pinID)
	if err != nil {
		return nil, err
	}
	return &PinDetail{Pin: pin, PhotoCount: n, Sync: s.controller.State(pinID)}, nil
}

func (s *photoService) DeletePin(ctx context.Context, pinID uuid.UUID) error {
	if _, err := s.store.GetPin(ctx, pinID); err != nil {
		return err
	}

	// Stop the running fetch before its photos are removed
	s.controller.Forget(pinID)
	if err := s.store.DeletePin(ctx, pinID); err != nil {
		return err
	}
	// A request accepted in between started against the deleted pin
	s.controller.Forget(pinID)
	slog.Info("Pin deleted", "pin_id", pinID)
	s.refreshTotals(ctx)
	return nil
}

func (s *photoService) ListPhotos(ctx context.Context, pinID uuid.UUID) ([]*store.Photo, error) {
	return s.store.ListPhotos(ctx, pinID)
}

func (s *photoService) GetPhoto(ctx context.Context, pinID, photoID uuid.UUID) (*store.Photo, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo.PinID != pinID {
		return nil, fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
	}
	return photo, nil
}

func (s *photoService) RemovePhoto(ctx context.Context, pinID, photoID uuid.UUID) error {
	// GetPhoto scopes the photo to the pin before anything is deleted
	if _, err := s.GetPhoto(ctx, pinID, photoID); err != nil {
		return err
	}
	if err := s.store.RemovePhoto(ctx, photoID); err != nil {
		return err
	}
	slog.Debug("Photo removed", "pin_id", pinID, "photo_id", photoID)
	s.refreshTotals(ctx)
	return nil
}

func (s *photoService) SyncState(ctx context.Context, pinID uuid.UUID) (status.SyncState, error) {
	if _, err := s.store.GetPin(ctx, pinID); err != nil {
		return status.SyncState{}, err
	}
	return s.controller.State(pinID), nil
}

func (s *photoService) RequestSync(ctx context.Context, pinID uuid.UUID) (status.SyncState, error) {
	results, err := s.controller.Request(ctx, pinID)
	if err != nil {
		return status.SyncState{}, err
	}
	go s.await(results)
	return s.controller.State(pinID), nil
}

func (s *photoService) AdvancePage(ctx context.Context, pinID uuid.UUID) (status.SyncState, error) {
	results, err := s.controller.AdvancePage(ctx, pinID)
	if err != nil {
		return status.SyncState{}, err
	}
	go s.await(results)
	return s.controller.State(pinID), nil
}

func (s *photoService) CancelSync(ctx context.Context, pinID uuid.UUID) error {
	if _, err := s.store.GetPin(ctx, pinID); err != nil {
		return err
	}
	if s.controller.Cancel(pinID) {
		slog.Info("Sync cancelled", "pin_id", pinID)
	}
	return nil
}

// await refreshes the totals once a background fetch has stored its photos
func (s *photoService) await(results <-chan pinsync.Result) {
	res, ok := <-results
	if !ok || res.Stored == 0 {
		return
	}
	s.refreshTotals(context.Background())
}

func (s *photoService) refreshTotals(ctx context.Context) {
	if s.metrics == nil {
		return
	}

	pins, err := s.store.ListPins(ctx)
	if err != nil {
		slog.Debug("Failed to list pins for metrics", "error", err)
		return
	}
	var photos int64
	for _, pin := range pins {
		n, err := s.store.CountPhotos(ctx, pin.ID)
		if err != nil {
			slog.Debug("Failed to count photos for metrics", "pin_id", pin.ID, "error", err)
			return
		}
		photos += int64(n)
	}
	s.metrics.RecordTotals(ctx, int64(len(pins)), photos)
}
