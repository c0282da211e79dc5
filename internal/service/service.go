// Package service provides the business logic behind the pinphoto API
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go PhotoService

// PhotoService defines the operations the API exposes for pins, photos and syncs.
// Unknown pins and photos are reported with store.ErrPinNotFound and
// store.ErrPhotoNotFound.
type PhotoService interface {
	// CheckReadiness checks if the store is reachable
	CheckReadiness(ctx context.Context) error

	// CreatePin stores a new pin and starts fetching its first page
	CreatePin(ctx context.Context, coord store.Coordinate) (*PinDetail, error)

	// ListPins returns every pin, newest first
	ListPins(ctx context.Context) ([]*PinDetail, error)

	// GetPin returns a pin with its photo count and sync state
	GetPin(ctx context.Context, pinID uuid.UUID) (*PinDetail, error)

	// DeletePin cancels the pin's sync and deletes it with all of its photos
	DeletePin(ctx context.Context, pinID uuid.UUID) error

	// ListPhotos returns the pin's photos, newest first, without image bytes
	ListPhotos(ctx context.Context, pinID uuid.UUID) ([]*store.Photo, error)

	// GetPhoto returns a photo of the pin including its image bytes
	GetPhoto(ctx context.Context, pinID, photoID uuid.UUID) (*store.Photo, error)

	// RemovePhoto deletes a photo of the pin
	RemovePhoto(ctx context.Context, pinID, photoID uuid.UUID) error

	// SyncState returns the pin's sync state
	SyncState(ctx context.Context, pinID uuid.UUID) (status.SyncState, error)

	// RequestSync fetches the pin's current page in the background
	RequestSync(ctx context.Context, pinID uuid.UUID) (status.SyncState, error)

	// AdvancePage fetches the pin's next page in the background
	AdvancePage(ctx context.Context, pinID uuid.UUID) (status.SyncState, error)

	// CancelSync stops the pin's in-flight fetch, if any
	CancelSync(ctx context.Context, pinID uuid.UUID) error

	// Watch streams the pin's photo list and sync state until ctx is done or
	// the stream is closed
	Watch(ctx context.Context, pinID uuid.UUID) (*Stream, error)
}

// PinDetail is a pin with its derived state
type PinDetail struct {
	*store.Pin
	PhotoCount int              `json:"photoCount"`
	Sync       status.SyncState `json:"sync"`
}
