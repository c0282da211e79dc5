// Package store defines the photo store used by the sync flow and the API.
// Implementations live in the inmemory and db subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPinNotFound is returned when a pin does not exist
	ErrPinNotFound = errors.New("pin not found")

	// ErrPhotoNotFound is returned when a photo does not exist
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrInvalidCoordinate is returned for a latitude or longitude out of range
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// StorageError wraps a failed write. The store state is unchanged when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Coordinate is a point on the map
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinate is within range
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// Pin is a geographic point dropped by the user
type Pin struct {
	ID uuid.UUID `json:"id"`
	Coordinate
	CreatedAt time.Time `json:"createdAt"`
}

// Photo is an image downloaded for a pin. Image is only populated by GetPhoto.
type Photo struct {
	ID          uuid.UUID `json:"id"`
	PinID       uuid.UUID `json:"pinId"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	Image       []byte    `json:"-"`
}

// NewPhoto is the input to AddPhoto
type NewPhoto struct {
	URL         string
	ContentType string
	Image       []byte
}

// Store persists pins and their photos
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/pinphoto-server/internal/store Store,Flusher
type Store interface {
	CreatePin(ctx context.Context, coord Coordinate) (*Pin, error)
	GetPin(ctx context.Context, pinID uuid.UUID) (*Pin, error)
	ListPins(ctx context.Context) ([]*Pin, error)
	// DeletePin removes the pin and all of its photos in one mutation cycle.
	DeletePin(ctx context.Context, pinID uuid.UUID) error

	// AddPhoto stores a downloaded image for pinID and returns the new photo ID.
	AddPhoto(ctx context.Context, pinID uuid.UUID, photo NewPhoto) (uuid.UUID, error)
	// RemovePhoto deletes a photo. ErrPhotoNotFound is returned if it does not exist.
	RemovePhoto(ctx context.Context, photoID uuid.UUID) error
	// ListPhotos returns the photos of a pin, newest first, without image bytes.
	ListPhotos(ctx context.Context, pinID uuid.UUID) ([]*Photo, error)
	GetPhoto(ctx context.Context, photoID uuid.UUID) (*Photo, error)
	CountPhotos(ctx context.Context, pinID uuid.UUID) (int, error)

	Ping(ctx context.Context) error
}

// Flusher is implemented by stores that buffer writes and persist them on demand
type Flusher interface {
	Flush(ctx context.Context) error
	Dirty() bool
}

// Less reports whether a sorts before b in a pin's photo listing:
// newest first, ties broken by descending ID.
func Less(a, b *Photo) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// IDs returns the photo IDs in order
func IDs(photos []*Photo) []uuid.UUID {
	ids := make([]uuid.UUID, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	return ids
}
