// Package inmemory provides a map-backed photo store with an optional JSON snapshot file.
package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// Store is an in-memory implementation of store.Store
type Store struct {
	mu     sync.RWMutex
	pins   map[uuid.UUID]*store.Pin
	photos map[uuid.UUID]*store.Photo
	// byPin holds each pin's photos in listing order
	byPin map[uuid.UUID][]*store.Photo
	dirty bool

	bus      *changes.Bus[changes.Batch]
	snapshot *snapshotFile
	now      func() time.Time
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Flusher = (*Store)(nil)
)

// Option configures the in-memory store
type Option func(*Store) error

// WithBus publishes every committed mutation to bus
func WithBus(bus *changes.Bus[changes.Batch]) Option {
	return func(s *Store) error {
		s.bus = bus
		return nil
	}
}

// WithSnapshot persists the store to path on Flush and loads it on creation.
// The file is locked for the lifetime of the store.
func WithSnapshot(path string) Option {
	return func(s *Store) error {
		if path == "" {
			return nil
		}
		f, err := openSnapshot(path)
		if err != nil {
			return err
		}
		s.snapshot = f
		return nil
	}
}

// WithClock overrides the time source used for creation timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		s.now = now
		return nil
	}
}

// New creates an in-memory store
func New(opts ...Option) (*Store, error) {
	s := &Store{
		pins:   make(map[uuid.UUID]*store.Pin),
		photos: make(map[uuid.UUID]*store.Photo),
		byPin:  make(map[uuid.UUID][]*store.Photo),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			if s.snapshot != nil {
				_ = s.snapshot.Close()
			}
			return nil, err
		}
	}

	if s.snapshot != nil {
		data, err := s.snapshot.Load()
		if err != nil {
			_ = s.snapshot.Close()
			return nil, err
		}
		s.restore(data)
	}
	return s, nil
}

func (s *Store) restore(data *snapshotData) {
	if data == nil {
		return
	}
	for _, p := range data.Pins {
		s.pins[p.ID] = p
	}
	for _, ph := range data.Photos {
		if _, ok := s.pins[ph.PinID]; !ok {
			slog.Warn("Dropping photo of unknown pin from snapshot", "photo_id", ph.ID, "pin_id", ph.PinID)
			continue
		}
		s.photos[ph.ID] = ph
		s.byPin[ph.PinID] = append(s.byPin[ph.PinID], ph)
	}
	for pinID := range s.byPin {
		slices.SortFunc(s.byPin[pinID], compare)
	}
	slog.Info("Restored store snapshot", "pins", len(s.pins), "photos", len(s.photos))
}

func compare(a, b *store.Photo) int {
	switch {
	case store.Less(a, b):
		return -1
	case store.Less(b, a):
		return 1
	default:
		return 0
	}
}

// CreatePin adds a new pin
func (s *Store) CreatePin(_ context.Context, coord store.Coordinate) (*store.Pin, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pin := &store.Pin{ID: uuid.New(), Coordinate: coord, CreatedAt: s.now().UTC()}
	s.pins[pin.ID] = pin
	s.dirty = true

	cp := *pin
	return &cp, nil
}

// GetPin returns a pin by ID
func (s *Store) GetPin(_ context.Context, pinID uuid.UUID) (*store.Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pin, ok := s.pins[pinID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
	}
	cp := *pin
	return &cp, nil
}

// ListPins returns all pins, newest first
func (s *Store) ListPins(_ context.Context) ([]*store.Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *store.Pin) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return -slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

// DeletePin removes a pin and all of its photos
func (s *Store) DeletePin(_ context.Context, pinID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[pinID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
	}

	before := store.IDs(s.byPin[pinID])
	for _, ph := range s.byPin[pinID] {
		delete(s.photos, ph.ID)
	}
	delete(s.byPin, pinID)
	delete(s.pins, pinID)
	s.dirty = true

	if len(before) > 0 {
		s.publish(changes.Deleted(pinID, before, before, nil))
	}
	return nil
}

// AddPhoto stores a photo for a pin
func (s *Store) AddPhoto(ctx context.Context, pinID uuid.UUID, in store.NewPhoto) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, &store.StorageError{Op: "add photo", Err: err}
	}
	if len(in.Image) == 0 {
		return uuid.Nil, &store.StorageError{Op: "add photo", Err: fmt.Errorf("empty image")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[pinID]; !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
	}

	photo := &store.Photo{
		ID:          uuid.New(),
		PinID:       pinID,
		URL:         in.URL,
		ContentType: in.ContentType,
		Size:        len(in.Image),
		CreatedAt:   s.now().UTC(),
		Image:       slices.Clone(in.Image),
	}

	list := s.byPin[pinID]
	before := store.IDs(list)
	i, _ := slices.BinarySearchFunc(list, photo, compare)
	list = slices.Insert(list, i, photo)
	s.byPin[pinID] = list
	s.photos[photo.ID] = photo
	s.dirty = true

	s.publish(changes.Inserted(pinID, photo.ID, before, store.IDs(list)))
	return photo.ID, nil
}

// RemovePhoto deletes a photo
func (s *Store) RemovePhoto(_ context.Context, photoID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[photoID]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
	}

	list := s.byPin[photo.PinID]
	before := store.IDs(list)
	list = slices.DeleteFunc(slices.Clone(list), func(p *store.Photo) bool { return p.ID == photoID })
	if len(list) == 0 {
		delete(s.byPin, photo.PinID)
	} else {
		s.byPin[photo.PinID] = list
	}
	delete(s.photos, photoID)
	s.dirty = true

	s.publish(changes.Deleted(photo.PinID, []uuid.UUID{photoID}, before, store.IDs(list)))
	return nil
}

// ListPhotos returns a pin's photos, newest first, without image bytes
func (s *Store) ListPhotos(_ context.Context, pinID uuid.UUID) ([]*store.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.pins[pinID]; !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
	}

	list := s.byPin[pinID]
	out := make([]*store.Photo, len(list))
	for i, p := range list {
		cp := *p
		cp.Image = nil
		out[i] = &cp
	}
	return out, nil
}

// GetPhoto returns a photo including its image bytes
func (s *Store) GetPhoto(_ context.Context, photoID uuid.UUID) (*store.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	photo, ok := s.photos[photoID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
	}
	cp := *photo
	cp.Image = slices.Clone(photo.Image)
	return &cp, nil
}

// CountPhotos returns the number of photos stored for a pin
func (s *Store) CountPhotos(_ context.Context, pinID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.pins[pinID]; !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
	}
	return len(s.byPin[pinID]), nil
}

// Ping always succeeds
func (*Store) Ping(context.Context) error {
	return nil
}

// Dirty reports whether there are changes not yet written to the snapshot
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Flush writes the snapshot if the store has one. Without a snapshot it only
// clears the dirty flag.
func (s *Store) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if s.snapshot != nil {
		data := &snapshotData{
			Pins:   make([]*store.Pin, 0, len(s.pins)),
			Photos: make([]*store.Photo, 0, len(s.photos)),
		}
		for _, p := range s.pins {
			data.Pins = append(data.Pins, p)
		}
		for _, p := range s.photos {
			data.Photos = append(data.Photos, p)
		}
		if err := s.snapshot.Save(data); err != nil {
			return &store.StorageError{Op: "flush", Err: err}
		}
	}
	s.dirty = false
	return nil
}

// Close releases the snapshot lock
func (s *Store) Close() error {
	if s.snapshot == nil {
		return nil
	}
	return s.snapshot.Close()
}

// publish must be called with mu held so batches leave in commit order
func (s *Store) publish(b changes.Batch) {
	if s.bus == nil || b.Empty() {
		return
	}
	s.bus.Publish(b.PinID, b)
}
