// Package db implements store.Store on PostgreSQL using pgx.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/otel"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// Store is a PostgreSQL implementation of store.Store.
// Mutations of one pin lock its row, so their cycles commit in sequence.
type Store struct {
	pool   *pgxpool.Pool
	bus    *changes.Bus[changes.Batch]
	tracer trace.Tracer

	// pinLocks orders commit and publish for a pin within this process
	pinLocks keyedMutex
}

var _ store.Store = (*Store)(nil)

// Option configures the database store
type Option func(*Store)

// WithBus publishes every committed mutation to bus
func WithBus(bus *changes.Bus[changes.Batch]) Option {
	return func(s *Store) {
		s.bus = bus
	}
}

// WithTracer enables spans around every query
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// New creates a database store on top of pool
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	queryInsertPin = `INSERT INTO pin (id, latitude, longitude) VALUES ($1, $2, $3) RETURNING created_at`
	queryGetPin    = `SELECT id, latitude, longitude, created_at FROM pin WHERE id = $1`
	queryLockPin   = `SELECT id FROM pin WHERE id = $1 FOR UPDATE`
	queryListPins  = `SELECT id, latitude, longitude, created_at FROM pin ORDER BY created_at DESC, id DESC`
	queryDeletePin = `DELETE FROM pin WHERE id = $1`

	queryInsertPhoto = `INSERT INTO photo (id, pin_id, url, content_type, image) VALUES ($1, $2, $3, $4, $5)`
	queryPhotoPin    = `SELECT pin_id FROM photo WHERE id = $1`
	queryDeletePhoto = `DELETE FROM photo WHERE id = $1`
	queryPhotoIDs    = `SELECT id FROM photo WHERE pin_id = $1 ORDER BY created_at DESC, id DESC`
	queryCountPhotos = `SELECT count(*) FROM photo WHERE pin_id = $1`
)

const queryListPhotos = `
SELECT id, pin_id, url, content_type, octet_length(image), created_at
FROM photo
WHERE pin_id = $1
ORDER BY created_at DESC, id DESC`

const queryGetPhoto = `
SELECT id, pin_id, url, content_type, octet_length(image), created_at, image
FROM photo
WHERE id = $1`

// CreatePin inserts a new pin
func (s *Store) CreatePin(ctx context.Context, coord store.Coordinate) (_ *store.Pin, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.CreatePin")
	defer func() { endSpan(span, err) }()

	if err := coord.Validate(); err != nil {
		return nil, err
	}

	pin := &store.Pin{ID: uuid.New(), Coordinate: coord}
	if err := s.pool.QueryRow(ctx, queryInsertPin, pin.ID, coord.Latitude, coord.Longitude).Scan(&pin.CreatedAt); err != nil {
		return nil, &store.StorageError{Op: "create pin", Err: err}
	}
	pin.CreatedAt = pin.CreatedAt.UTC()
	return pin, nil
}

// GetPin returns a pin by ID
func (s *Store) GetPin(ctx context.Context, pinID uuid.UUID) (_ *store.Pin, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.GetPin",
		trace.WithAttributes(otel.AttrPinID.String(pinID.String())))
	defer func() { endSpan(span, err) }()

	return getPin(ctx, s.pool, pinID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPin(ctx context.Context, q querier, pinID uuid.UUID) (*store.Pin, error) {
	var pin store.Pin
	err := q.QueryRow(ctx, queryGetPin, pinID).Scan(&pin.ID, &pin.Latitude, &pin.Longitude, &pin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
		}
		return nil, err
	}
	pin.CreatedAt = pin.CreatedAt.UTC()
	return &pin, nil
}

// ListPins returns all pins, newest first
func (s *Store) ListPins(ctx context.Context) (_ []*store.Pin, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.ListPins")
	defer func() { endSpan(span, err) }()

	rows, err := s.pool.Query(ctx, queryListPins)
	if err != nil {
		return nil, err
	}
	pins, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Pin, error) {
		var p store.Pin
		if err := row.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(pins)))
	return pins, nil
}

// DeletePin removes a pin; the schema cascades to its photos
func (s *Store) DeletePin(ctx context.Context, pinID uuid.UUID) (err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.DeletePin",
		trace.WithAttributes(otel.AttrPinID.String(pinID.String())))
	defer func() { endSpan(span, err) }()

	unlock := s.pinLocks.Lock(pinID)
	defer unlock()

	var before []uuid.UUID
	err = s.inPinTx(ctx, pinID, func(tx pgx.Tx) error {
		ids, err := photoIDs(ctx, tx, pinID)
		if err != nil {
			return err
		}
		before = ids
		if _, err := tx.Exec(ctx, queryDeletePin, pinID); err != nil {
			return &store.StorageError{Op: "delete pin", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(before) > 0 {
		s.publish(changes.Deleted(pinID, before, before, nil))
	}
	return nil
}

// AddPhoto stores a photo for a pin
func (s *Store) AddPhoto(ctx context.Context, pinID uuid.UUID, in store.NewPhoto) (_ uuid.UUID, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.AddPhoto",
		trace.WithAttributes(
			otel.AttrPinID.String(pinID.String()),
			attribute.Int("photo.size", len(in.Image)),
		))
	defer func() { endSpan(span, err) }()

	if len(in.Image) == 0 {
		return uuid.Nil, &store.StorageError{Op: "add photo", Err: fmt.Errorf("empty image")}
	}

	unlock := s.pinLocks.Lock(pinID)
	defer unlock()

	photoID := uuid.New()
	var before, after []uuid.UUID
	err = s.inPinTx(ctx, pinID, func(tx pgx.Tx) error {
		var err error
		if before, err = photoIDs(ctx, tx, pinID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, queryInsertPhoto, photoID, pinID, in.URL, in.ContentType, in.Image); err != nil {
			return &store.StorageError{Op: "add photo", Err: err}
		}
		after, err = photoIDs(ctx, tx, pinID)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.publish(changes.Inserted(pinID, photoID, before, after))
	return photoID, nil
}

// RemovePhoto deletes a photo
func (s *Store) RemovePhoto(ctx context.Context, photoID uuid.UUID) (err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.RemovePhoto",
		trace.WithAttributes(otel.AttrPhotoID.String(photoID.String())))
	defer func() { endSpan(span, err) }()

	var pinID uuid.UUID
	if err := s.pool.QueryRow(ctx, queryPhotoPin, photoID).Scan(&pinID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
		}
		return err
	}

	unlock := s.pinLocks.Lock(pinID)
	defer unlock()

	var before, after []uuid.UUID
	err = s.inPinTx(ctx, pinID, func(tx pgx.Tx) error {
		var err error
		if before, err = photoIDs(ctx, tx, pinID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, queryDeletePhoto, photoID)
		if err != nil {
			return &store.StorageError{Op: "remove photo", Err: err}
		}
		// Removed concurrently between the lookup and the lock.
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
		}
		after, err = photoIDs(ctx, tx, pinID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrPinNotFound) {
			return fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
		}
		return err
	}

	s.publish(changes.Deleted(pinID, []uuid.UUID{photoID}, before, after))
	return nil
}

// ListPhotos returns a pin's photos, newest first, without image bytes
func (s *Store) ListPhotos(ctx context.Context, pinID uuid.UUID) (_ []*store.Photo, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.ListPhotos",
		trace.WithAttributes(otel.AttrPinID.String(pinID.String())))
	defer func() { endSpan(span, err) }()

	var photos []*store.Photo
	err = s.readTx(ctx, func(tx pgx.Tx) error {
		if _, err := getPin(ctx, tx, pinID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, queryListPhotos, pinID)
		if err != nil {
			return err
		}
		photos, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Photo, error) {
			var p store.Photo
			if err := row.Scan(&p.ID, &p.PinID, &p.URL, &p.ContentType, &p.Size, &p.CreatedAt); err != nil {
				return nil, err
			}
			p.CreatedAt = p.CreatedAt.UTC()
			return &p, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(photos)))
	return photos, nil
}

// GetPhoto returns a photo including its image bytes
func (s *Store) GetPhoto(ctx context.Context, photoID uuid.UUID) (_ *store.Photo, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.GetPhoto",
		trace.WithAttributes(otel.AttrPhotoID.String(photoID.String())))
	defer func() { endSpan(span, err) }()

	var p store.Photo
	err = s.pool.QueryRow(ctx, queryGetPhoto, photoID).
		Scan(&p.ID, &p.PinID, &p.URL, &p.ContentType, &p.Size, &p.CreatedAt, &p.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrPhotoNotFound, photoID)
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// CountPhotos returns the number of photos stored for a pin
func (s *Store) CountPhotos(ctx context.Context, pinID uuid.UUID) (_ int, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.CountPhotos",
		trace.WithAttributes(otel.AttrPinID.String(pinID.String())))
	defer func() { endSpan(span, err) }()

	var n int
	err = s.readTx(ctx, func(tx pgx.Tx) error {
		if _, err := getPin(ctx, tx, pinID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, queryCountPhotos, pinID).Scan(&n)
	})
	return n, err
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inPinTx runs fn in a read-write transaction holding the pin's row lock
func (s *Store) inPinTx(ctx context.Context, pinID uuid.UUID, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &store.StorageError{Op: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, queryLockPin, pinID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrPinNotFound, pinID)
		}
		return &store.StorageError{Op: "lock pin", Err: err}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &store.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// readTx gives multi-statement reads one consistent snapshot
func (s *Store) readTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func photoIDs(ctx context.Context, tx pgx.Tx, pinID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, queryPhotoIDs, pinID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func endSpan(span trace.Span, err error) {
	otel.RecordError(span, err, store.ErrPinNotFound, store.ErrPhotoNotFound, store.ErrInvalidCoordinate)
	span.End()
}

func (s *Store) publish(b changes.Batch) {
	if s.bus == nil || b.Empty() {
		return
	}
	s.bus.Publish(b.PinID, b)
}

// keyedMutex hands out one mutex per pin, dropping it once nobody holds it
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
