// Package storetest holds behavior tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// Factory returns a fresh store publishing to bus
type Factory func(t *testing.T, bus *changes.Bus[changes.Batch]) store.Store

// Run executes the shared store behavior tests
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("pins", func(t *testing.T) { testPins(t, newStore) })
	t.Run("list_is_scoped_to_pin", func(t *testing.T) { testListScoped(t, newStore) })
	t.Run("remove_twice", func(t *testing.T) { testRemoveTwice(t, newStore) })
	t.Run("ordering", func(t *testing.T) { testOrdering(t, newStore) })
	t.Run("unknown_pin", func(t *testing.T) { testUnknownPin(t, newStore) })
	t.Run("delete_pin_cascades", func(t *testing.T) { testDeletePinCascades(t, newStore) })
	t.Run("batches", func(t *testing.T) { testBatches(t, newStore) })
}

func image(b byte) store.NewPhoto {
	return store.NewPhoto{
		URL:         fmt.Sprintf("https://example.com/%d.jpg", b),
		ContentType: "image/jpeg",
		Image:       []byte{0xFF, 0xD8, 0xFF, b},
	}
}

func testPins(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	_, err := s.CreatePin(ctx, store.Coordinate{Latitude: 91, Longitude: 0})
	require.ErrorIs(t, err, store.ErrInvalidCoordinate)

	pin, err := s.CreatePin(ctx, store.Coordinate{Latitude: 40.0, Longitude: -74.0})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, pin.ID)

	got, err := s.GetPin(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, pin.ID, got.ID)
	assert.InDelta(t, 40.0, got.Latitude, 1e-9)
	assert.InDelta(t, -74.0, got.Longitude, 1e-9)

	pins, err := s.ListPins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)

	require.NoError(t, s.DeletePin(ctx, pin.ID))
	_, err = s.GetPin(ctx, pin.ID)
	require.ErrorIs(t, err, store.ErrPinNotFound)
	require.ErrorIs(t, s.DeletePin(ctx, pin.ID), store.ErrPinNotFound)
}

func testListScoped(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	a, err := s.CreatePin(ctx, store.Coordinate{Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	b, err := s.CreatePin(ctx, store.Coordinate{Latitude: 2, Longitude: 2})
	require.NoError(t, err)

	var aIDs []uuid.UUID
	for i := range 3 {
		id, err := s.AddPhoto(ctx, a.ID, image(byte(i)))
		require.NoError(t, err)
		aIDs = append(aIDs, id)
	}
	bID, err := s.AddPhoto(ctx, b.ID, image(9))
	require.NoError(t, err)

	listA, err := s.ListPhotos(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, listA, 3)
	for _, p := range listA {
		assert.Equal(t, a.ID, p.PinID)
		assert.Nil(t, p.Image, "listings must not carry image bytes")
	}

	require.NoError(t, s.RemovePhoto(ctx, aIDs[1]))

	listA, err = s.ListPhotos(ctx, a.ID)
	require.NoError(t, err)
	assert.NotContains(t, store.IDs(listA), aIDs[1])
	assert.Len(t, listA, 2)

	listB, err := s.ListPhotos(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bID}, store.IDs(listB))

	count, err := s.CountPhotos(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	photo, err := s.GetPhoto(ctx, bID)
	require.NoError(t, err)
	assert.Equal(t, image(9).Image, photo.Image)
	assert.Equal(t, 4, photo.Size)
	assert.Equal(t, "image/jpeg", photo.ContentType)
}

func testRemoveTwice(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	pin, err := s.CreatePin(ctx, store.Coordinate{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	id, err := s.AddPhoto(ctx, pin.ID, image(1))
	require.NoError(t, err)

	require.NoError(t, s.RemovePhoto(ctx, id))
	err = s.RemovePhoto(ctx, id)
	require.ErrorIs(t, err, store.ErrPhotoNotFound)

	_, err = s.GetPhoto(ctx, id)
	require.ErrorIs(t, err, store.ErrPhotoNotFound)
	require.ErrorIs(t, s.RemovePhoto(ctx, uuid.New()), store.ErrPhotoNotFound)
}

func testOrdering(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	pin, err := s.CreatePin(ctx, store.Coordinate{Latitude: 3, Longitude: 3})
	require.NoError(t, err)

	var added []uuid.UUID
	for i := range 5 {
		id, err := s.AddPhoto(ctx, pin.ID, image(byte(i)))
		require.NoError(t, err)
		added = append(added, id)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.ListPhotos(ctx, pin.ID)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.True(t, store.Less(list[i-1], list[i]), "photos must be ordered newest first")
	}
	assert.Equal(t, added[4], list[0].ID)
	assert.Equal(t, added[0], list[4].ID)
}

func testUnknownPin(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)
	missing := uuid.New()

	_, err := s.AddPhoto(ctx, missing, image(1))
	require.ErrorIs(t, err, store.ErrPinNotFound)

	_, err = s.ListPhotos(ctx, missing)
	require.ErrorIs(t, err, store.ErrPinNotFound)

	_, err = s.CountPhotos(ctx, missing)
	require.ErrorIs(t, err, store.ErrPinNotFound)

	pin, err := s.CreatePin(ctx, store.Coordinate{})
	require.NoError(t, err)
	_, err = s.AddPhoto(ctx, pin.ID, store.NewPhoto{URL: "https://example.com/empty"})
	var storageErr *store.StorageError
	require.True(t, errors.As(err, &storageErr))
}

func testDeletePinCascades(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	pin, err := s.CreatePin(ctx, store.Coordinate{Latitude: 4, Longitude: 4})
	require.NoError(t, err)
	id, err := s.AddPhoto(ctx, pin.ID, image(1))
	require.NoError(t, err)

	require.NoError(t, s.DeletePin(ctx, pin.ID))
	_, err = s.GetPhoto(ctx, id)
	require.ErrorIs(t, err, store.ErrPhotoNotFound)
}

func next(t *testing.T, sub *changes.Subscription[changes.Batch]) changes.Batch {
	t.Helper()
	select {
	case b := <-sub.C():
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	return changes.Batch{}
}

func testBatches(t *testing.T, newStore Factory) {
	ctx := context.Background()
	bus := changes.NewBus[changes.Batch]()
	t.Cleanup(bus.Close)
	s := newStore(t, bus)

	pin, err := s.CreatePin(ctx, store.Coordinate{Latitude: 5, Longitude: 5})
	require.NoError(t, err)

	sub := bus.Subscribe(pin.ID)
	t.Cleanup(sub.Close)

	grid := &changes.Grid{PinID: pin.ID}
	apply := func() {
		ins, err := changes.Project(next(t, sub))
		require.NoError(t, err)
		require.NoError(t, grid.Apply(ins))
	}

	var ids []uuid.UUID
	for i := range 3 {
		id, err := s.AddPhoto(ctx, pin.ID, image(byte(i)))
		require.NoError(t, err)
		ids = append(ids, id)
		apply()
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.RemovePhoto(ctx, ids[1]))
	apply()

	list, err := s.ListPhotos(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, store.IDs(list), grid.Cells)

	require.NoError(t, s.DeletePin(ctx, pin.ID))
	apply()
	assert.Empty(t, grid.Cells)
}
