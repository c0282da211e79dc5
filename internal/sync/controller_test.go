package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/fetcher"
	"github.com/stacklok/pinphoto-server/internal/provider"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/inmemory"
	storemocks "github.com/stacklok/pinphoto-server/internal/store/mocks"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
	syncmocks "github.com/stacklok/pinphoto-server/internal/sync/mocks"
)

const waitTimeout = 5 * time.Second

func newPin() *store.Pin {
	return &store.Pin{
		ID:         uuid.New(),
		Coordinate: store.Coordinate{Latitude: 40.0, Longitude: -74.0},
		CreatedAt:  time.Now(),
	}
}

func items(urls ...string) []fetcher.Item {
	out := make([]fetcher.Item, 0, len(urls))
	for _, u := range urls {
		out = append(out, fetcher.Item{URL: u, ContentType: "image/jpeg", Image: []byte{0xFF, 0xD8, 0xFF}})
	}
	return out
}

type fetchFunc func(context.Context, store.Coordinate, int, fetcher.Handler) (fetcher.Summary, error)

// serve hands every item to the handler the way fetcher.FetchPage does
func serve(page fetcher.Summary, its []fetcher.Item) fetchFunc {
	return func(_ context.Context, _ store.Coordinate, n int, handle fetcher.Handler) (fetcher.Summary, error) {
		page.Page = n
		for _, it := range its {
			if err := handle(it); err != nil {
				return page, err
			}
			page.Downloaded++
		}
		return page, nil
	}
}

// blockUntilCancelled waits for the fetch context and reports its error
func blockUntilCancelled(started chan<- struct{}) fetchFunc {
	return func(ctx context.Context, _ store.Coordinate, n int, _ fetcher.Handler) (fetcher.Summary, error) {
		close(started)
		<-ctx.Done()
		return fetcher.Summary{Page: n}, ctx.Err()
	}
}

func wait(t *testing.T, ch <-chan pinsync.Result) pinsync.Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok, "result channel closed without a result")
		return res
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for sync result")
		return pinsync.Result{}
	}
}

func nextState(t *testing.T, sub *changes.Subscription[status.SyncState]) status.SyncState {
	t.Helper()
	select {
	case s := <-sub.C():
		return s
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for sync state")
		return status.SyncState{}
	}
}

// noMoreStates fails if sub delivers another transition within a short window
func noMoreStates(t *testing.T, sub *changes.Subscription[status.SyncState]) {
	t.Helper()
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra transition %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestStoresEveryItem(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)
	st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, p store.NewPhoto) (uuid.UUID, error) {
			assert.Equal(t, "image/jpeg", p.ContentType)
			assert.NotEmpty(t, p.Image)
			return uuid.New(), nil
		}).Times(3)

	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).
		DoAndReturn(serve(fetcher.Summary{Pages: 5, Requested: 3}, items("u1", "u2", "u3")))

	c := pinsync.New(st, f)
	defer c.Stop()

	sub := c.Subscribe(pin.ID)
	defer sub.Close()

	assert.Equal(t, status.PhaseIdle, c.State(pin.ID).Phase)

	ch, err := c.Request(context.Background(), pin.ID)
	require.NoError(t, err)

	res := wait(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, status.CodeComplete, res.Status)
	assert.Equal(t, 3, res.Stored)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 1, res.Page)

	loading := nextState(t, sub)
	assert.Equal(t, status.PhaseLoading, loading.Phase)
	assert.Equal(t, status.CodeLoading, loading.Status)
	require.NotNil(t, loading.LastAttempt)

	idle := nextState(t, sub)
	assert.Equal(t, status.PhaseIdle, idle.Phase)
	assert.Equal(t, status.CodeComplete, idle.Status)
	assert.Equal(t, 3, idle.Stored)
	require.NotNil(t, idle.LastCompleted)

	noMoreStates(t, sub)
}

func TestRequestOutcomes(t *testing.T) {
	t.Parallel()

	storageErr := &store.StorageError{Op: "add photo", Err: errors.New("disk full")}

	tests := []struct {
		name        string
		fetch       fetchFunc
		addErr      error
		wantStatus  status.Code
		wantStored  int
		wantSkipped int
		wantErr     bool
		wantMessage string
	}{
		{
			name:        "one download skipped",
			fetch:       serve(fetcher.Summary{Requested: 3, Skipped: 1}, items("u1", "u3")),
			wantStatus:  status.CodePartial,
			wantStored:  2,
			wantSkipped: 1,
			wantMessage: "1 of 3 photos could not be downloaded",
		},
		{
			name:        "provider returned nothing",
			fetch:       serve(fetcher.Summary{}, nil),
			wantStatus:  status.CodeEmpty,
			wantMessage: status.CodeEmpty.Message(),
		},
		{
			name: "provider failed",
			fetch: func(_ context.Context, _ store.Coordinate, n int, _ fetcher.Handler) (fetcher.Summary, error) {
				return fetcher.Summary{Page: n}, &provider.ProviderError{Page: n, Code: 100, Message: "Invalid API Key"}
			},
			wantStatus:  status.CodeProviderError,
			wantErr:     true,
			wantMessage: status.CodeProviderError.Message(),
		},
		{
			name:        "store failed",
			fetch:       serve(fetcher.Summary{Requested: 2}, items("u1", "u2")),
			addErr:      storageErr,
			wantStatus:  status.CodeStorageError,
			wantErr:     true,
			wantMessage: status.CodeStorageError.Message(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			pin := newPin()

			st := storemocks.NewMockStore(ctrl)
			st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)
			st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).Return(uuid.New(), tt.addErr).AnyTimes()

			f := syncmocks.NewMockPageFetcher(ctrl)
			f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).DoAndReturn(tt.fetch)

			c := pinsync.New(st, f)
			defer c.Stop()

			ch, err := c.Request(context.Background(), pin.ID)
			require.NoError(t, err)
			res := wait(t, ch)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantStored, res.Stored)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
			if tt.wantErr {
				assert.Error(t, res.Err)
			} else {
				assert.NoError(t, res.Err)
			}

			state := c.State(pin.ID)
			assert.Equal(t, status.PhaseIdle, state.Phase)
			assert.Equal(t, tt.wantStatus, state.Status)
			assert.Equal(t, tt.wantMessage, state.Message)
			assert.Equal(t, tt.wantSkipped, state.Skipped)
			assert.Equal(t, 1, state.Page)
			if tt.wantStatus.Failed() {
				assert.Nil(t, state.LastCompleted)
			}
		})
	}
}

func TestRequestStorageErrorIsReturned(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	storageErr := &store.StorageError{Op: "add photo", Err: errors.New("disk full")}
	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)
	gomock.InOrder(
		st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).Return(uuid.New(), nil),
		st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).Return(uuid.Nil, storageErr),
	)

	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(serve(fetcher.Summary{Requested: 3}, items("u1", "u2", "u3")))

	c := pinsync.New(st, f)
	defer c.Stop()

	ch, err := c.Request(context.Background(), pin.ID)
	require.NoError(t, err)
	res := wait(t, ch)

	var got *store.StorageError
	require.ErrorAs(t, res.Err, &got)
	assert.Equal(t, 1, res.Stored, "photos stored before the failure are kept")
	assert.Equal(t, status.CodeStorageError, res.Status)
}

func TestRequestRejectedWhileLoading(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil).AnyTimes()
	st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).Return(uuid.New(), nil).Times(1)
	st.EXPECT().CountPhotos(gomock.Any(), pin.ID).Return(0, nil)

	release := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).
		DoAndReturn(func(ctx context.Context, c store.Coordinate, n int, h fetcher.Handler) (fetcher.Summary, error) {
			<-release
			return serve(fetcher.Summary{Requested: 1}, items("u1"))(ctx, c, n, h)
		}).Times(1)

	c := pinsync.New(st, f)
	defer c.Stop()

	ch, err := c.Request(context.Background(), pin.ID)
	require.NoError(t, err)
	require.True(t, c.State(pin.ID).Loading())

	_, err = c.Request(context.Background(), pin.ID)
	require.ErrorIs(t, err, pinsync.ErrSyncInProgress)

	_, err = c.AdvancePage(context.Background(), pin.ID)
	require.ErrorIs(t, err, pinsync.ErrSyncInProgress)
	assert.Equal(t, 1, c.State(pin.ID).Page, "rejected advance must not move the cursor")

	_, started, err := c.Bootstrap(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.False(t, started)

	close(release)
	res := wait(t, ch)
	assert.Equal(t, status.CodeComplete, res.Status)
	assert.Equal(t, 1, res.Stored)
	assert.False(t, c.State(pin.ID).Loading())
}

func TestAdvancePage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil).AnyTimes()

	f := syncmocks.NewMockPageFetcher(ctrl)
	summary := fetcher.Summary{Pages: 3}
	gomock.InOrder(
		f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).DoAndReturn(serve(summary, nil)),
		f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 2, gomock.Any()).DoAndReturn(serve(summary, nil)),
		f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 3, gomock.Any()).DoAndReturn(serve(summary, nil)),
		f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).DoAndReturn(serve(summary, nil)),
	)

	c := pinsync.New(st, f)
	defer c.Stop()

	ctx := context.Background()
	ch, err := c.Request(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, wait(t, ch).Page)

	for _, want := range []int{2, 3, 1} {
		ch, err := c.AdvancePage(ctx, pin.ID)
		require.NoError(t, err)
		assert.Equal(t, want, wait(t, ch).Page)
		assert.Equal(t, want, c.State(pin.ID).Page)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)

	started := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), 1, gomock.Any()).DoAndReturn(blockUntilCancelled(started))

	c := pinsync.New(st, f)
	defer c.Stop()

	assert.False(t, c.Cancel(pin.ID), "nothing to cancel yet")

	// The fetch must not depend on the caller's context
	reqCtx, reqCancel := context.WithCancel(context.Background())
	ch, err := c.Request(reqCtx, pin.ID)
	require.NoError(t, err)
	reqCancel()
	<-started

	assert.True(t, c.Cancel(pin.ID))
	res := wait(t, ch)
	assert.Equal(t, status.CodeCancelled, res.Status)
	require.ErrorIs(t, res.Err, context.Canceled)

	state := c.State(pin.ID)
	assert.Equal(t, status.PhaseIdle, state.Phase)
	assert.Equal(t, status.CodeCancelled, state.Status)
	assert.False(t, c.Cancel(pin.ID))
}

func TestForgetDuringFetch(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)

	started := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(blockUntilCancelled(started))

	c := pinsync.New(st, f)
	defer c.Stop()

	ch, err := c.Request(context.Background(), pin.ID)
	require.NoError(t, err)
	<-started

	c.Forget(pin.ID)
	res := wait(t, ch)
	assert.Equal(t, status.CodeCancelled, res.Status)

	state := c.State(pin.ID)
	assert.Equal(t, status.CodeIdle, state.Status, "forgotten pins start over")
	assert.Equal(t, 1, state.Page)
}

func TestRequestUnknownPin(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pinID := uuid.New()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pinID).Return(nil, store.ErrPinNotFound).Times(2)

	c := pinsync.New(st, syncmocks.NewMockPageFetcher(ctrl))
	defer c.Stop()

	_, err := c.Request(context.Background(), pinID)
	require.ErrorIs(t, err, store.ErrPinNotFound)
	_, err = c.AdvancePage(context.Background(), pinID)
	require.ErrorIs(t, err, store.ErrPinNotFound)
	assert.Equal(t, 1, c.State(pinID).Page)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("empty pin fetches page one", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		pin := newPin()

		st := storemocks.NewMockStore(ctrl)
		st.EXPECT().CountPhotos(gomock.Any(), pin.ID).Return(0, nil)
		st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil)
		st.EXPECT().AddPhoto(gomock.Any(), pin.ID, gomock.Any()).Return(uuid.New(), nil).Times(2)

		f := syncmocks.NewMockPageFetcher(ctrl)
		f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).
			DoAndReturn(serve(fetcher.Summary{Requested: 2}, items("u1", "u2")))

		c := pinsync.New(st, f)
		defer c.Stop()

		ch, started, err := c.Bootstrap(context.Background(), pin.ID)
		require.NoError(t, err)
		require.True(t, started)
		assert.Equal(t, 2, wait(t, ch).Stored)
	})

	t.Run("pin with photos is left alone", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		pin := newPin()

		st := storemocks.NewMockStore(ctrl)
		st.EXPECT().CountPhotos(gomock.Any(), pin.ID).Return(4, nil)

		c := pinsync.New(st, syncmocks.NewMockPageFetcher(ctrl))
		defer c.Stop()

		ch, started, err := c.Bootstrap(context.Background(), pin.ID)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Nil(t, ch)
	})

	t.Run("unknown pin", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		pinID := uuid.New()

		st := storemocks.NewMockStore(ctrl)
		st.EXPECT().CountPhotos(gomock.Any(), pinID).Return(0, store.ErrPinNotFound)

		c := pinsync.New(st, syncmocks.NewMockPageFetcher(ctrl))
		defer c.Stop()

		_, _, err := c.Bootstrap(context.Background(), pinID)
		require.ErrorIs(t, err, store.ErrPinNotFound)
	})
}

func TestBootstrapAll(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	empty, full := newPin(), newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().ListPins(gomock.Any()).Return([]*store.Pin{empty, full}, nil)
	st.EXPECT().CountPhotos(gomock.Any(), empty.ID).Return(0, nil)
	st.EXPECT().CountPhotos(gomock.Any(), full.ID).Return(7, nil)
	st.EXPECT().GetPin(gomock.Any(), empty.ID).Return(empty, nil)

	done := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), empty.Coordinate, 1, gomock.Any()).
		DoAndReturn(func(ctx context.Context, c store.Coordinate, n int, h fetcher.Handler) (fetcher.Summary, error) {
			defer close(done)
			return serve(fetcher.Summary{}, nil)(ctx, c, n, h)
		})

	c := pinsync.New(st, f)
	defer c.Stop()

	n, err := c.BootstrapAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	<-done
}

func TestStop(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pin := newPin()

	st := storemocks.NewMockStore(ctrl)
	st.EXPECT().GetPin(gomock.Any(), pin.ID).Return(pin, nil).Times(2)

	started := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(blockUntilCancelled(started))

	c := pinsync.New(st, f)

	ch, err := c.Request(context.Background(), pin.ID)
	require.NoError(t, err)
	<-started

	c.Stop()
	assert.Equal(t, status.CodeCancelled, wait(t, ch).Status)

	_, err = c.Request(context.Background(), pin.ID)
	require.ErrorIs(t, err, pinsync.ErrStopped)
}

// TestSyncScenario runs a page through the in-memory store and projects the
// resulting change batches onto a grid.
func TestSyncScenario(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	bus := changes.NewBus[changes.Batch]()
	defer bus.Close()
	st, err := inmemory.New(inmemory.WithBus(bus))
	require.NoError(t, err)

	pin, err := st.CreatePin(ctx, store.Coordinate{Latitude: 40.0, Longitude: -74.0})
	require.NoError(t, err)
	other, err := st.CreatePin(ctx, store.Coordinate{Latitude: 51.5, Longitude: -0.12})
	require.NoError(t, err)

	batches := bus.Subscribe(pin.ID)
	defer batches.Close()

	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), pin.Coordinate, 1, gomock.Any()).
		DoAndReturn(serve(fetcher.Summary{Requested: 3}, items("u1", "u2", "u3")))

	c := pinsync.New(st, f)
	defer c.Stop()

	states := c.Subscribe(pin.ID)
	defer states.Close()

	ch, started, err := c.Bootstrap(ctx, pin.ID)
	require.NoError(t, err)
	require.True(t, started)
	res := wait(t, ch)
	require.Equal(t, status.CodeComplete, res.Status)

	assert.Equal(t, status.PhaseLoading, nextState(t, states).Phase)
	assert.Equal(t, status.PhaseIdle, nextState(t, states).Phase)
	noMoreStates(t, states)

	photos, err := st.ListPhotos(ctx, pin.ID)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	for _, p := range photos {
		assert.Equal(t, pin.ID, p.PinID)
	}

	otherPhotos, err := st.ListPhotos(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, otherPhotos)

	grid := changes.Grid{PinID: pin.ID}
	inserts := 0
	for range 3 {
		select {
		case b := <-batches.C():
			ins, err := changes.Project(b)
			require.NoError(t, err)
			for _, in := range ins {
				if in.Op == changes.OpInsert {
					inserts++
				}
			}
			require.NoError(t, grid.Apply(ins))
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for change batch")
		}
	}
	assert.Equal(t, 3, inserts)
	assert.Equal(t, store.IDs(photos), grid.Cells)
}
