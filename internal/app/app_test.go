package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	storagemocks "github.com/stacklok/pinphoto-server/internal/app/storage/mocks"
	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/fetcher"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/inmemory"
	syncmocks "github.com/stacklok/pinphoto-server/internal/sync/mocks"
)

// emptyPages answers every fetch with a page that has no photos
func emptyPages(ctrl *gomock.Controller) *syncmocks.MockPageFetcher {
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fetcher.Summary{Page: 1, Pages: 1}, nil).AnyTimes()
	return f
}

func TestPinPhotoApp_StartStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
	}{
		{name: "ephemeral port", addr: ":0"},
		{name: "localhost", addr: "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			app, err := NewPinPhotoApp(context.Background(),
				WithConfig(&config.Config{}),
				WithAddress(tt.addr),
				WithPageFetcher(emptyPages(ctrl)),
			)
			require.NoError(t, err)
			assert.NotNil(t, app.GetConfig())
			assert.Equal(t, tt.addr, app.GetHTTPServer().Addr)

			errChan := make(chan error, 1)
			go func() {
				errChan <- app.Start()
			}()

			// Wait for the listener
			time.Sleep(100 * time.Millisecond)

			require.NoError(t, app.Stop(5*time.Second))

			select {
			case startErr := <-errChan:
				require.NoError(t, startErr)
			case <-time.After(5 * time.Second):
				t.Fatal("Start() did not return after Stop()")
			}
		})
	}
}

func TestPinPhotoApp_BootstrapsStoredPinsOnStart(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	var pin *store.Pin
	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().CreateStore(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, bus *changes.Bus[changes.Batch]) (store.Store, error) {
			st, err := inmemory.New(inmemory.WithBus(bus))
			if err != nil {
				return nil, err
			}
			pin, err = st.CreatePin(ctx, store.Coordinate{Latitude: 35.68, Longitude: 139.69})
			return st, err
		})
	factory.EXPECT().CreateAutosaver(gomock.Any()).Return(nil, nil)
	factory.EXPECT().Cleanup()

	fetched := make(chan struct{})
	f := syncmocks.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, coord store.Coordinate, page int, handle fetcher.Handler) (fetcher.Summary, error) {
			assert.Equal(t, pin.Coordinate, coord)
			defer close(fetched)
			if err := handle(fetcher.Item{URL: "https://example.com/1.jpg", ContentType: "image/jpeg", Image: []byte{0xff, 0xd8}}); err != nil {
				return fetcher.Summary{}, err
			}
			return fetcher.Summary{Page: page, Pages: 1, Requested: 1, Downloaded: 1}, nil
		})

	app, err := NewPinPhotoApp(ctx,
		WithConfig(&config.Config{}),
		WithAddress("127.0.0.1:0"),
		WithStorageFactory(factory),
		WithPageFetcher(f),
	)
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case <-fetched:
	case <-time.After(5 * time.Second):
		t.Fatal("stored pin was not bootstrapped")
	}
	require.Eventually(t, func() bool {
		n, err := app.components.Store.CountPhotos(ctx, pin.ID)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, <-errChan)
}

func TestPinPhotoApp_StopFlushesSnapshot(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	snapshot := filepath.Join(t.TempDir(), "photos.json")
	cfg := &config.Config{Storage: config.StorageConfig{
		SnapshotPath:     snapshot,
		AutosaveInterval: "1h",
	}}

	app, err := NewPinPhotoApp(ctx, WithConfig(cfg), WithPageFetcher(emptyPages(ctrl)))
	require.NoError(t, err)
	require.NotNil(t, app.components.Autosaver)

	detail, err := app.components.PhotoService.CreatePin(ctx, store.Coordinate{Latitude: -33.87, Longitude: 151.21})
	require.NoError(t, err)

	require.NoError(t, app.Stop(5*time.Second))

	// The snapshot lock is released, so a new store can load it
	reopened, err := inmemory.New(inmemory.WithSnapshot(snapshot))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetPin(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, detail.Coordinate, got.Coordinate)
}
