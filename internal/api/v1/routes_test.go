package v1_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/stacklok/pinphoto-server/internal/api/v1"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/service/mocks"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
)

func newPin() *store.Pin {
	return &store.Pin{
		ID:         uuid.New(),
		Coordinate: store.Coordinate{Latitude: 40.0, Longitude: -74.0},
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func serve(t *testing.T, svc service.PhotoService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	v1.Router(svc).ServeHTTP(rr, req)
	return rr
}

func TestCreatePin(t *testing.T) {
	t.Parallel()
	pin := newPin()

	tests := []struct {
		name       string
		body       string
		setup      func(*mocks.MockPhotoService)
		wantStatus int
		wantError  string
	}{
		{
			name: "created",
			body: `{"latitude":40.0,"longitude":-74.0}`,
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().CreatePin(gomock.Any(), pin.Coordinate).
					Return(&service.PinDetail{Pin: pin, Sync: status.SyncState{PinID: pin.ID, Page: 1, Phase: status.PhaseLoading}}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing body",
			wantStatus: http.StatusBadRequest,
			wantError:  "request body is required",
		},
		{
			name:       "missing longitude",
			body:       `{"latitude":40.0}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "latitude and longitude are required",
		},
		{
			name:       "unknown field",
			body:       `{"latitude":1,"longitude":2,"name":"home"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too large",
			body:       `{"latitude":1,"longitude":2,"pad":"` + strings.Repeat("x", 70<<10) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "request body too large",
		},
		{
			name: "out of range",
			body: `{"latitude":91,"longitude":0}`,
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().CreatePin(gomock.Any(), store.Coordinate{Latitude: 91}).
					Return(nil, fmt.Errorf("%w: latitude 91", store.ErrInvalidCoordinate))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid coordinate: latitude 91",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockPhotoService(ctrl)
			if tt.setup != nil {
				tt.setup(svc)
			}

			rr := serve(t, svc, http.MethodPost, "/pins", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantStatus != http.StatusCreated {
				var resp map[string]string
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				if tt.wantError != "" {
					assert.Equal(t, tt.wantError, resp["error"])
				}
				return
			}

			assert.Equal(t, "/pins/"+pin.ID.String(), rr.Header().Get("Location"))
			var got map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, pin.ID.String(), got["id"])
			assert.Equal(t, 40.0, got["latitude"])
			assert.Equal(t, -74.0, got["longitude"])
			assert.Equal(t, "Loading", got["sync"].(map[string]any)["phase"])
		})
	}
}

func TestListPins(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	a, b := newPin(), newPin()

	svc := mocks.NewMockPhotoService(ctrl)
	svc.EXPECT().ListPins(gomock.Any()).Return([]*service.PinDetail{
		{Pin: a, PhotoCount: 3},
		{Pin: b},
	}, nil)

	rr := serve(t, svc, http.MethodGet, "/pins", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Pins []struct {
			ID         uuid.UUID `json:"id"`
			PhotoCount int       `json:"photoCount"`
		} `json:"pins"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, a.ID, resp.Pins[0].ID)
	assert.Equal(t, 3, resp.Pins[0].PhotoCount)
}

func TestPinRoutes(t *testing.T) {
	t.Parallel()
	pinID, photoID := uuid.New(), uuid.New()
	pinPath := "/pins/" + pinID.String()
	photoPath := pinPath + "/photos/" + photoID.String()

	loading := status.SyncState{PinID: pinID, Page: 2, Phase: status.PhaseLoading, Status: status.CodeLoading}

	tests := []struct {
		name       string
		method     string
		path       string
		setup      func(*mocks.MockPhotoService)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "get pin",
			method:     http.MethodGet,
			path:       pinPath,
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().GetPin(gomock.Any(), pinID).Return(&service.PinDetail{Pin: &store.Pin{ID: pinID}}, nil) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "get unknown pin",
			method:     http.MethodGet,
			path:       pinPath,
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().GetPin(gomock.Any(), pinID).Return(nil, store.ErrPinNotFound) },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"pin not found"}`,
		},
		{
			name:       "malformed pin id",
			method:     http.MethodGet,
			path:       "/pins/berlin",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"pinID is not a valid UUID"}`,
		},
		{
			name:       "delete pin",
			method:     http.MethodDelete,
			path:       pinPath,
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().DeletePin(gomock.Any(), pinID).Return(nil) },
			wantStatus: http.StatusNoContent,
		},
		{
			name:   "delete pin storage failure",
			method: http.MethodDelete,
			path:   pinPath,
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().DeletePin(gomock.Any(), pinID).Return(&store.StorageError{Op: "delete pin", Err: errors.New("disk")})
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"failed to delete pin"}`,
		},
		{
			name:   "list photos",
			method: http.MethodGet,
			path:   pinPath + "/photos",
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().ListPhotos(gomock.Any(), pinID).Return([]*store.Photo{{ID: photoID, PinID: pinID}}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "remove photo",
			method:     http.MethodDelete,
			path:       photoPath,
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().RemovePhoto(gomock.Any(), pinID, photoID).Return(nil) },
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "remove missing photo",
			method:     http.MethodDelete,
			path:       photoPath,
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().RemovePhoto(gomock.Any(), pinID, photoID).Return(store.ErrPhotoNotFound) },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"photo not found"}`,
		},
		{
			name:       "malformed photo id",
			method:     http.MethodDelete,
			path:       pinPath + "/photos/1",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"photoID is not a valid UUID"}`,
		},
		{
			name:       "get sync state",
			method:     http.MethodGet,
			path:       pinPath + "/sync",
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().SyncState(gomock.Any(), pinID).Return(loading, nil) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "request sync",
			method:     http.MethodPost,
			path:       pinPath + "/sync",
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().RequestSync(gomock.Any(), pinID).Return(loading, nil) },
			wantStatus: http.StatusAccepted,
		},
		{
			name:   "request sync while loading",
			method: http.MethodPost,
			path:   pinPath + "/sync",
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().RequestSync(gomock.Any(), pinID).Return(status.SyncState{}, pinsync.ErrSyncInProgress)
			},
			wantStatus: http.StatusConflict,
			wantBody:   `{"error":"sync already in progress"}`,
		},
		{
			name:       "advance page",
			method:     http.MethodPost,
			path:       pinPath + "/sync/next",
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().AdvancePage(gomock.Any(), pinID).Return(loading, nil) },
			wantStatus: http.StatusAccepted,
		},
		{
			name:   "advance page while loading",
			method: http.MethodPost,
			path:   pinPath + "/sync/next",
			setup: func(m *mocks.MockPhotoService) {
				m.EXPECT().AdvancePage(gomock.Any(), pinID).Return(status.SyncState{}, pinsync.ErrSyncInProgress)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "cancel sync",
			method:     http.MethodDelete,
			path:       pinPath + "/sync",
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().CancelSync(gomock.Any(), pinID).Return(nil) },
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "events for unknown pin",
			method:     http.MethodGet,
			path:       pinPath + "/events",
			setup:      func(m *mocks.MockPhotoService) { m.EXPECT().Watch(gomock.Any(), pinID).Return(nil, store.ErrPinNotFound) },
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockPhotoService(ctrl)
			if tt.setup != nil {
				tt.setup(svc)
			}

			rr := serve(t, svc, tt.method, tt.path, "")
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestSyncStateBody(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pinID := uuid.New()
	attempt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	svc := mocks.NewMockPhotoService(ctrl)
	svc.EXPECT().SyncState(gomock.Any(), pinID).Return(status.SyncState{
		PinID:       pinID,
		Page:        3,
		Phase:       status.PhaseIdle,
		Status:      status.CodePartial,
		Message:     "1 of 3 photos could not be downloaded",
		Stored:      2,
		Skipped:     1,
		LastAttempt: &attempt,
	}, nil)

	rr := serve(t, svc, http.MethodGet, "/pins/"+pinID.String()+"/sync", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, fmt.Sprintf(`{
		"pinId": %q,
		"page": 3,
		"phase": "Idle",
		"status": "partial",
		"message": "1 of 3 photos could not be downloaded",
		"stored": 2,
		"skipped": 1,
		"lastAttempt": "2025-06-01T12:00:00Z"
	}`, pinID), rr.Body.String())
}

func TestGetPhotoImage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	pinID, photoID := uuid.New(), uuid.New()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	svc := mocks.NewMockPhotoService(ctrl)
	svc.EXPECT().GetPhoto(gomock.Any(), pinID, photoID).
		Return(&store.Photo{ID: photoID, PinID: pinID, ContentType: "image/png", Image: png}, nil)

	rr := serve(t, svc, http.MethodGet, fmt.Sprintf("/pins/%s/photos/%s/image", pinID, photoID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "8", rr.Header().Get("Content-Length"))
	assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")
	assert.Equal(t, png, rr.Body.Bytes())
}
