// Package v1 provides the pin, photo and sync endpoints of the pinphoto API.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/api/common"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/store"
)

const maxRequestBodySize = 64 << 10

// Routes handles HTTP requests for the v1 endpoints
type Routes struct {
	service service.PhotoService
	stream  streamConfig
}

// NewRoutes creates a new Routes instance with the given service
func NewRoutes(svc service.PhotoService, opts ...Option) *Routes {
	routes := &Routes{
		service: svc,
		stream:  streamConfig{heartbeat: defaultHeartbeat},
	}
	for _, opt := range opts {
		opt(routes)
	}
	return routes
}

// Router creates and configures the HTTP router for the v1 endpoints
func Router(svc service.PhotoService, opts ...Option) http.Handler {
	routes := NewRoutes(svc, opts...)

	r := chi.NewRouter()

	r.Post("/pins", routes.createPin)
	r.Get("/pins", routes.listPins)
	r.Route("/pins/{pinID}", func(r chi.Router) {
		r.Get("/", routes.getPin)
		r.Delete("/", routes.deletePin)

		r.Get("/photos", routes.listPhotos)
		r.Get("/photos/{photoID}/image", routes.getPhotoImage)
		r.Delete("/photos/{photoID}", routes.removePhoto)

		r.Get("/sync", routes.getSync)
		r.Post("/sync", routes.requestSync)
		r.Post("/sync/next", routes.advancePage)
		r.Delete("/sync", routes.cancelSync)

		r.Get("/events", routes.streamEvents)
	})

	return r
}

func (routes *Routes) createPin(w http.ResponseWriter, r *http.Request) {
	var req CreatePinRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			common.WriteErrorResponse(w, "request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			common.WriteErrorResponse(w, "request body is required", http.StatusBadRequest)
		default:
			common.WriteErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		common.WriteErrorResponse(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}

	pin, err := routes.service.CreatePin(r.Context(), store.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude})
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+pin.ID.String())
	common.WriteJSONResponse(w, pin, http.StatusCreated)
}

func (routes *Routes) listPins(w http.ResponseWriter, r *http.Request) {
	pins, err := routes.service.ListPins(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, PinListResponse{Pins: pins, Count: len(pins)}, http.StatusOK)
}

func (routes *Routes) getPin(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	pin, err := routes.service.GetPin(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, pin, http.StatusOK)
}

func (routes *Routes) deletePin(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	if err := routes.service.DeletePin(r.Context(), pinID); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) listPhotos(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	photos, err := routes.service.ListPhotos(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, PhotoListResponse{Photos: photos, Count: len(photos)}, http.StatusOK)
}

func (routes *Routes) getPhotoImage(w http.ResponseWriter, r *http.Request) {
	pinID, photoID, ok := photoParams(w, r)
	if !ok {
		return
	}
	photo, err := routes.service.GetPhoto(r.Context(), pinID, photoID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}

	// Photos never change once stored
	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Image)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(photo.Image); err != nil {
		slog.Debug("Failed to write photo image", "photo_id", photoID, "error", err)
	}
}

func (routes *Routes) removePhoto(w http.ResponseWriter, r *http.Request) {
	pinID, photoID, ok := photoParams(w, r)
	if !ok {
		return
	}
	if err := routes.service.RemovePhoto(r.Context(), pinID, photoID); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) getSync(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	state, err := routes.service.SyncState(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, state, http.StatusOK)
}

func (routes *Routes) requestSync(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	state, err := routes.service.RequestSync(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, state, http.StatusAccepted)
}

func (routes *Routes) advancePage(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	state, err := routes.service.AdvancePage(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, state, http.StatusAccepted)
}

func (routes *Routes) cancelSync(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}
	if err := routes.service.CancelSync(r.Context(), pinID); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pinParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := common.GetUUIDParam(r, "pinID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func photoParams(w http.ResponseWriter, r *http.Request) (pinID, photoID uuid.UUID, ok bool) {
	if pinID, ok = pinParam(w, r); !ok {
		return pinID, photoID, false
	}
	id, err := common.GetUUIDParam(r, "photoID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return pinID, id, false
	}
	return pinID, id, true
}
