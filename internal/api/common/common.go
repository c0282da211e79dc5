package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stacklok/pinphoto-server/internal/store"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteServiceError maps a service error to its status code. Errors that are
// not a client's fault are logged and reported with a generic message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *store.StorageError
	switch {
	case errors.Is(err, store.ErrPinNotFound):
		WriteErrorResponse(w, "pin not found", http.StatusNotFound)
	case errors.Is(err, store.ErrPhotoNotFound):
		WriteErrorResponse(w, "photo not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidCoordinate):
		WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pinsync.ErrSyncInProgress):
		WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pinsync.ErrStopped):
		WriteErrorResponse(w, "server is shutting down", http.StatusServiceUnavailable)
	case errors.As(err, &storageErr):
		slog.Error("Storage failure", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteErrorResponse(w, "failed to "+storageErr.Op, http.StatusInternalServerError)
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}
