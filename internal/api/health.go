package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/pinphoto-server/internal/api/common"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/versions"
)

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.PhotoService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, StatusResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports 503 until the store answers
func readinessHandler(svc service.PhotoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "service not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, StatusResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
