package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/pinphoto-server/internal/api/common"
	"github.com/stacklok/pinphoto-server/internal/service"
)

const defaultHeartbeat = 15 * time.Second

type streamConfig struct {
	heartbeat time.Duration
}

// Option configures the v1 routes
type Option func(*Routes)

// WithHeartbeat sets how often an idle event stream sends a keepalive comment
func WithHeartbeat(d time.Duration) Option {
	return func(routes *Routes) {
		if d > 0 {
			routes.stream.heartbeat = d
		}
	}
}

// streamEvents serves a pin's events as server-sent events until the client
// goes away or the stream ends
func (routes *Routes) streamEvents(w http.ResponseWriter, r *http.Request) {
	pinID, ok := pinParam(w, r)
	if !ok {
		return
	}

	stream, err := routes.service.Watch(r.Context(), pinID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	defer stream.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would end every stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("Response writer does not support write deadlines", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("Event stream requires a flushable response writer", "error", err)
		return
	}

	heartbeat := time.NewTicker(routes.stream.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("Event stream write failed", "pin_id", pinID, "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev service.Event) error {
	var data any
	switch ev.Kind {
	case service.EventSnapshot:
		data = SnapshotEvent{Photos: ev.Photos}
	case service.EventChanges:
		data = ChangesEvent{Instructions: ev.Instructions}
	case service.EventSync:
		data = ev.State
	case service.EventError:
		data = ErrorEvent{Error: ev.Err.Error(), Reload: true}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}
