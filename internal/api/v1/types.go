package v1

import (
	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// CreatePinRequest is the body of POST /v1/pins
type CreatePinRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PinListResponse is the body of GET /v1/pins
type PinListResponse struct {
	Pins  []*service.PinDetail `json:"pins"`
	Count int                  `json:"count"`
}

// PhotoListResponse is the body of GET /v1/pins/{pinID}/photos
type PhotoListResponse struct {
	Photos []*store.Photo `json:"photos"`
	Count  int            `json:"count"`
}

// SnapshotEvent is the data of the first event of a pin stream
type SnapshotEvent struct {
	Photos []*store.Photo `json:"photos"`
}

// ChangesEvent is the data of a changes event. Instructions are applied in order.
type ChangesEvent struct {
	Instructions []changes.Instruction `json:"instructions"`
}

// ErrorEvent is the data of the final event of a stream that lost consistency
type ErrorEvent struct {
	Error  string `json:"error"`
	Reload bool   `json:"reload"`
}
