package app

import (
	"github.com/stacklok/pinphoto-server/internal/app/storage"
	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/autosave"
	pinsync "github.com/stacklok/pinphoto-server/internal/sync"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Store holds pins and photos
	Store store.Store

	// Controller runs per-pin fetches
	Controller pinsync.Controller

	// PhotoService provides the business logic behind the API
	PhotoService service.PhotoService

	// Autosaver flushes the in-memory store; nil when not needed
	Autosaver autosave.Autosaver

	// Batches carries committed store mutations to event stream watchers
	Batches *changes.Bus[changes.Batch]

	// StorageFactory owns the store's resources
	StorageFactory storage.Factory
}
