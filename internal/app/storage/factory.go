// Package storage creates the photo store selected by configuration together
// with whatever background persistence that store needs.
package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/autosave"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates the store backend and its companions.
//
// CreateStore is called once. CreateAutosaver is called after CreateStore and
// returns nil when the backend persists every mutation itself.
type Factory interface {
	// CreateStore creates the store. Every committed mutation is published to bus.
	CreateStore(ctx context.Context, bus *changes.Bus[changes.Batch]) (store.Store, error)

	// CreateAutosaver returns the periodic flusher for the store, or nil
	CreateAutosaver(ctx context.Context) (autosave.Autosaver, error)

	// Cleanup releases the resources held by the store.
	// Should be called after the last write.
	Cleanup()
}

// Option configures the factory returned by NewStorageFactory
type Option func(*factoryOptions)

type factoryOptions struct {
	tracer trace.Tracer
}

// WithTracer enables query spans on database storage
func WithTracer(tracer trace.Tracer) Option {
	return func(o *factoryOptions) {
		o.tracer = tracer
	}
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...Option) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	o := &factoryOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Storage.GetType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg, o.tracer)
	case config.StorageTypeMemory:
		return NewMemoryFactory(cfg), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.GetType())
	}
}
