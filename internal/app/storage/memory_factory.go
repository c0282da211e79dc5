package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/autosave"
	"github.com/stacklok/pinphoto-server/internal/store/inmemory"
)

// MemoryFactory creates the in-memory store, persisted to a snapshot file
// when one is configured.
type MemoryFactory struct {
	config *config.Config
	store  *inmemory.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a new in-memory storage factory
func NewMemoryFactory(cfg *config.Config) *MemoryFactory {
	slog.Info("Creating in-memory storage factory", "snapshot", cfg.Storage.SnapshotPath)
	return &MemoryFactory{config: cfg}
}

// CreateStore opens the snapshot, if any, and restores its contents
func (m *MemoryFactory) CreateStore(_ context.Context, bus *changes.Bus[changes.Batch]) (store.Store, error) {
	if m.store != nil {
		return nil, fmt.Errorf("store already created")
	}

	st, err := inmemory.New(
		inmemory.WithBus(bus),
		inmemory.WithSnapshot(m.config.Storage.SnapshotPath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	m.store = st
	return st, nil
}

// CreateAutosaver returns nil when no snapshot is configured
func (m *MemoryFactory) CreateAutosaver(_ context.Context) (autosave.Autosaver, error) {
	if m.store == nil {
		return nil, fmt.Errorf("store has not been created")
	}
	if m.config.Storage.SnapshotPath == "" {
		slog.Info("No snapshot configured, pins and photos are kept in memory only")
		return nil, nil
	}
	return autosave.New(m.store, m.config.Storage.GetAutosaveInterval()), nil
}

// Cleanup releases the snapshot lock
func (m *MemoryFactory) Cleanup() {
	if m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		slog.Error("Failed to close snapshot", "error", err)
	}
}
