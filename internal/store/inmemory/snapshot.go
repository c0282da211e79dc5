package inmemory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/versions"
)

// ErrSnapshotLocked is returned when another process holds the snapshot lock
var ErrSnapshotLocked = errors.New("snapshot is locked by another process")

const snapshotVersion = 1

type snapshotData struct {
	Pins   []*store.Pin
	Photos []*store.Photo
}

// snapshotFile is the on-disk form of the store, held under an exclusive file lock
type snapshotFile struct {
	path string
	lock *flock.Flock
}

type fileFormat struct {
	Version int           `json:"version"`
	Writer  string        `json:"writer,omitempty"`
	SavedAt time.Time     `json:"savedAt"`
	Pins    []*store.Pin  `json:"pins"`
	Photos  []photoRecord `json:"photos"`
}

// photoRecord keeps the image bytes that the API representation omits
type photoRecord struct {
	ID          uuid.UUID `json:"id"`
	PinID       uuid.UUID `json:"pinId"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
	Image       []byte    `json:"image"`
}

func openSnapshot(path string) (*snapshotFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock snapshot %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotLocked, path)
	}
	return &snapshotFile{path: path, lock: lock}, nil
}

// Load returns nil data when the snapshot does not exist yet
func (f *snapshotFile) Load() (*snapshotData, error) {
	// #nosec G304 -- path comes from operator configuration
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if ff.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", ff.Version)
	}
	if versions.IsNewer(ff.Writer, versions.Version) {
		slog.Warn("Snapshot was written by a newer server", "path", f.path, "writer", ff.Writer, "version", versions.Version)
	}

	data := &snapshotData{Pins: ff.Pins, Photos: make([]*store.Photo, 0, len(ff.Photos))}
	for _, r := range ff.Photos {
		data.Photos = append(data.Photos, &store.Photo{
			ID:          r.ID,
			PinID:       r.PinID,
			URL:         r.URL,
			ContentType: r.ContentType,
			Size:        len(r.Image),
			CreatedAt:   r.CreatedAt,
			Image:       r.Image,
		})
	}
	return data, nil
}

// Save writes the snapshot through a temporary file and an atomic rename
func (f *snapshotFile) Save(data *snapshotData) error {
	ff := fileFormat{
		Version: snapshotVersion,
		Writer:  versions.Version,
		SavedAt: time.Now().UTC(),
		Pins:    data.Pins,
		Photos:  make([]photoRecord, 0, len(data.Photos)),
	}
	for _, p := range data.Photos {
		ff.Photos = append(ff.Photos, photoRecord{
			ID:          p.ID,
			PinID:       p.PinID,
			URL:         p.URL,
			ContentType: p.ContentType,
			CreatedAt:   p.CreatedAt,
			Image:       p.Image,
		})
	}

	raw, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

func (f *snapshotFile) Close() error {
	return f.lock.Unlock()
}
