package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// EventKind names the events of a pin stream
type EventKind string

const (
	// EventSnapshot carries the pin's ordered photo list. It is always the first event.
	EventSnapshot EventKind = "snapshot"

	// EventChanges carries the instructions of one committed mutation cycle
	EventChanges EventKind = "changes"

	// EventSync carries a sync state transition
	EventSync EventKind = "sync"

	// EventError is the last event of a stream whose view can no longer be
	// kept consistent. Clients should reload.
	EventError EventKind = "error"
)

// Event is one message of a pin stream
type Event struct {
	Kind         EventKind
	Photos       []*store.Photo
	Instructions []changes.Instruction
	State        status.SyncState
	Err          error
}

// Stream delivers the events of one pin. Events is closed when the stream ends.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the event channel
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Close stops the stream and waits for it to release its subscriptions
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

func (s *photoService) Watch(ctx context.Context, pinID uuid.UUID) (*Stream, error) {
	if _, err := s.store.GetPin(ctx, pinID); err != nil {
		return nil, err
	}

	// Subscribe before reading the snapshot so no cycle falls in between
	batches := s.batches.Subscribe(pinID)
	states := s.controller.Subscribe(pinID)

	photos, err := s.store.ListPhotos(ctx, pinID)
	if err != nil {
		batches.Close()
		states.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stream := &Stream{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w := &watcher{
		pinID:   pinID,
		batches: batches,
		states:  states,
		grid:    changes.Grid{PinID: pinID, Cells: store.IDs(photos)},
		out:     stream.events,
	}

	initial := []Event{
		{Kind: EventSnapshot, Photos: photos},
		{Kind: EventSync, State: s.controller.State(pinID)},
	}
	go func() {
		defer close(stream.done)
		defer close(stream.events)
		defer batches.Close()
		defer states.Close()
		w.run(ctx, initial)
	}()

	if results, started, err := s.controller.Bootstrap(ctx, pinID); err != nil {
		slog.Warn("Failed to start first fetch for watched pin", "pin_id", pinID, "error", err)
	} else if started {
		go s.await(results)
	}
	return stream, nil
}

type watcher struct {
	pinID   uuid.UUID
	batches *changes.Subscription[changes.Batch]
	states  *changes.Subscription[status.SyncState]
	grid    changes.Grid
	synced  bool
	out     chan<- Event
}

func (w *watcher) run(ctx context.Context, initial []Event) {
	for _, ev := range initial {
		if !w.send(ctx, ev) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-w.batches.C():
			if !ok {
				return
			}
			ins, skip, err := w.apply(b)
			if err != nil {
				slog.Error("Photo stream lost consistency", "pin_id", w.pinID, "error", err)
				w.send(ctx, Event{Kind: EventError, Err: err})
				return
			}
			if skip {
				continue
			}
			if !w.send(ctx, Event{Kind: EventChanges, Instructions: ins}) {
				return
			}
		case st, ok := <-w.states.C():
			if !ok {
				return
			}
			if !w.send(ctx, Event{Kind: EventSync, State: st}) {
				return
			}
		}
	}
}

// apply projects b onto the client's view. Cycles committed before the
// snapshot was read are skipped until one continues from the snapshot.
func (w *watcher) apply(b changes.Batch) ([]changes.Instruction, bool, error) {
	if !w.synced && !slices.Equal(b.Before, w.grid.Cells) {
		return nil, true, nil
	}
	w.synced = true

	ins, err := changes.Project(b)
	if err != nil {
		return nil, false, err
	}
	if err := w.grid.Apply(ins); err != nil {
		return nil, false, err
	}
	if !slices.Equal(w.grid.Cells, b.After) {
		return nil, false, &changes.InvariantError{
			PinID:  w.pinID,
			Reason: fmt.Sprintf("view of %d photos diverged from the store's %d", len(w.grid.Cells), len(b.After)),
		}
	}
	return ins, false, nil
}

func (w *watcher) send(ctx context.Context, ev Event) bool {
	select {
	case w.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
