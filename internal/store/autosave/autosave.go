// Package autosave periodically flushes a buffered store to durable storage.
package autosave

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacklok/pinphoto-server/internal/store"
)

// Autosaver flushes a store on a fixed schedule
type Autosaver interface {
	// Start runs the flush loop until the context is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop ends the loop, if running, and performs a final flush
	Stop() error
}

type defaultAutosaver struct {
	flusher  store.Flusher
	interval time.Duration

	cancelFunc context.CancelFunc
	started    chan struct{}
	done       chan struct{}

	flushes    int
	lastErr    error
	onFlushErr func(error)
}

// Option configures the autosaver
type Option func(*defaultAutosaver)

// WithErrorHandler is called for every failed flush, in addition to logging
func WithErrorHandler(fn func(error)) Option {
	return func(a *defaultAutosaver) {
		a.onFlushErr = fn
	}
}

// New creates an autosaver. The interval must be positive; callers resolve
// configuration fallbacks before calling New.
func New(flusher store.Flusher, interval time.Duration, opts ...Option) Autosaver {
	a := &defaultAutosaver{
		flusher:  flusher,
		interval: interval,
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *defaultAutosaver) Start(ctx context.Context) error {
	slog.Info("Starting autosave", "interval", a.interval)

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel
	close(a.started)
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flushIfDirty(loopCtx)
		case <-loopCtx.Done():
			// Final flush must not be cut short by the cancelled loop context.
			a.flushIfDirty(context.WithoutCancel(loopCtx))
			slog.Info("Autosave stopped", "flushes", a.flushes)
			return nil
		}
	}
}

func (a *defaultAutosaver) Stop() error {
	select {
	case <-a.started:
	default:
		// Never started: flush what was written in the meantime
		a.flushIfDirty(context.Background())
		return a.lastErr
	}
	a.cancelFunc()
	<-a.done
	return a.lastErr
}

func (a *defaultAutosaver) flushIfDirty(ctx context.Context) {
	if !a.flusher.Dirty() {
		return
	}
	if err := a.flusher.Flush(ctx); err != nil {
		a.lastErr = err
		slog.Error("Autosave failed", "error", err)
		if a.onFlushErr != nil {
			a.onFlushErr(err)
		}
		return
	}
	a.lastErr = nil
	a.flushes++
	slog.Debug("Autosave flushed store")
}
