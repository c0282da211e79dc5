// Package sync drives page fetches for pins.
//
// Each pin has a small state machine with two phases, Idle and Loading. A
// request moves an Idle pin to Loading, runs one page fetch in the background,
// stores every downloaded photo and returns the pin to Idle with a status code.
// A request for a pin that is already Loading is rejected with
// ErrSyncInProgress, so at most one fetch writes photos for a pin at a time.
//
// Sync state is transient. It lives in memory and is published on a
// changes.Bus so that clients can follow the loading flag and status text.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/fetcher"
	"github.com/stacklok/pinphoto-server/internal/otel"
	"github.com/stacklok/pinphoto-server/internal/provider"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/telemetry"
)

var (
	// ErrSyncInProgress is returned when a pin already has a fetch in flight
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrStopped is returned for requests made after Stop
	ErrStopped = errors.New("sync controller stopped")
)

// PageFetcher fetches one page of photos for a coordinate
//
//go:generate mockgen -destination=mocks/mock_sync.go -package=mocks github.com/stacklok/pinphoto-server/internal/sync PageFetcher,Controller
type PageFetcher interface {
	FetchPage(ctx context.Context, coord store.Coordinate, page int, handle fetcher.Handler) (fetcher.Summary, error)
}

// Result is the outcome of one accepted request
type Result struct {
	PinID   uuid.UUID
	Page    int
	Pages   int
	Status  status.Code
	Stored  int
	Skipped int
	Err     error
}

// Controller owns the sync state of every pin
type Controller interface {
	// Request fetches the pin's current page. The channel receives exactly one Result.
	Request(ctx context.Context, pinID uuid.UUID) (<-chan Result, error)

	// AdvancePage moves the cursor to the next page and requests it. The cursor
	// is left unchanged when the request is rejected.
	AdvancePage(ctx context.Context, pinID uuid.UUID) (<-chan Result, error)

	// Bootstrap requests page 1 when the pin has no stored photos. The bool
	// reports whether a fetch was started.
	Bootstrap(ctx context.Context, pinID uuid.UUID) (<-chan Result, bool, error)

	// BootstrapAll bootstraps every pin and returns the number of fetches started
	BootstrapAll(ctx context.Context) (int, error)

	// Cancel stops the pin's in-flight fetch and reports whether there was one
	Cancel(pinID uuid.UUID) bool

	// State returns the pin's current sync state
	State(pinID uuid.UUID) status.SyncState

	// Subscribe follows the pin's state transitions. Callers must Close the subscription.
	Subscribe(pinID uuid.UUID) *changes.Subscription[status.SyncState]

	// Forget cancels any fetch and drops the pin's state
	Forget(pinID uuid.UUID)

	// Stop cancels all fetches and waits for them to finish
	Stop()
}

type pinState struct {
	state  status.SyncState
	pages  int
	gen    uint64
	cancel context.CancelFunc
}

type defaultController struct {
	store   store.Store
	fetcher PageFetcher
	states  *changes.Bus[status.SyncState]
	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
	now     func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	pins    map[uuid.UUID]*pinState
	seq     uint64
	stopped bool
}

// Option configures the controller
type Option func(*defaultController)

// WithSyncMetrics records fetch durations and counts
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultController) {
		c.metrics = metrics
	}
}

// WithTracer enables spans for fetches
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultController) {
		c.tracer = tracer
	}
}

// WithStateBus publishes state transitions on bus instead of a private one
func WithStateBus(bus *changes.Bus[status.SyncState]) Option {
	return func(c *defaultController) {
		c.states = bus
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *defaultController) {
		c.now = now
	}
}

// New creates a controller. Fetches run until Stop or Cancel.
func New(st store.Store, f PageFetcher, opts ...Option) Controller {
	c := &defaultController{
		store:   st,
		fetcher: f,
		now:     time.Now,
		pins:    make(map[uuid.UUID]*pinState),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.states == nil {
		c.states = changes.NewBus[status.SyncState]()
	}
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	return c
}

func (c *defaultController) Request(ctx context.Context, pinID uuid.UUID) (<-chan Result, error) {
	return c.start(ctx, pinID, false)
}

func (c *defaultController) AdvancePage(ctx context.Context, pinID uuid.UUID) (<-chan Result, error) {
	return c.start(ctx, pinID, true)
}

func (c *defaultController) Bootstrap(ctx context.Context, pinID uuid.UUID) (<-chan Result, bool, error) {
	n, err := c.store.CountPhotos(ctx, pinID)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return nil, false, nil
	}

	results, err := c.start(ctx, pinID, false)
	if errors.Is(err, ErrSyncInProgress) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	slog.Info("Pin has no photos, fetching first page", "pin_id", pinID)
	return results, true, nil
}

func (c *defaultController) BootstrapAll(ctx context.Context) (int, error) {
	pins, err := c.store.ListPins(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pins: %w", err)
	}

	var (
		started int
		errs    []error
	)
	for _, pin := range pins {
		_, ok, err := c.Bootstrap(ctx, pin.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("pin %s: %w", pin.ID, err))
			continue
		}
		if ok {
			started++
		}
	}
	return started, errors.Join(errs...)
}

func (c *defaultController) Cancel(pinID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, ok := c.pins[pinID]
	if !ok || ps.cancel == nil {
		return false
	}
	ps.cancel()
	return true
}

func (c *defaultController) State(pinID uuid.UUID) status.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ps, ok := c.pins[pinID]; ok {
		return ps.state
	}
	return initialState(pinID)
}

func (c *defaultController) Subscribe(pinID uuid.UUID) *changes.Subscription[status.SyncState] {
	return c.states.Subscribe(pinID)
}

func (c *defaultController) Forget(pinID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ps, ok := c.pins[pinID]; ok {
		if ps.cancel != nil {
			ps.cancel()
		}
		delete(c.pins, pinID)
	}
}

func (c *defaultController) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()
	slog.Info("Sync controller stopped")
}

func initialState(pinID uuid.UUID) status.SyncState {
	return status.SyncState{
		PinID:   pinID,
		Page:    1,
		Phase:   status.PhaseIdle,
		Status:  status.CodeIdle,
		Message: status.CodeIdle.Message(),
	}
}

// start moves the pin to Loading and launches the fetch
func (c *defaultController) start(ctx context.Context, pinID uuid.UUID, advance bool) (<-chan Result, error) {
	pin, err := c.store.GetPin(ctx, pinID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}

	ps, ok := c.pins[pinID]
	if !ok {
		ps = &pinState{state: initialState(pinID)}
		c.pins[pinID] = ps
	}
	if ps.state.Loading() {
		c.mu.Unlock()
		c.metrics.RecordRejected(ctx)
		slog.Debug("Rejecting sync request, fetch in flight", "pin_id", pinID, "page", ps.state.Page)
		return nil, ErrSyncInProgress
	}

	if advance {
		ps.state.Page = nextPage(ps.state.Page, ps.pages)
	}
	now := c.now()
	ps.state.Phase = status.PhaseLoading
	ps.state.Status = status.CodeLoading
	ps.state.Message = status.CodeLoading.Message()
	ps.state.Stored, ps.state.Skipped = 0, 0
	ps.state.LastAttempt = &now
	c.seq++
	ps.gen = c.seq

	// The fetch outlives the caller's request but stays in its trace
	runCtx, cancel := context.WithCancel(trace.ContextWithSpan(c.baseCtx, trace.SpanFromContext(ctx)))
	ps.cancel = cancel
	gen, page := ps.gen, ps.state.Page

	c.wg.Add(1)
	c.states.Publish(pinID, ps.state)
	c.mu.Unlock()

	slog.Info("Starting photo sync", "pin_id", pinID, "page", page)

	results := make(chan Result, 1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		res := c.run(runCtx, pin, page)
		c.finish(gen, res)
		results <- res
		close(results)
	}()
	return results, nil
}

// nextPage wraps to page 1 once the provider's last known page was reached
func nextPage(page, pages int) int {
	if pages > 0 && page >= pages {
		return 1
	}
	return page + 1
}

func (c *defaultController) run(ctx context.Context, pin *store.Pin, page int) (res Result) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.Request",
		trace.WithAttributes(otel.AttrPinID.String(pin.ID.String()), otel.AttrPage.Int(page)))
	start := time.Now()
	res = Result{PinID: pin.ID, Page: page}

	defer func() {
		span.SetAttributes(otel.AttrSyncStatus.String(string(res.Status)), otel.AttrSkipped.Int(res.Skipped))
		otel.RecordError(span, res.Err, context.Canceled)
		span.End()
		c.metrics.RecordSync(context.WithoutCancel(ctx), string(res.Status), time.Since(start), res.Stored, res.Skipped)
	}()

	summary, err := c.fetcher.FetchPage(ctx, pin.Coordinate, page, func(item fetcher.Item) error {
		if _, err := c.store.AddPhoto(ctx, pin.ID, store.NewPhoto{
			URL:         item.URL,
			ContentType: item.ContentType,
			Image:       item.Image,
		}); err != nil {
			return err
		}
		res.Stored++
		return nil
	})

	res.Pages = summary.Pages
	res.Skipped = summary.Skipped
	res.Err = err
	res.Status = classify(ctx, err, summary)

	if err != nil {
		slog.Warn("Photo sync failed",
			"pin_id", pin.ID, "page", page, "status", res.Status, "stored", res.Stored, "error", err)
	} else {
		slog.Info("Photo sync finished",
			"pin_id", pin.ID, "page", page, "status", res.Status, "stored", res.Stored, "skipped", res.Skipped)
	}
	return res
}

func classify(ctx context.Context, err error, summary fetcher.Summary) status.Code {
	var provErr *provider.ProviderError
	switch {
	case err == nil && summary.Requested == 0:
		return status.CodeEmpty
	case err == nil && summary.Skipped > 0:
		return status.CodePartial
	case err == nil:
		return status.CodeComplete
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return status.CodeCancelled
	case errors.As(err, &provErr):
		return status.CodeProviderError
	default:
		// Only the store writes fail past a successful search
		return status.CodeStorageError
	}
}

// finish returns the pin to Idle unless it was forgotten meanwhile
func (c *defaultController) finish(gen uint64, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, ok := c.pins[res.PinID]
	if !ok || ps.gen != gen {
		return
	}

	ps.cancel = nil
	if res.Pages > 0 {
		ps.pages = res.Pages
	}
	ps.state.Phase = status.PhaseIdle
	ps.state.Status = res.Status
	ps.state.Message = message(res)
	ps.state.Stored = res.Stored
	ps.state.Skipped = res.Skipped
	if !res.Status.Failed() {
		now := c.now()
		ps.state.LastCompleted = &now
	}
	c.states.Publish(res.PinID, ps.state)
}

func message(res Result) string {
	if res.Status == status.CodePartial {
		return fmt.Sprintf("%d of %d photos could not be downloaded", res.Skipped, res.Stored+res.Skipped)
	}
	return res.Status.Message()
}
