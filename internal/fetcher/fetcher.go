// Package fetcher downloads one page of photos for a coordinate.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/pinphoto-server/internal/httpclient"
	"github.com/stacklok/pinphoto-server/internal/otel"
	"github.com/stacklok/pinphoto-server/internal/provider"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// DefaultConcurrency is the number of downloads in flight when none is configured
const DefaultConcurrency = 4

var (
	// ErrEmptyImage is returned for a download with no bytes
	ErrEmptyImage = errors.New("empty image")

	// ErrNotImage is returned when the payload is not an image
	ErrNotImage = errors.New("payload is not an image")
)

// TransientFetchError reports a single URL that could not be downloaded.
// It never aborts a page.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// Item is a successfully downloaded photo
type Item struct {
	URL         string
	ContentType string
	Image       []byte
}

// Summary counts the outcome of one page
type Summary struct {
	Page       int
	Pages      int
	Requested  int
	Downloaded int
	Skipped    int
}

// Handler consumes one downloaded item. Returning an error stops the page.
type Handler func(Item) error

// Fetcher searches a provider and downloads the resulting URLs
type Fetcher struct {
	provider    provider.Provider
	client      httpclient.Client
	concurrency int
	perPage     int
	tracer      trace.Tracer
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithConcurrency bounds the number of downloads in flight
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithPerPage sets the number of URLs requested per page
func WithPerPage(n int) Option {
	return func(f *Fetcher) {
		f.perPage = n
	}
}

// WithTracer enables spans for pages
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Fetcher) {
		f.tracer = tracer
	}
}

// New creates a Fetcher
func New(p provider.Provider, client httpclient.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider:    p,
		client:      client,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type result struct {
	item Item
	err  error
}

// FetchPage searches for page and downloads every URL concurrently. handle is
// called on the calling goroutine, once per downloaded item, in completion order.
//
// A failed search returns a *provider.ProviderError. A failed download is
// counted in Summary.Skipped. An error from handle cancels the remaining
// downloads and is returned as is.
func (f *Fetcher) FetchPage(ctx context.Context, coord store.Coordinate, page int, handle Handler) (_ Summary, err error) {
	ctx, span := otel.StartSpan(ctx, f.tracer, "fetcher.FetchPage",
		trace.WithAttributes(otel.AttrPage.Int(page)))
	defer func() {
		otel.RecordError(span, err, context.Canceled)
		span.End()
	}()

	summary := Summary{Page: page}

	res, err := f.provider.Search(ctx, provider.Query{Coordinate: coord, Page: page, PerPage: f.perPage})
	if err != nil {
		var provErr *provider.ProviderError
		if !errors.As(err, &provErr) {
			err = &provider.ProviderError{Page: page, Err: err}
		}
		return summary, err
	}
	summary.Pages = res.Pages
	summary.Requested = len(res.URLs)
	span.SetAttributes(otel.AttrURLCount.Int(len(res.URLs)))

	if len(res.URLs) == 0 {
		return summary, nil
	}

	dlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result)
	g, gctx := errgroup.WithContext(dlCtx)
	g.SetLimit(f.concurrency)

	go func() {
		defer close(results)
		for _, u := range res.URLs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				item, err := f.download(gctx, u)
				select {
				case results <- result{item: item, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var handleErr error
	for r := range results {
		// Items still buffered after cancellation are dropped unhandled
		if handleErr != nil || dlCtx.Err() != nil {
			continue
		}
		if r.err != nil {
			if ctx.Err() == nil {
				summary.Skipped++
				slog.Debug("Skipping photo", "error", r.err)
			}
			continue
		}
		if err := handle(r.item); err != nil {
			handleErr = err
			cancel()
			continue
		}
		summary.Downloaded++
	}

	span.SetAttributes(otel.AttrSkipped.Int(summary.Skipped), otel.AttrResultCount.Int(summary.Downloaded))

	if handleErr != nil {
		return summary, handleErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (Item, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return Item{}, &TransientFetchError{URL: url, Err: err}
	}
	if len(resp.Body) == 0 {
		return Item{}, &TransientFetchError{URL: url, Err: ErrEmptyImage}
	}

	mt := mimetype.Detect(resp.Body)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Item{}, &TransientFetchError{URL: url, Err: fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())}
	}

	return Item{URL: url, ContentType: mt.String(), Image: resp.Body}, nil
}
