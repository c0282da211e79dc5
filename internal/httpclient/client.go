// Package httpclient provides bounded HTTP GETs with capped retries
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout is the default timeout for a single HTTP attempt
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResponseSize is the default response size limit (32MB)
	DefaultMaxResponseSize = 32 * 1024 * 1024

	// DefaultMaxTries is the default number of attempts per request
	DefaultMaxTries = 3

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "pinphoto-server/1.0"
)

// ErrResponseTooLarge is returned when a body exceeds the configured limit
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// Response is a fully read HTTP response body
type Response struct {
	Body        []byte
	ContentType string
}

// Client is an interface for HTTP operations
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/pinphoto-server/internal/httpclient Client
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) (*Response, error)
}

// DefaultClient retries transport errors, 429 and 5xx responses with
// exponential backoff. Other 4xx responses fail immediately.
type DefaultClient struct {
	client          *http.Client
	maxTries        uint
	maxResponseSize int64
	accept          string
	initialInterval time.Duration
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithMaxTries sets the number of attempts; values below 1 mean a single attempt
func WithMaxTries(n int) Option {
	return func(c *DefaultClient) {
		if n < 1 {
			n = 1
		}
		c.maxTries = uint(n) // #nosec G115 -- n is positive
	}
}

// WithMaxResponseSize sets the body size limit in bytes
func WithMaxResponseSize(n int64) Option {
	return func(c *DefaultClient) {
		c.maxResponseSize = n
	}
}

// WithAccept sets the Accept header
func WithAccept(accept string) Option {
	return func(c *DefaultClient) {
		c.accept = accept
	}
}

// WithInitialRetryInterval sets the first backoff interval
func WithInitialRetryInterval(d time.Duration) Option {
	return func(c *DefaultClient) {
		c.initialInterval = d
	}
}

// WithTransport replaces the underlying transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.client.Transport = rt
	}
}

// NewDefaultClient creates a new HTTP client with the specified per-attempt timeout.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:          &http.Client{Timeout: timeout},
		maxTries:        DefaultMaxTries,
		maxResponseSize: DefaultMaxResponseSize,
		accept:          "*/*",
		initialInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request, retrying transient failures
func (c *DefaultClient) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", c.accept)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		resp, err := c.do(req)
		if err != nil && attempt < int(c.maxTries) && !isPermanent(err) {
			slog.Debug("Retrying HTTP request", "url", url, "attempt", attempt, "error", err)
		}
		return resp, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *DefaultClient) do(req *http.Request) (*Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to execute request: %w", err))
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String(), Message: resp.Status}
		if httpErr.Retryable() {
			return nil, httpErr
		}
		return nil, backoff.Permanent(httpErr)
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("%w: %d bytes exceeds %d bytes",
			ErrResponseTooLarge, resp.ContentLength, c.maxResponseSize))
	}

	// +1 to detect that the limit was exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("%w: limit is %d bytes", ErrResponseTooLarge, c.maxResponseSize))
	}

	return &Response{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

func isPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}
