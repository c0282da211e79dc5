// Package provider searches an external image service for photos near a coordinate.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/stacklok/pinphoto-server/internal/httpclient"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// ProviderError reports a failed search call
//
//nolint:revive // the name reads better at call sites than provider.Error
type ProviderError struct {
	Page    int
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("photo search for page %d failed (code %d): %s", e.Page, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("photo search for page %d failed: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("photo search for page %d failed: %s", e.Page, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Query is a single search request
type Query struct {
	Coordinate store.Coordinate
	Page       int
	PerPage    int
}

// Page is a page of search results
type Page struct {
	Number int
	// Pages is the total number of pages the provider reports for the query
	Pages int
	URLs  []string
}

// Provider searches for photo URLs near a coordinate
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks github.com/stacklok/pinphoto-server/internal/provider Provider
type Provider interface {
	Search(ctx context.Context, q Query) (*Page, error)
}

// Flickr is a Provider backed by the flickr.photos.search REST method
type Flickr struct {
	client     httpclient.Client
	endpoint   string
	apiKey     string
	radiusKM   float64
	safeSearch int
}

// FlickrOption configures the Flickr provider
type FlickrOption func(*Flickr)

// WithRadiusKM sets the search radius
func WithRadiusKM(r float64) FlickrOption {
	return func(f *Flickr) {
		f.radiusKM = r
	}
}

// WithSafeSearch sets the safe search level (1 safe, 2 moderate, 3 restricted)
func WithSafeSearch(level int) FlickrOption {
	return func(f *Flickr) {
		f.safeSearch = level
	}
}

// NewFlickr creates a Flickr search provider
func NewFlickr(client httpclient.Client, endpoint, apiKey string, opts ...FlickrOption) *Flickr {
	f := &Flickr{
		client:     client,
		endpoint:   endpoint,
		apiKey:     apiKey,
		radiusKM:   5,
		safeSearch: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Search fetches one page of photo URLs
func (f *Flickr) Search(ctx context.Context, q Query) (*Page, error) {
	if q.Page < 1 {
		return nil, &ProviderError{Page: q.Page, Message: "page must be at least 1"}
	}

	reqURL, err := f.searchURL(q)
	if err != nil {
		return nil, &ProviderError{Page: q.Page, Err: err}
	}

	resp, err := f.client.Get(ctx, reqURL)
	if err != nil {
		return nil, &ProviderError{Page: q.Page, Err: err}
	}

	return parseSearch(q.Page, resp.Body)
}

func (f *Flickr) searchURL(q Query) (string, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid provider endpoint: %w", err)
	}
	v := u.Query()
	v.Set("method", "flickr.photos.search")
	v.Set("api_key", f.apiKey)
	v.Set("lat", strconv.FormatFloat(q.Coordinate.Latitude, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(q.Coordinate.Longitude, 'f', -1, 64))
	v.Set("radius", strconv.FormatFloat(f.radiusKM, 'f', -1, 64))
	v.Set("radius_units", "km")
	v.Set("safe_search", strconv.Itoa(f.safeSearch))
	v.Set("extras", "url_m")
	v.Set("page", strconv.Itoa(q.Page))
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	v.Set("format", "json")
	v.Set("nojsoncallback", "1")
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func parseSearch(page int, body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ProviderError{Page: page, Err: errors.New("response is not valid JSON")}
	}

	res := gjson.ParseBytes(body)
	if stat := res.Get("stat").String(); stat != "ok" {
		return nil, &ProviderError{
			Page:    page,
			Code:    int(res.Get("code").Int()),
			Message: res.Get("message").String(),
		}
	}

	out := &Page{
		Number: int(res.Get("photos.page").Int()),
		Pages:  int(res.Get("photos.pages").Int()),
	}
	if out.Number == 0 {
		out.Number = page
	}

	for _, p := range res.Get("photos.photo").Array() {
		if u := photoURL(p); u != "" {
			out.URLs = append(out.URLs, u)
		} else {
			slog.Debug("Search result has no usable URL", "photo_id", p.Get("id").String())
		}
	}
	return out, nil
}

// photoURL prefers the url_m extra and falls back to the static URL scheme
func photoURL(p gjson.Result) string {
	if u := p.Get("url_m").String(); u != "" {
		return u
	}
	id, server, secret := p.Get("id").String(), p.Get("server").String(), p.Get("secret").String()
	if id == "" || server == "" || secret == "" {
		return ""
	}
	return fmt.Sprintf("https://live.staticflickr.com/%s/%s_%s_m.jpg", server, id, secret)
}
