package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/pinphoto-server/internal/httpclient"
	"github.com/stacklok/pinphoto-server/internal/store"
)

const searchOK = `{
  "photos": {
    "page": 2, "pages": 7, "perpage": 3, "total": 20,
    "photo": [
      {"id": "1", "secret": "a", "server": "11", "url_m": "https://img.example.com/1_m.jpg"},
      {"id": "2", "secret": "b", "server": "22"},
      {"id": "3"}
    ]
  },
  "stat": "ok"
}`

func newTestClient() httpclient.Client {
	return httpclient.NewDefaultClient(2*time.Second,
		httpclient.WithMaxTries(1),
		httpclient.WithAccept("application/json"))
}

func TestFlickrSearch(t *testing.T) {
	t.Parallel()

	queries := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		queries <- q
		_, _ = w.Write([]byte(searchOK))
	}))
	defer server.Close()

	f := NewFlickr(newTestClient(), server.URL+"/services/rest/", "key-123", WithRadiusKM(2.5), WithSafeSearch(2))
	page, err := f.Search(context.Background(), Query{
		Coordinate: store.Coordinate{Latitude: 40.0, Longitude: -74.0},
		Page:       2,
		PerPage:    3,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Number)
	assert.Equal(t, 7, page.Pages)
	assert.Equal(t, []string{
		"https://img.example.com/1_m.jpg",
		"https://live.staticflickr.com/22/2_b_m.jpg",
	}, page.URLs)

	gotQuery := <-queries
	assert.Equal(t, "flickr.photos.search", gotQuery["method"])
	assert.Equal(t, "key-123", gotQuery["api_key"])
	assert.Equal(t, "40", gotQuery["lat"])
	assert.Equal(t, "-74", gotQuery["lon"])
	assert.Equal(t, "2.5", gotQuery["radius"])
	assert.Equal(t, "2", gotQuery["safe_search"])
	assert.Equal(t, "2", gotQuery["page"])
	assert.Equal(t, "3", gotQuery["per_page"])
	assert.Equal(t, "1", gotQuery["nojsoncallback"])
}

func TestFlickrSearchErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		code    int
	}{
		{
			name:    "api_error",
			status:  http.StatusOK,
			body:    `{"stat":"fail","code":100,"message":"Invalid API Key (Key has invalid format)"}`,
			wantMsg: "Invalid API Key",
			code:    100,
		},
		{
			name:    "invalid_json",
			status:  http.StatusOK,
			body:    `<html>`,
			wantMsg: "not valid JSON",
		},
		{
			name:    "http_error",
			status:  http.StatusForbidden,
			body:    ``,
			wantMsg: "HTTP 403",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewFlickr(newTestClient(), server.URL, "key")
			_, err := f.Search(context.Background(), Query{Page: 1})

			var provErr *ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, 1, provErr.Page)
			assert.Equal(t, tt.code, provErr.Code)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFlickrSearchRejectsPageZero(t *testing.T) {
	t.Parallel()

	f := NewFlickr(newTestClient(), "http://unused.invalid", "key")
	_, err := f.Search(context.Background(), Query{Page: 0})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
}

func TestParseSearchEmpty(t *testing.T) {
	t.Parallel()

	page, err := parseSearch(4, []byte(`{"photos":{"photo":[]},"stat":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, 4, page.Number)
	assert.Empty(t, page.URLs)
}
