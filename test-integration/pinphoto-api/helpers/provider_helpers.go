package helpers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockProvider is a fake image search API that also serves the images it lists.
// Every page lists PerPage photos; the image for each is a distinct PNG.
type MockProvider struct {
	*httptest.Server

	PerPage int
	Pages   int

	mu       sync.Mutex
	broken   map[string]bool
	searches []int
}

// NewMockProvider starts a provider with the given page layout
func NewMockProvider(perPage, pages int) *MockProvider {
	p := &MockProvider{PerPage: perPage, Pages: pages, broken: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/services/rest/", p.search)
	mux.HandleFunc("/img/", p.image)
	p.Server = httptest.NewServer(mux)
	return p
}

// Endpoint is the search endpoint to put in the server config
func (p *MockProvider) Endpoint() string {
	return p.URL + "/services/rest/"
}

// Break makes the image for page and index answer 404
func (p *MockProvider) Break(page, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broken[imageName(page, index)] = true
}

// Searches returns the pages requested so far, in order
func (p *MockProvider) Searches() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.searches...)
}

func imageName(page, index int) string {
	return fmt.Sprintf("%d-%d.png", page, index)
}

func (p *MockProvider) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || q.Get("api_key") == "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"stat":"fail","code":100,"message":"Invalid API Key"}`)
		return
	}

	p.mu.Lock()
	p.searches = append(p.searches, page)
	p.mu.Unlock()

	photos := make([]string, 0, p.PerPage)
	for i := range p.PerPage {
		photos = append(photos, fmt.Sprintf(`{"id":"%d%d","url_m":"%s/img/%s"}`, page, i, p.URL, imageName(page, i)))
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"stat":"ok","photos":{"page":%d,"pages":%d,"perpage":%d,"photo":[%s]}}`,
		page, p.Pages, p.PerPage, strings.Join(photos, ","))
}

func (p *MockProvider) image(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/img/")

	p.mu.Lock()
	broken := p.broken[name]
	p.mu.Unlock()
	if broken {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(pngFor(name))
}

// pngFor renders a 2x2 image whose color depends on name
func pngFor(name string) []byte {
	var sum uint8
	for _, c := range []byte(name) {
		sum += c
	}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := range 2 {
		for y := range 2 {
			img.Set(x, y, color.RGBA{R: sum, G: 255 - sum, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
