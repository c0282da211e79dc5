// Package helpers provides utilities for the pinphoto API integration tests.
package helpers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"

	pinphotoapp "github.com/stacklok/pinphoto-server/internal/app"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/service"
	"github.com/stacklok/pinphoto-server/internal/status"
	"github.com/stacklok/pinphoto-server/internal/store"
)

// ServerTestHelper manages the API server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *pinphotoapp.PinPhotoApp
}

// NewServerTestHelper creates a helper for a server on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	address := freeAddress()
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    "http://" + address,
		address:    address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func freeAddress() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	addr := l.Addr().String()
	gomega.Expect(l.Close()).To(gomega.Succeed())
	return addr
}

// StartServer builds the application from the config file and serves it in the background
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := pinphotoapp.NewPinPhotoApp(s.ctx,
		pinphotoapp.WithConfig(cfg),
		pinphotoapp.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app == nil {
		return nil
	}
	app := s.app
	s.app = nil
	return app.Stop(5 * time.Second)
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Do sends a request with an optional JSON body and returns the status and body
func (s *ServerTestHelper) Do(method, path string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return resp.StatusCode, data
}

// CreatePin creates a pin and returns it
func (s *ServerTestHelper) CreatePin(lat, lon float64) *service.PinDetail {
	code, body := s.Do(http.MethodPost, "/v1/pins", map[string]float64{"latitude": lat, "longitude": lon})
	gomega.Expect(code).To(gomega.Equal(http.StatusCreated), string(body))

	var pin service.PinDetail
	gomega.Expect(json.Unmarshal(body, &pin)).To(gomega.Succeed())
	return &pin
}

// GetPin fetches a pin with its photo count and sync state
func (s *ServerTestHelper) GetPin(id uuid.UUID) *service.PinDetail {
	code, body := s.Do(http.MethodGet, "/v1/pins/"+id.String(), nil)
	gomega.Expect(code).To(gomega.Equal(http.StatusOK), string(body))

	var pin service.PinDetail
	gomega.Expect(json.Unmarshal(body, &pin)).To(gomega.Succeed())
	return &pin
}

// ListPhotos returns a pin's photos in display order
func (s *ServerTestHelper) ListPhotos(id uuid.UUID) []*store.Photo {
	code, body := s.Do(http.MethodGet, "/v1/pins/"+id.String()+"/photos", nil)
	gomega.Expect(code).To(gomega.Equal(http.StatusOK), string(body))

	var list struct {
		Photos []*store.Photo `json:"photos"`
	}
	gomega.Expect(json.Unmarshal(body, &list)).To(gomega.Succeed())
	return list.Photos
}

// SyncState returns a pin's sync state
func (s *ServerTestHelper) SyncState(id uuid.UUID) status.SyncState {
	code, body := s.Do(http.MethodGet, "/v1/pins/"+id.String()+"/sync", nil)
	gomega.Expect(code).To(gomega.Equal(http.StatusOK), string(body))

	var state status.SyncState
	gomega.Expect(json.Unmarshal(body, &state)).To(gomega.Succeed())
	return state
}

// WaitForIdle waits until the pin's fetch has finished and returns the final state
func (s *ServerTestHelper) WaitForIdle(id uuid.UUID) status.SyncState {
	var state status.SyncState
	gomega.Eventually(func() bool {
		state = s.SyncState(id)
		return !state.Loading() && state.LastCompleted != nil
	}, 10*time.Second, 50*time.Millisecond).Should(gomega.BeTrue(), "fetch should finish")
	return state
}

// Event is one server-sent event
type Event struct {
	Name string
	Data string
}

// OpenEvents subscribes to a pin's event stream. Events are delivered on the
// returned channel until cancel is called or the server ends the stream.
func (s *ServerTestHelper) OpenEvents(id uuid.UUID) (<-chan Event, context.CancelFunc) {
	ctx, cancel := context.WithCancel(s.ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/pins/"+id.String()+"/events", nil)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	// The stream outlives the client timeout
	resp, err := (&http.Client{}).Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer func() {
			_ = resp.Body.Close()
		}()

		var ev Event
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Name != "" {
					events <- ev
				}
				ev = Event{}
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return events, cancel
}

// WriteConfigYAML writes a configuration file for a server backed by provider.
// An empty snapshotPath keeps the store in memory only.
func WriteConfigYAML(dir, endpoint string, pageSize int, snapshotPath string) string {
	keyFile := filepath.Join(dir, "api-key")
	gomega.Expect(os.WriteFile(keyFile, []byte("integration-key\n"), 0o600)).To(gomega.Succeed())

	content := fmt.Sprintf(`provider:
  endpoint: %s
  apiKeyFile: %s
  radiusKm: 2

fetch:
  pageSize: %d
  concurrency: 2
  timeout: 5s
  maxRetries: 1

storage:
  type: memory
`, endpoint, keyFile, pageSize)
	if snapshotPath != "" {
		content += fmt.Sprintf("  snapshotPath: %s\n  autosaveInterval: 1h\n", snapshotPath)
	}

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0o600)).To(gomega.Succeed())
	return path
}
