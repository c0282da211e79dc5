// Package config provides configuration loading and management for the pinphoto server.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/pinphoto-server/internal/telemetry"
)

// EnvPrefix is the prefix used for all environment variables read by the server.
const EnvPrefix = "PINPHOTO"

const (
	// StorageTypeMemory keeps pins and photos in memory with an optional snapshot file
	StorageTypeMemory = "memory"

	// StorageTypeDatabase stores pins and photos in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	// DefaultProviderEndpoint is the Flickr REST endpoint
	DefaultProviderEndpoint = "https://api.flickr.com/services/rest/"

	// DefaultPageSize matches the number of cells the grid shows at once
	DefaultPageSize = 21

	// MaxPageSize is the largest page the provider accepts
	MaxPageSize = 250

	// DefaultRadiusKM is the search radius around a pin
	DefaultRadiusKM = 5.0

	// DefaultConcurrency is the number of downloads in flight per fetch
	DefaultConcurrency = 4

	// DefaultFetchTimeout bounds a single provider or download request
	DefaultFetchTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of attempts for a single download
	DefaultMaxRetries = 3

	// DefaultAutosaveInterval is how often dirty in-memory state is flushed
	DefaultAutosaveInterval = 30 * time.Second
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Provider  ProviderConfig    `yaml:"provider"`
	Fetch     FetchConfig       `yaml:"fetch,omitempty"`
	Storage   StorageConfig     `yaml:"storage,omitempty"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ProviderConfig describes the image search provider
type ProviderConfig struct {
	// Endpoint is the REST endpoint of the search API
	Endpoint string `yaml:"endpoint,omitempty"`

	// APIKeyFile is the path to a file containing the API key
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`

	// RadiusKM is the search radius around the pin in kilometers
	RadiusKM float64 `yaml:"radiusKm,omitempty"`

	// SafeSearch is passed through to the provider (1 safe, 2 moderate, 3 restricted)
	SafeSearch int `yaml:"safeSearch,omitempty"`
}

// FetchConfig controls how a page of photos is downloaded
type FetchConfig struct {
	PageSize    int    `yaml:"pageSize,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	Timeout     string `yaml:"timeout,omitempty"`
	MaxRetries  int    `yaml:"maxRetries,omitempty"`
}

// StorageConfig selects the photo store backend
type StorageConfig struct {
	// Type is either "memory" or "database"; defaults to memory
	Type string `yaml:"type,omitempty"`

	// SnapshotPath is where the in-memory store persists its state, empty to disable
	SnapshotPath string `yaml:"snapshotPath,omitempty"`

	// AutosaveInterval is how often the snapshot is written (e.g. "30s")
	AutosaveInterval string `yaml:"autosaveInterval,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file content is trimmed of surrounding whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetAPIKey returns the provider API key, read from APIKeyFile if set and
// from PINPHOTO_PROVIDER_API_KEY otherwise.
func (p *ProviderConfig) GetAPIKey() (string, error) {
	return readSecret(p.APIKeyFile, EnvPrefix+"_PROVIDER_API_KEY", "provider API key")
}

// GetEndpoint returns the endpoint, using the Flickr endpoint if not specified
func (p *ProviderConfig) GetEndpoint() string {
	if p.Endpoint == "" {
		return DefaultProviderEndpoint
	}
	return p.Endpoint
}

// GetRadiusKM returns the search radius, using the default if not specified
func (p *ProviderConfig) GetRadiusKM() float64 {
	if p.RadiusKM == 0 {
		return DefaultRadiusKM
	}
	return p.RadiusKM
}

// GetPageSize returns the page size, using the default if not specified
func (f *FetchConfig) GetPageSize() int {
	if f.PageSize == 0 {
		return DefaultPageSize
	}
	return f.PageSize
}

// GetConcurrency returns the download concurrency, using the default if not specified
func (f *FetchConfig) GetConcurrency() int {
	if f.Concurrency == 0 {
		return DefaultConcurrency
	}
	return f.Concurrency
}

// GetTimeout returns the per-request timeout. Validation guarantees it parses.
func (f *FetchConfig) GetTimeout() time.Duration {
	if f.Timeout == "" {
		return DefaultFetchTimeout
	}
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return DefaultFetchTimeout
	}
	return d
}

// GetMaxRetries returns the attempt count for a download
func (f *FetchConfig) GetMaxRetries() int {
	if f.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return f.MaxRetries
}

// GetType returns the storage type, defaulting to memory
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeMemory
	}
	return s.Type
}

// GetAutosaveInterval returns the flush interval. A missing or non-positive
// interval falls back to DefaultAutosaveInterval.
func (s *StorageConfig) GetAutosaveInterval() time.Duration {
	if s.AutosaveInterval == "" {
		return DefaultAutosaveInterval
	}
	d, err := time.ParseDuration(s.AutosaveInterval)
	if err != nil || d <= 0 {
		slog.Warn("Autosave interval must be positive, using default",
			"configured", s.AutosaveInterval,
			"default", DefaultAutosaveInterval)
		return DefaultAutosaveInterval
	}
	return d
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from PINPHOTO_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, EnvPrefix+"_DATABASE_PASSWORD", "database password")
}

// GetConnectionString builds a PostgreSQL connection string.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String(), nil
}

func readSecret(file, envVar, what string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read %s from file %s: %w", what, file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no %s configured: set a file or the %s environment variable", what, envVar)
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateProvider(&c.Provider); err != nil {
		return err
	}
	if err := validateFetch(&c.Fetch); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func validateProvider(p *ProviderConfig) error {
	if p.Endpoint != "" {
		u, err := url.Parse(p.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("provider.endpoint must be an absolute URL, got %q", p.Endpoint)
		}
	}
	if p.RadiusKM < 0 || p.RadiusKM > 32 {
		return fmt.Errorf("provider.radiusKm must be between 0 and 32, got %v", p.RadiusKM)
	}
	if p.SafeSearch < 0 || p.SafeSearch > 3 {
		return fmt.Errorf("provider.safeSearch must be between 0 and 3, got %d", p.SafeSearch)
	}
	return nil
}

func validateFetch(f *FetchConfig) error {
	if f.PageSize < 0 || f.PageSize > MaxPageSize {
		return fmt.Errorf("fetch.pageSize must be between 1 and %d, got %d", MaxPageSize, f.PageSize)
	}
	if f.Concurrency < 0 {
		return fmt.Errorf("fetch.concurrency must not be negative, got %d", f.Concurrency)
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("fetch.maxRetries must not be negative, got %d", f.MaxRetries)
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("fetch.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("fetch.timeout must be positive, got %s", f.Timeout)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.GetType() {
	case StorageTypeMemory:
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("storage.type %q requires a database section", StorageTypeDatabase)
		}
		if err := validateDatabase(c.Database); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q",
			StorageTypeMemory, StorageTypeDatabase, c.Storage.Type)
	}

	// A non-positive interval is tolerated and replaced at runtime; a malformed one is not.
	if c.Storage.AutosaveInterval != "" {
		if _, err := time.ParseDuration(c.Storage.AutosaveInterval); err != nil {
			return fmt.Errorf("storage.autosaveInterval must be a valid duration (e.g., '30s'): %w", err)
		}
	}
	return nil
}

func validateDatabase(d *DatabaseConfig) error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", d.Port)
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}
