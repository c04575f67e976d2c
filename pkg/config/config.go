// Package config loads and persists the settings a recordstore server or
// shell runs with: where to bind, what scan-budget defaults to apply when
// a caller doesn't specify its own, and which on-disk format generation
// new writes should target.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/recordsplit/recordsplit/pkg/telemetry"
)

const (
	DefaultManifestFileName = "MANIFEST"
	CurrentManifestVersion  = 1
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

// Config holds every setting a recordstore server needs beyond what a
// per-call SaveOptions/ReaderOptions/DeleteOptions already expresses.
type Config struct {
	Version int `json:"version"`

	// ListenAddr is the address the gRPC server binds to.
	ListenAddr string `json:"listen_addr"`

	// DefaultRowLimit and DefaultByteLimit seed a StreamingReader's
	// budget.Manager when a caller's request omits its own limits. Zero
	// means unlimited.
	DefaultRowLimit  int   `json:"default_row_limit"`
	DefaultByteLimit int64 `json:"default_byte_limit"`

	// SplitLongRecordsDefault and OldVersionFormatDefault seed
	// SaveOptions/ReaderOptions for callers that don't set them
	// explicitly.
	SplitLongRecordsDefault bool `json:"split_long_records_default"`
	OldVersionFormatDefault bool `json:"old_version_format_default"`

	// TelemetryEnabled and TelemetryExporters select whether the server
	// attaches a telemetry.Telemetry to its Writer/readers and, if so,
	// which exporters it feeds (see telemetry.Config.Exporters).
	TelemetryEnabled   bool     `json:"telemetry_enabled"`
	TelemetryExporters []string `json:"telemetry_exporters"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values.
func NewDefaultConfig(listenAddr string) *Config {
	return &Config{
		Version: CurrentManifestVersion,

		ListenAddr: listenAddr,

		DefaultRowLimit:  0,
		DefaultByteLimit: 0,

		SplitLongRecordsDefault: true,
		OldVersionFormatDefault: false,

		TelemetryEnabled:   false,
		TelemetryExporters: []string{"stdout"},
	}
}

// TelemetryConfig builds the telemetry.Config this server's telemetry
// provider should start from, layering the manifest's enablement and
// exporter selection onto telemetry's other defaults.
func (c *Config) TelemetryConfig() telemetry.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tc := telemetry.DefaultConfig()
	tc.ServiceName = "recordsplit"
	tc.Enabled = c.TelemetryEnabled
	if len(c.TelemetryExporters) > 0 {
		tc.Exporters = append([]string{}, c.TelemetryExporters...)
	}
	return tc
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address not specified", ErrInvalidConfig)
	}

	if c.DefaultRowLimit < 0 {
		return fmt.Errorf("%w: default row limit must not be negative", ErrInvalidConfig)
	}

	if c.DefaultByteLimit < 0 {
		return fmt.Errorf("%w: default byte limit must not be negative", ErrInvalidConfig)
	}

	return nil
}

// LoadConfigFromManifest loads the configuration from the manifest file
// under dbPath.
func LoadConfigFromManifest(dbPath string) (*Config, error) {
	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration to the manifest file under dbPath.
func (c *Config) SaveManifest(dbPath string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies fn to modify the configuration under lock.
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
