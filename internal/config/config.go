package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/canlog.defaults.json"

// Config holds the tunable limits of the decoder and its outer surfaces.
// Every field is optional; the Get* methods fall back to the built-in
// defaults for fields that are not set, so partial files are safe.
type Config struct {
	// Smart preview policy
	FullDecodeMaxBytes *int64   `json:"full_decode_max_bytes,omitempty"`
	SliceFraction      *float64 `json:"slice_fraction,omitempty"`
	SliceMaxBytes      *int64   `json:"slice_max_bytes,omitempty"`
	PreviewFrames      *int     `json:"preview_frames,omitempty"`

	// Streaming exports
	CSVProgressInterval      *int `json:"csv_progress_interval,omitempty"`
	DecimateProgressInterval *int `json:"decimate_progress_interval,omitempty"`
	DefaultMaxPoints         *int `json:"default_max_points,omitempty"`

	// HTTP server
	MaxUploadBytes     *int64   `json:"max_upload_bytes,omitempty"`
	Listen             *string  `json:"listen,omitempty"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins,omitempty"`
	// SessionIdleTimeout is a Go duration string; "0s" keeps sessions
	// until they are deleted.
	SessionIdleTimeout *string `json:"session_idle_timeout,omitempty"`
}

const (
	defaultFullDecodeMaxBytes       int64 = 20 << 20
	defaultSliceFraction                  = 0.05
	defaultSliceMaxBytes            int64 = 100 << 20
	defaultPreviewFrames                  = 50
	defaultCSVProgressInterval            = 10_000
	defaultDecimateProgressInterval       = 50_000
	defaultMaxPoints                      = 2000
	defaultMaxUploadBytes           int64 = 1 << 30
	defaultListen                         = ":8088"
	defaultSessionIdleTimeout             = 30 * time.Minute
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		FullDecodeMaxBytes:       ptrInt64(defaultFullDecodeMaxBytes),
		SliceFraction:            ptrFloat64(defaultSliceFraction),
		SliceMaxBytes:            ptrInt64(defaultSliceMaxBytes),
		PreviewFrames:            ptrInt(defaultPreviewFrames),
		CSVProgressInterval:      ptrInt(defaultCSVProgressInterval),
		DecimateProgressInterval: ptrInt(defaultDecimateProgressInterval),
		DefaultMaxPoints:         ptrInt(defaultMaxPoints),
		MaxUploadBytes:           ptrInt64(defaultMaxUploadBytes),
		Listen:                   ptrString(defaultListen),
		CORSAllowedOrigins:       []string{"*"},
		SessionIdleTimeout:       ptrString(defaultSessionIdleTimeout.String()),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics when the
// file cannot be found and is intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/gen-blf/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.FullDecodeMaxBytes != nil && *c.FullDecodeMaxBytes < 0 {
		return fmt.Errorf("full_decode_max_bytes must be non-negative, got %d", *c.FullDecodeMaxBytes)
	}
	if c.SliceFraction != nil {
		if *c.SliceFraction <= 0 || *c.SliceFraction > 1 {
			return fmt.Errorf("slice_fraction must be in (0, 1], got %f", *c.SliceFraction)
		}
	}
	if c.SliceMaxBytes != nil && *c.SliceMaxBytes <= 0 {
		return fmt.Errorf("slice_max_bytes must be positive, got %d", *c.SliceMaxBytes)
	}
	if c.PreviewFrames != nil && *c.PreviewFrames < 0 {
		return fmt.Errorf("preview_frames must be non-negative, got %d", *c.PreviewFrames)
	}
	if c.CSVProgressInterval != nil && *c.CSVProgressInterval < 0 {
		return fmt.Errorf("csv_progress_interval must be non-negative, got %d", *c.CSVProgressInterval)
	}
	if c.DecimateProgressInterval != nil && *c.DecimateProgressInterval < 0 {
		return fmt.Errorf("decimate_progress_interval must be non-negative, got %d", *c.DecimateProgressInterval)
	}
	if c.DefaultMaxPoints != nil && *c.DefaultMaxPoints < 1 {
		return fmt.Errorf("default_max_points must be at least 1, got %d", *c.DefaultMaxPoints)
	}
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}
	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.SessionIdleTimeout != nil {
		d, err := time.ParseDuration(*c.SessionIdleTimeout)
		if err != nil {
			return fmt.Errorf("session_idle_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("session_idle_timeout must be non-negative, got %s", d)
		}
	}
	return nil
}

// GetFullDecodeMaxBytes returns the declared size up to which a preview
// decodes the whole buffer.
func (c *Config) GetFullDecodeMaxBytes() int64 {
	if c.FullDecodeMaxBytes == nil {
		return defaultFullDecodeMaxBytes
	}
	return *c.FullDecodeMaxBytes
}

// GetSliceFraction returns the fraction of a large file decoded for a preview.
func (c *Config) GetSliceFraction() float64 {
	if c.SliceFraction == nil {
		return defaultSliceFraction
	}
	return *c.SliceFraction
}

// GetSliceMaxBytes returns the cap on a preview slice.
func (c *Config) GetSliceMaxBytes() int64 {
	if c.SliceMaxBytes == nil {
		return defaultSliceMaxBytes
	}
	return *c.SliceMaxBytes
}

// GetPreviewFrames returns the number of frames a smart preview returns.
func (c *Config) GetPreviewFrames() int {
	if c.PreviewFrames == nil {
		return defaultPreviewFrames
	}
	return *c.PreviewFrames
}

// GetCSVProgressInterval returns the row cadence of CSV stream progress.
func (c *Config) GetCSVProgressInterval() int {
	if c.CSVProgressInterval == nil {
		return defaultCSVProgressInterval
	}
	return *c.CSVProgressInterval
}

// GetDecimateProgressInterval returns the frame cadence of decimated
// stream progress.
func (c *Config) GetDecimateProgressInterval() int {
	if c.DecimateProgressInterval == nil {
		return defaultDecimateProgressInterval
	}
	return *c.DecimateProgressInterval
}

// GetDefaultMaxPoints returns the point budget used when a caller gives none.
func (c *Config) GetDefaultMaxPoints() int {
	if c.DefaultMaxPoints == nil {
		return defaultMaxPoints
	}
	return *c.DefaultMaxPoints
}

// GetMaxUploadBytes returns the largest accepted upload.
func (c *Config) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return defaultMaxUploadBytes
	}
	return *c.MaxUploadBytes
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return defaultListen
	}
	return *c.Listen
}

// GetCORSAllowedOrigins returns the origins allowed by the HTTP server.
func (c *Config) GetCORSAllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.CORSAllowedOrigins
}

// GetSessionIdleTimeout returns how long an unused API session is kept.
// Zero disables expiry. An unparsable value falls back to the default.
func (c *Config) GetSessionIdleTimeout() time.Duration {
	if c.SessionIdleTimeout == nil {
		return defaultSessionIdleTimeout
	}
	d, err := time.ParseDuration(*c.SessionIdleTimeout)
	if err != nil || d < 0 {
		return defaultSessionIdleTimeout
	}
	return d
}
