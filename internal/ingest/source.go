package ingest

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// DataSource is the contract every grant source implements. Fetch produces
// a lazy, finite, non-restartable sequence of canonical records; calling
// Fetch again re-reads the underlying storage.
//
// The error side of the sequence carries per-item soft failures: the item
// is skipped and the source keeps going. An error wrapped in *FatalError
// aborts the whole source; no further items follow it.
type DataSource interface {
	// Name returns the source tag, e.g. "grants.gov".
	Name() string
	// Fetch yields canonical records until exhaustion or an early stop.
	Fetch(ctx context.Context, opts FetchOptions) iter.Seq2[models.Grant, error]
	// ValidateConfig inspects the configuration and returns defects without
	// performing I/O beyond cheap existence checks.
	ValidateConfig() []string
}

// FetchOptions are the per-run knobs every source honors.
type FetchOptions struct {
	// MaxRecords caps the number of yielded records; 0 means unlimited.
	MaxRecords int
	// FutureOnly skips records whose close date is present and not
	// strictly in the future.
	FutureOnly bool
}

// FatalError marks a whole-source failure (unreadable file, network error).
// Anything else yielded on the error side is a per-item soft failure.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// fatalf wraps a formatted error as source-fatal.
func fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// configValue reads a key from an open configuration mapping with a typed
// default. Sources use it instead of hand-rolled type switches.
func configValue[T any](config map[string]any, key string, fallback T) T {
	if raw, ok := config[key]; ok {
		if v, ok := raw.(T); ok {
			return v
		}
	}
	return fallback
}

// FileConfig is the configuration base for file-backed sources: a readable
// path is required.
type FileConfig struct {
	Config map[string]any
}

// Path returns the configured file path.
func (c FileConfig) Path() string {
	return configValue(c.Config, "file_path", "")
}

// ValidateConfig requires file_path to be set and to exist.
func (c FileConfig) ValidateConfig() []string {
	var errs []string
	path := c.Path()
	if path == "" {
		errs = append(errs, "file_path is required for file-based sources")
	} else if _, err := os.Stat(path); err != nil {
		errs = append(errs, fmt.Sprintf("file not found: %s", path))
	}
	return errs
}

// APIConfig is the configuration base for remote-API-backed sources.
type APIConfig struct {
	Config map[string]any
}

// BaseURL returns the configured endpoint.
func (c APIConfig) BaseURL() string {
	return configValue(c.Config, "base_url", "")
}

// APIKey returns the configured credential.
func (c APIConfig) APIKey() string {
	return configValue(c.Config, "api_key", "")
}

// ValidateConfig requires base_url, and api_key only when the source is
// marked as requiring auth.
func (c APIConfig) ValidateConfig() []string {
	var errs []string
	if c.BaseURL() == "" {
		errs = append(errs, "base_url is required for API-based sources")
	}
	if configValue(c.Config, "requires_auth", false) && c.APIKey() == "" {
		errs = append(errs, "api_key is required for authenticated APIs")
	}
	return errs
}

// ScrapeConfig is the configuration base for page-scraping-backed sources.
type ScrapeConfig struct {
	Config map[string]any
}

// BaseURL returns the page the source scrapes.
func (c ScrapeConfig) BaseURL() string {
	return configValue(c.Config, "base_url", "")
}

// ValidateConfig requires base_url.
func (c ScrapeConfig) ValidateConfig() []string {
	var errs []string
	if c.BaseURL() == "" {
		errs = append(errs, "base_url is required for web scraping sources")
	}
	return errs
}
