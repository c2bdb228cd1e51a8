// Package catalog fetches the optional remote preset pack.
//
// The pack is a JSON document of presets published next to the project's
// sources. Fetching follows a double fallback: the configured source, then
// the on-disk cache written by the last successful fetch. Catalog presets
// never override a preset the user defined under the same name.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/remote"
	"tools.zach/dev/statuscord/internal/settings"
)

// ErrEmpty is returned when a source parses but holds no presets.
var ErrEmpty = errors.New("preset catalog is empty")

const maxResponseBytes = 1 << 20

// httpClient is shared by all catalog fetches.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.RetryWaitMin = 500 * time.Millisecond
		httpClient.RetryWaitMax = 2 * time.Second
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Source describes where the catalog comes from. File wins over URL; an
// empty URL uses the project's published pack.
type Source struct {
	URL  string
	File string
}

// Catalog is the preset pack.
type Catalog struct {
	Version int               `json:"version"`
	Presets []settings.Preset `json:"presets"`
}

// DefaultURL returns the published pack's URL, or "" when the repository
// is unknown.
func DefaultURL() string {
	return remote.RawURL(paths.CatalogDataPath)
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Fetch loads the catalog from src, falling back to the cache at cachePath.
// The returned error is non-nil with a usable catalog when the data came
// from the cache.
func Fetch(ctx context.Context, src Source, cachePath string) (*Catalog, error) {
	var primary func() (*Catalog, error)
	switch {
	case src.File != "":
		primary = func() (*Catalog, error) { return fromFile(src.File) }
	default:
		url := src.URL
		if url == "" {
			url = DefaultURL()
		}
		if url == "" {
			return nil, errors.New("no catalog URL configured")
		}
		primary = func() (*Catalog, error) { return fromURL(ctx, url) }
	}

	cat, err := primary()
	if err == nil {
		if cacheErr := WriteCache(cachePath, cat); cacheErr != nil {
			slog.Warn("failed to write catalog cache", "error", cacheErr)
		}
		return cat, nil
	}
	slog.Warn("failed to fetch preset catalog, trying cache", "error", err)

	cached, cacheErr := ReadCache(cachePath)
	if cacheErr == nil {
		return cached, fmt.Errorf("using cached catalog: primary fetch failed: %w", err)
	}
	return nil, fmt.Errorf("all catalog sources failed: primary: %w; cache: %w", err, cacheErr)
}

// Fill returns the catalog presets whose names are not among own.
func Fill(own []settings.Preset, cat *Catalog) []settings.Preset {
	if cat == nil {
		return nil
	}
	taken := make(map[string]bool, len(own))
	for _, p := range own {
		taken[strings.ToLower(p.Name)] = true
	}
	var out []settings.Preset
	for _, p := range cat.Presets {
		key := strings.ToLower(p.Name)
		if p.Name == "" || taken[key] {
			continue
		}
		taken[key] = true
		out = append(out, p)
	}
	return out
}

// ///////////////////////////////////////////////
// Sources
// ///////////////////////////////////////////////

func fromURL(ctx context.Context, url string) (*Catalog, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}
	return parse(body)
}

func fromFile(path string) (*Catalog, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	return parse(body)
}

func parse(body []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(body, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(cat.Presets) == 0 {
		return nil, ErrEmpty
	}
	return &cat, nil
}

// ///////////////////////////////////////////////
// Cache
// ///////////////////////////////////////////////

// WriteCache stores cat at path.
func WriteCache(path string, cat *Catalog) error {
	if cat == nil {
		return errors.New("catalog is nil")
	}
	return atomicfile.WriteJSON(path, cat, 0o644)
}

// ReadCache loads a catalog previously stored by [WriteCache].
func ReadCache(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog cache: %w", err)
	}
	return parse(b)
}
