package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL serves the community snapshot archive.
	DefaultBaseURL = "https://yaqwsx.github.io/jlcparts/data"

	// FinalArchiveName is the terminating volume of the multi-part archive.
	FinalArchiveName = "cache.zip"
	// ExtractedDBName is the flat catalog file the archive expands to.
	ExtractedDBName = "cache.sqlite3"
	// ManifestName is the per-cache-directory metadata manifest.
	ManifestName = "cache_manifest.json"

	// maxArchiveParts bounds the numbered-volume probe.
	maxArchiveParts = 60
	// probeConcurrency bounds parallel HEAD requests.
	probeConcurrency = 4

	probeTimeout    = 30 * time.Second
	indexTimeout    = 60 * time.Second
	downloadTimeout = 10 * time.Minute
)

// RemoteMeta is the probed per-file remote metadata.
type RemoteMeta struct {
	Size         int64
	ETag         string
	LastModified string
	URL          string
}

// Client talks to the public snapshot archive.
type Client struct {
	BaseURL string
	Logger  *log.Logger

	httpClient *http.Client

	// freeBytes is swappable so disk-preflight behavior is testable.
	freeBytes func(dir string) (uint64, error)

	// extractThreads overrides the extractor's thread hint; <= 0 means
	// auto-detect.
	extractThreads int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different archive root.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.BaseURL = url }
}

// WithLogger sets the client's logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.Logger = logger }
}

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithFreeBytesFunc replaces the free-space probe, for tests.
func WithFreeBytesFunc(fn func(dir string) (uint64, error)) Option {
	return func(c *Client) { c.freeBytes = fn }
}

// WithExtractThreads fixes the extractor's thread count instead of deriving
// it from the CPU count.
func WithExtractThreads(n int) Option {
	return func(c *Client) { c.extractThreads = n }
}

// NewClient returns a snapshot client with default timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		Logger:     log.New(io.Discard, "", 0),
		httpClient: &http.Client{Timeout: downloadTimeout},
		freeBytes:  defaultFreeBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) partURL(name string) string {
	return c.BaseURL + "/" + name
}

// DiscoverParts probes the numbered archive volumes (cache.z01, cache.z02,
// ...) and returns the names that exist, always terminated by the final
// cache.zip. Probing stops after three consecutive misses once past volume
// eight.
func (c *Client) DiscoverParts(ctx context.Context) ([]string, error) {
	var parts []string
	misses := 0

	for idx := 1; idx <= maxArchiveParts; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("cache.z%02d", idx)
		exists, err := c.headExists(ctx, c.partURL(name))
		if err != nil || !exists {
			misses++
		} else {
			parts = append(parts, name)
			misses = 0
		}
		if misses >= 3 && idx > 8 {
			break
		}
	}

	parts = append(parts, FinalArchiveName)
	return parts, nil
}

func (c *Client) headExists(ctx context.Context, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// FetchIndexCreatedAt reads the archive's index resource and returns its
// creation timestamp, identifying the published epoch. Returns "" when the
// index is unreachable; epoch detection then degrades to per-file probing.
func (c *Client) FetchIndexCreatedAt(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.partURL("index.json"), nil)
	if err != nil {
		return ""
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Logger.Printf("index probe failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var index struct {
		Created json.Number `json:"created"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		c.Logger.Printf("index parse failed: %v", err)
		return ""
	}
	return index.Created.String()
}

// ProbeMetadata fetches size, entity tag and last-modified for every archive
// part via HEAD requests, without downloading content.
func (c *Client) ProbeMetadata(ctx context.Context, parts []string) (map[string]RemoteMeta, error) {
	var mu sync.Mutex
	remote := make(map[string]RemoteMeta, len(parts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for _, name := range parts {
		name := name
		g.Go(func() error {
			meta, err := c.probeOne(ctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			remote[name] = meta
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return remote, nil
}

func (c *Client) probeOne(ctx context.Context, name string) (RemoteMeta, error) {
	url := c.partURL(name)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return RemoteMeta{}, &NetworkError{Op: "HEAD", URL: url, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RemoteMeta{}, &NetworkError{Op: "HEAD", URL: url, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RemoteMeta{}, &NetworkError{
			Op: "HEAD", URL: url,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	return RemoteMeta{
		Size:         size,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		URL:          url,
	}, nil
}

// sortedNames returns map keys in stable order for logs and manifests.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
