package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/util"
)

const (
	// DefaultBaseURL is the site the Prisme custom tables are downloaded from.
	// No trailing slash: table paths start with one.
	DefaultBaseURL = "http://www.documentation-sociale.org"

	// MasterPath is the path of the master table on the remote site.
	MasterPath = "/uploads/docalist-data/tables/master.txt"

	// UserAgent identifies this tool to the remote site
	UserAgent = "migration-prisme-2015/1.0.0 (+https://docalist.org/)"

	// MaxBodySize bounds a downloaded table.
	MaxBodySize = 32 << 20
)

// Client downloads text resources from the remote site
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	retryConfig *util.RetryConfig
	minInterval time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// Config holds client configuration
type Config struct {
	BaseURL     string            // Defaults to DefaultBaseURL
	Timeout     time.Duration     // Per request, defaults to 30s
	RetryConfig *util.RetryConfig // nil = util.DefaultRetryConfig()
	MinInterval time.Duration     // Minimum delay between two requests
	HTTPClient  *http.Client      // Optional, for tests
}

// NewClient creates a new remote client
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = util.DefaultRetryConfig()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     cfg.BaseURL,
		userAgent:   UserAgent,
		retryConfig: cfg.RetryConfig,
		minInterval: cfg.MinInterval,
	}
}

// BaseURL returns the remote site URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL of a path on the remote site
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Fetch downloads url and returns its body. Transient failures (timeouts,
// resets, 5xx, 429) are retried with backoff; the final error wraps
// util.ErrRemoteFetch.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := util.RetryWithBackoff(ctx, c.retryConfig, func() ([]byte, error) {
		return c.fetchOnce(ctx, url)
	}, "GET "+url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrRemoteFetch, url, err)
	}
	return data, nil
}

// FetchPath downloads a path of the remote site
func (c *Client) FetchPath(ctx context.Context, path string) ([]byte, error) {
	return c.Fetch(ctx, c.URL(path))
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	c.waitForRateLimit()

	util.DebugLog("Remote: GET %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &util.TransientError{Err: fmt.Errorf("server returned %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("response larger than %d bytes", MaxBodySize)
	}

	util.DebugLog("Remote: %s -> %d bytes", url, len(body))
	return body, nil
}

// waitForRateLimit spaces requests by at least minInterval
func (c *Client) waitForRateLimit() {
	if c.minInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}
