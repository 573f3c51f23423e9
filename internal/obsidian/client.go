package obsidian

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"annotation-xref/internal/models"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// VaultHeader carries the profile name on every search request
const VaultHeader = "X-Obsidian-Vault"

// maxBodySize caps how much of a search response is read
const maxBodySize = 16 << 20

// ErrMalformedResponse is returned when a search response is not a JSON array
var ErrMalformedResponse = errors.New("malformed search response")

// Client talks to the Obsidian Local REST API of one vault
type Client struct {
	baseURL    string
	token      string
	vault      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
}

// Config for the Obsidian client
type Config struct {
	BaseURL            string
	Token              string
	Vault              string
	Timeout            time.Duration // per query; default 10s
	RequestsPerMinute  int           // 0 disables throttling
	InsecureSkipVerify bool          // the plugin's HTTPS port uses a self-signed certificate
	HTTPClient         *http.Client
}

// NewClient creates a new Obsidian client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("obsidian base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid obsidian base URL: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		httpClient = &http.Client{Transport: transport}
	}

	var limiter *RateLimiter
	if cfg.RequestsPerMinute > 0 {
		limiter = NewRateLimiter(cfg.RequestsPerMinute)
	}

	logger.Debug("Obsidian client initialized",
		zap.String("vault", cfg.Vault),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout))

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		vault:      cfg.Vault,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Resolve searches the vault for every key, one request per key in sorted
// order. A failed search yields no documents for that key and is recorded
// in Failures; it never stops the remaining searches.
func (c *Client) Resolve(ctx context.Context, keys []string) *models.Resolution {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	res := models.NewResolution()
	for _, key := range sorted {
		names, err := c.Search(ctx, key)
		if err != nil {
			c.logger.Warn("Obsidian search failed",
				zap.String("vault", c.vault),
				zap.String("key", key),
				zap.Error(err))
			res.Failures[key] = err
			names = []string{}
		}
		res.Documents[key] = names
	}

	c.logger.Info("Resolved annotation keys",
		zap.String("vault", c.vault),
		zap.Int("keys", len(sorted)),
		zap.Int("failed", len(res.Failures)))

	return res
}

// Search runs one simple search and returns the matching file names in
// the order the API returned them
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/search/simple/?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(VaultHeader, c.vault)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("obsidian returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return ParseFilenames(body)
}

// ParseFilenames extracts the string "filename" of every object in a JSON
// array. Elements that are not objects, or whose filename is missing or
// not a string, are skipped.
func ParseFilenames(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformedResponse, result.Type)
	}

	names := []string{}
	result.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		if name := value.Get("filename"); name.Type == gjson.String {
			names = append(names, name.String())
		}
		return true
	})
	return names, nil
}

// Ping checks that the REST API is reachable and accepts the token
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("obsidian health check failed with status %d", resp.StatusCode)
	}

	// The root endpoint answers without a token too; it reports whether ours was accepted
	if auth := gjson.GetBytes(body, "authenticated"); auth.Exists() && !auth.Bool() {
		return fmt.Errorf("obsidian rejected the token for vault %q", c.vault)
	}
	return nil
}

// Vault returns the profile name the client searches
func (c *Client) Vault() string {
	return c.vault
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
