package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultSearchLimit bounds directory queries when the caller does not
// supply a limit
const DefaultSearchLimit = 10

// ClientConfig holds directory gateway connection settings
type ClientConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	CacheSize    int
	CacheTTL     time.Duration
}

// Client queries the directory gateway's REST search endpoint using an
// OAuth2 client-credentials grant. Results are cached in an expiring LRU so
// repeated grant attempts for the same identifier do not hammer the gateway.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *lru.LRU[string, []Identity]
}

// NewClient creates a new directory gateway client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	var httpClient *http.Client
	if cfg.TokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = creds.Client(context.Background())
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpClient,
		cache:   lru.NewLRU[string, []Identity](cacheSize, nil, cacheTTL),
	}, nil
}

// Search queries the gateway for identities matching the term. The limit is
// clamped to DefaultSearchLimit when non-positive.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Identity, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	cacheKey := strconv.Itoa(limit) + "|" + query
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached, nil
	}

	endpoint, err := url.Parse(c.baseURL + "/v1/identities/search")
	if err != nil {
		return nil, fmt.Errorf("invalid directory URL: %w", err)
	}
	params := endpoint.Query()
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Identities []Identity `json:"identities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}

	if len(payload.Identities) > limit {
		payload.Identities = payload.Identities[:limit]
	}

	c.cache.Add(cacheKey, payload.Identities)
	return payload.Identities, nil
}
