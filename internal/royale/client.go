package royale

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the official API; the RoyaleAPI proxy can be swapped in via config
	DefaultBaseURL = "https://api.clashroyale.com/v1"

	// Conservative limits for a developer token
	defaultRequestsPerSecond = 10
	defaultRequestsPerMinute = 400
)

// Client is a rate-limited Clash Royale API client
type Client struct {
	token      string
	baseURL    string
	location   string
	httpClient *http.Client
	logger     *zap.Logger

	// Rate limiting
	perSecond   int
	perMinute   int
	mu          sync.Mutex
	shortWindow []time.Time // Requests in last second
	longWindow  []time.Time // Requests in last minute
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClientBaseURL points the client at a different API root (proxy or test server)
func WithClientBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRateLimit overrides the per-second and per-minute request budgets
func WithRateLimit(perSecond, perMinute int) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.perSecond = perSecond
		}
		if perMinute > 0 {
			c.perMinute = perMinute
		}
	}
}

// WithHTTPTimeout sets the transport timeout for a single request
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLocation selects the leaderboard location (default "global")
func WithLocation(location string) ClientOption {
	return func(c *Client) {
		if location != "" {
			c.location = location
		}
	}
}

// WithLogger attaches a logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new API client
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("CR_API_TOKEN environment variable not set")
	}

	c := &Client{
		token:    token,
		baseURL:  DefaultBaseURL,
		location: "global",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      zap.NewNop(),
		perSecond:   defaultRequestsPerSecond,
		perMinute:   defaultRequestsPerMinute,
		shortWindow: make([]time.Time, 0),
		longWindow:  make([]time.Time, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// waitForRateLimit blocks until we can make another request or ctx is done
func (c *Client) waitForRateLimit(ctx context.Context) error {
	for {
		c.mu.Lock()

		now := time.Now()
		c.shortWindow = pruneBefore(c.shortWindow, now.Add(-time.Second))
		c.longWindow = pruneBefore(c.longWindow, now.Add(-time.Minute))

		var waitTime time.Duration
		switch {
		case len(c.shortWindow) >= c.perSecond:
			waitTime = c.shortWindow[0].Add(time.Second).Sub(now) + 50*time.Millisecond
		case len(c.longWindow) >= c.perMinute:
			waitTime = c.longWindow[0].Add(time.Minute).Sub(now) + 50*time.Millisecond
		}

		if waitTime <= 0 {
			c.shortWindow = append(c.shortWindow, now)
			c.longWindow = append(c.longWindow, now)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		c.logger.Debug("rate limit reached, waiting", zap.Duration("wait", waitTime))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

func pruneBefore(window []time.Time, cutoff time.Time) []time.Time {
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// doRequest makes a rate-limited GET request. 429 is not retried here:
// a rate-limited fetch is a per-participant failure for the caller.
func (c *Client) doRequest(ctx context.Context, path string, result interface{}) error {
	if err := c.waitForRateLimit(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &ProviderError{StatusCode: 0, Message: "failed to decode response", Err: err}
	}
	return nil
}

// FetchBattleLog fetches the recent battlelog for a player tag (e.g. "#8C8JJQLG")
func (c *Client) FetchBattleLog(ctx context.Context, tag string) ([]Battle, error) {
	path := fmt.Sprintf("/players/%s/battlelog", url.PathEscape(NormalizeTag(tag)))

	var battles []Battle
	if err := c.doRequest(ctx, path, &battles); err != nil {
		return nil, fmt.Errorf("battlelog %s: %w", tag, err)
	}
	return battles, nil
}

// TopPlayers fetches up to count player tags from the path of legend leaderboard, best first
func (c *Client) TopPlayers(ctx context.Context, count int) ([]string, error) {
	path := fmt.Sprintf("/locations/%s/pathoflegend/players?limit=%d", url.PathEscape(c.location), count)

	var rankings RankingsResponse
	if err := c.doRequest(ctx, path, &rankings); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	tags := make([]string, 0, len(rankings.Items))
	for _, p := range rankings.Items {
		if p.Tag == "" {
			continue
		}
		tags = append(tags, p.Tag)
	}
	return tags, nil
}

// GetPlayer fetches the player profile
func (c *Client) GetPlayer(ctx context.Context, tag string) (*PlayerResponse, error) {
	path := "/players/" + url.PathEscape(NormalizeTag(tag))

	var player PlayerResponse
	if err := c.doRequest(ctx, path, &player); err != nil {
		return nil, fmt.Errorf("player %s: %w", tag, err)
	}
	return &player, nil
}

// NormalizeTag uppercases a player tag and ensures the leading '#'
func NormalizeTag(tag string) string {
	out := make([]byte, 0, len(tag)+1)
	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		if ch == ' ' || ch == '\t' {
			continue
		}
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		out = append(out, ch)
	}
	if len(out) == 0 || out[0] != '#' {
		out = append([]byte{'#'}, out...)
	}
	return string(out)
}
