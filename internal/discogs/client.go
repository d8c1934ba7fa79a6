package discogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

const (
	baseURL = "https://api.discogs.com"
	siteURL = "https://www.discogs.com"
)

// Client is a Discogs API client. Every request goes through the client's
// rate limiter.
type Client struct {
	token       string
	userAgent   string
	httpClient  *http.Client
	baseURL     string
	limiter     *ratelimit.Limiter
	logger      hclog.Logger
	retryDelays []time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter sets the rate limiter. It must be dedicated to Discogs.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryDelays sets the waits between retries of transient failures.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) { c.retryDelays = delays }
}

// NewClient creates a Discogs client. A nil cfg or empty token yields a
// client whose lookups return nothing without touching the network.
func NewClient(cfg *Config, opts ...Option) *Client {
	c := &Client{
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:     baseURL,
		logger:      hclog.NewNullLogger(),
		retryDelays: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
	if cfg != nil {
		c.token = cfg.Token
		if cfg.UserAgent != "" {
			c.userAgent = cfg.UserAgent
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.DiscogsDefaults(), ratelimit.WithLogger(c.logger))
	}
	return c
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Limiter returns the client's rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// get fetches path with params and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// doRequest performs a rate-limited GET, retrying transient failures.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelays[attempt-1]):
			}
		}

		body, err := ratelimit.Do(ctx, c.limiter, func(ctx context.Context) ([]byte, error) {
			return c.doSingleRequest(ctx, reqURL)
		})
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			c.logger.Debug("retrying discogs request", "attempt", attempt+1, "status", apiErr.StatusCode)
			lastErr = err
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Discogs token=%s", c.token))
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.discogs.v2.discogs+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
	}
	return nil, apiErr
}
