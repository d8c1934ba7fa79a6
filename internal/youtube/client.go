package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	ytdl "github.com/kkdai/youtube/v2"

	"github.com/justestif/radio-track-enhancer/internal/normalize"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

const (
	baseURL   = "https://www.googleapis.com/youtube/v3"
	watchURL  = "https://www.youtube.com/watch?v="
	userAgent = "radio-track-enhancer/1.0"
)

// ErrQuotaExceeded is returned when YouTube reports the daily quota as spent.
var ErrQuotaExceeded = errors.New("youtube quota exceeded")

// Client is a YouTube Data API search client. Every request goes through
// the client's rate limiter.
type Client struct {
	apiKey      string
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

// WithLimiter sets the rate limiter. It must be dedicated to YouTube.
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

// NewClient creates a YouTube client. A nil cfg or empty key yields a client
// whose searches return no match without touching the network.
func NewClient(cfg *Config, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:     baseURL,
		logger:      hclog.NewNullLogger(),
		retryDelays: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	if cfg != nil {
		c.apiKey = cfg.APIKey
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.YouTubeDefaults(), ratelimit.WithLogger(c.logger))
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Limiter returns the client's rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// SearchOptions tune a single search call.
type SearchOptions struct {
	MaxResults int
	SafeSearch string
}

// SearchOption configures SearchOptions.
type SearchOption func(*SearchOptions)

// WithMaxResults sets maxResults. Only the first item is ever used.
func WithMaxResults(n int) SearchOption {
	return func(o *SearchOptions) {
		if n > 0 {
			o.MaxResults = n
		}
	}
}

// WithSafeSearch sets the safeSearch level (none, moderate, strict).
func WithSafeSearch(level string) SearchOption {
	return func(o *SearchOptions) {
		if level != "" {
			o.SafeSearch = level
		}
	}
}

// Search returns the provider's top video for "{artist} {track}", or nil if
// the top hit is not a video or nothing matched. When the client has no API
// key it returns nil without error and spends no quota.
func (c *Client) Search(ctx context.Context, artist, track string, opts ...SearchOption) (*Match, error) {
	if !c.Configured() {
		c.logger.Debug("youtube search skipped, client not configured", "artist", artist, "track", track)
		return nil, nil
	}

	so := SearchOptions{MaxResults: 1, SafeSearch: "moderate"}
	for _, opt := range opts {
		opt(&so)
	}

	query := normalize.Query(normalize.Query(artist) + " " + normalize.Query(track))
	if query == "" {
		return nil, nil
	}

	params := url.Values{
		"part":       {"snippet"},
		"q":          {query},
		"key":        {c.apiKey},
		"maxResults": {fmt.Sprint(so.MaxResults)},
		"safeSearch": {so.SafeSearch},
		"order":      {"relevance"},
		"type":       {"video"},
	}

	body, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("searching youtube for %q: %w", query, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing youtube search response: %w", err)
	}

	if len(resp.Items) == 0 {
		return nil, nil
	}
	item := resp.Items[0]
	if item.ID.VideoID == "" {
		// Top hit resolved to a channel or playlist.
		return nil, nil
	}

	return &Match{
		VideoID:      item.ID.VideoID,
		Title:        item.Snippet.Title,
		ChannelTitle: item.Snippet.ChannelTitle,
		ThumbnailURL: pickThumbnail(item.Snippet.Thumbnails),
		VideoURL:     watchURL + item.ID.VideoID,
		PublishedAt:  item.Snippet.PublishedAt,
	}, nil
}

func pickThumbnail(thumbs map[string]thumbnail) string {
	if t, ok := thumbs["medium"]; ok && t.URL != "" {
		return t.URL
	}
	if t, ok := thumbs["default"]; ok {
		return t.URL
	}
	return ""
}

// VideoIDFromURL extracts the video ID from a YouTube watch, short or embed
// URL. It returns "" if s does not reference a video.
func VideoIDFromURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "youtube.com" && host != "m.youtube.com" && host != "music.youtube.com" && host != "youtu.be" {
		return ""
	}
	id, err := ytdl.ExtractVideoID(s)
	if err != nil {
		return ""
	}
	return id
}

// MatchFromURL returns a Match carrying the video ID and canonical watch URL
// of an existing link, or nil if s does not reference a video.
func MatchFromURL(s string) *Match {
	id := VideoIDFromURL(s)
	if id == "" {
		return nil
	}
	return &Match{VideoID: id, VideoURL: watchURL + id}
}

// doRequest performs a rate-limited GET, retrying transient failures.
// Each attempt is a separate limiter task, so retries are budgeted too.
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

		if errors.Is(err, ErrQuotaExceeded) {
			if markErr := c.limiter.MarkExhausted(ctx); markErr != nil {
				c.logger.Warn("recording exhausted youtube quota", "error", markErr)
			}
			return nil, err
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			c.logger.Debug("retrying youtube request", "attempt", attempt+1, "status", apiErr.StatusCode)
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
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

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
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		if len(envelope.Error.Errors) > 0 {
			apiErr.Reason = envelope.Error.Errors[0].Reason
		}
	}

	switch apiErr.Reason {
	case "quotaExceeded", "dailyLimitExceeded":
		return nil, fmt.Errorf("%w: %w", ErrQuotaExceeded, apiErr)
	}
	return nil, apiErr
}
