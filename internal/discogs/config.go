// Package discogs resolves artists and their discographies against the
// Discogs API.
package discogs

import "errors"

// DefaultUserAgent identifies this client to Discogs, which rejects
// requests without a User-Agent.
const DefaultUserAgent = "RadioTrackEnhancer/1.0 +https://github.com/justestif/radio-track-enhancer"

// ErrMissingToken is returned when no personal access token is configured.
var ErrMissingToken = errors.New("discogs: no token configured (set DISCOGS_API_TOKEN or discogs.token)")

// Config holds Discogs API configuration.
type Config struct {
	Token     string
	UserAgent string
}

// Validate fills in the default User-Agent and returns ErrMissingToken
// when the token is empty.
func (c *Config) Validate() error {
	if c == nil {
		return ErrMissingToken
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	return nil
}
