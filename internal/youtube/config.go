// Package youtube searches the YouTube Data API v3 for the video that best
// matches an artist and track name.
package youtube

import "errors"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("youtube: no API key configured (set YOUTUBE_API_KEY or youtube.api_key)")

// Config holds YouTube Data API configuration.
type Config struct {
	APIKey string
}

// Validate returns ErrMissingAPIKey when the key is empty. A client built
// from an invalid config still works; every search reports "skipped".
func (c *Config) Validate() error {
	if c == nil || c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
