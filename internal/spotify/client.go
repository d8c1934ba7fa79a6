// Package spotify reads playlists and albums from the Spotify Web API as
// enhancement input.
package spotify

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMissingCredentials is returned when the client ID or secret is empty.
var ErrMissingCredentials = errors.New("SPOTIFY_ID and SPOTIFY_SECRET must be set")

// Credentials are the app credentials used for the client-credentials flow.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Validate returns ErrMissingCredentials unless both fields are set.
func (c *Credentials) Validate() error {
	if c == nil || c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    *spotify.Client
	logger hclog.Logger
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{api: api, logger: logger}
}

// NewWithCredentials authenticates with the client-credentials flow, which
// is enough for public playlists and albums.
func NewWithCredentials(ctx context.Context, creds *Credentials, logger hclog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return New(spotify.New(cfg.Client(ctx)), logger), nil
}
