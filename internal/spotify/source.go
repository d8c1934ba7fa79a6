package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/radio-track-enhancer/internal/enhance"
)

// Kind is the type of collection a reference points at.
type Kind string

const (
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
)

// ErrUnsupportedRef is returned for references that are not a playlist or album.
var ErrUnsupportedRef = errors.New("unsupported spotify reference")

// ParseRef accepts an open.spotify.com URL, a spotify: URI, or a bare
// playlist ID.
func ParseRef(ref string) (Kind, spotify.ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedRef)
	}

	if strings.HasPrefix(ref, "spotify:") {
		parts := strings.Split(ref, ":")
		if len(parts) == 3 && parts[2] != "" {
			if kind, ok := toKind(parts[1]); ok {
				return kind, spotify.ID(parts[2]), nil
			}
		}
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}

	if !strings.Contains(ref, "/") {
		return KindPlaylist, spotify.ID(ref), nil
	}

	u, err := url.Parse(ref)
	if err != nil || !strings.HasSuffix(u.Hostname(), "spotify.com") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Localized links carry a leading segment such as intl-de.
	for i := 0; i+1 < len(segs); i++ {
		if kind, ok := toKind(segs[i]); ok && segs[i+1] != "" {
			return kind, spotify.ID(segs[i+1]), nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
}

func toKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindPlaylist, KindAlbum:
		return Kind(s), true
	}
	return "", false
}

// Tracks fetches every track of the referenced playlist or album and
// returns them as enhancement queries along with the collection name.
// Local files are left out.
func (c *Client) Tracks(ctx context.Context, ref string) ([]enhance.TrackQuery, string, error) {
	kind, id, err := ParseRef(ref)
	if err != nil {
		return nil, "", err
	}
	switch kind {
	case KindAlbum:
		return c.albumTracks(ctx, id)
	default:
		return c.playlistTracks(ctx, id)
	}
}

func (c *Client) playlistTracks(ctx context.Context, id spotify.ID) ([]enhance.TrackQuery, string, error) {
	pl, err := c.api.GetPlaylist(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("fetching playlist: %w", err)
	}

	var tracks []enhance.TrackQuery
	page := pl.Tracks
	for {
		for _, item := range page.Tracks {
			if item.IsLocal || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.SimpleTrack))
		}

		err = c.api.NextPage(ctx, &page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("fetching next playlist page: %w", err)
		}
	}

	c.logger.Debug("fetched playlist", "name", pl.Name, "tracks", len(tracks))
	return tracks, pl.Name, nil
}

func (c *Client) albumTracks(ctx context.Context, id spotify.ID) ([]enhance.TrackQuery, string, error) {
	album, err := c.api.GetAlbum(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("fetching album: %w", err)
	}

	var tracks []enhance.TrackQuery
	page := album.Tracks
	for {
		for _, t := range page.Tracks {
			if t.ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(t))
		}

		err = c.api.NextPage(ctx, &page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("fetching next album page: %w", err)
		}
	}

	c.logger.Debug("fetched album", "name", album.Name, "tracks", len(tracks))
	return tracks, album.Name, nil
}

// convertTrack maps a Spotify track to a query. Only the primary artist is
// used: provider lookups match one artist, not a credit list.
func convertTrack(t spotify.SimpleTrack) enhance.TrackQuery {
	var artist string
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return enhance.TrackQuery{
		Artist:     artist,
		TrackName:  t.Name,
		ExternalID: "spotify:track:" + t.ID.String(),
	}
}
