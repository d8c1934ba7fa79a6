package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/justestif/radio-track-enhancer/internal/db"
	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/normalize"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
	"github.com/justestif/radio-track-enhancer/internal/youtube"
)

// CacheTTL is the duration after which cached matches are considered stale.
const CacheTTL = 30 * 24 * time.Hour // 30 days

// MatchStore persists provider matches. *db.MatchRepository implements it.
type MatchStore interface {
	Get(ctx context.Context, provider, key string) (*db.CachedMatch, error)
	Upsert(ctx context.Context, m db.CachedMatch) error
}

// CachedYouTube implements VideoSearcher with database persistence. Only
// found videos are cached, so a miss is retried on the next batch.
type CachedYouTube struct {
	store  MatchStore
	client VideoSearcher
	logger hclog.Logger
}

// NewCachedYouTube wraps client with store.
func NewCachedYouTube(store MatchStore, client VideoSearcher, logger hclog.Logger) *CachedYouTube {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CachedYouTube{store: store, client: client, logger: logger}
}

// Configured reports whether the wrapped client is configured.
func (c *CachedYouTube) Configured() bool {
	return c.client.Configured()
}

// Search returns a fresh cached match or queries YouTube and caches the result.
func (c *CachedYouTube) Search(ctx context.Context, artist, track string, opts ...youtube.SearchOption) (*youtube.Match, error) {
	key := normalize.Key(artist) + "\x00" + normalize.Key(track)

	var cached youtube.Match
	if lookupCache(ctx, c.store, c.logger, ratelimit.ProviderYouTube, key, &cached) {
		return &cached, nil
	}

	match, err := c.client.Search(ctx, artist, track, opts...)
	if err != nil || match == nil {
		return match, err
	}
	storeCache(ctx, c.store, c.logger, ratelimit.ProviderYouTube, key, match)
	return match, nil
}

// CachedDiscogs implements ArtistResolver with database persistence.
type CachedDiscogs struct {
	store  MatchStore
	client ArtistResolver
	logger hclog.Logger
}

// NewCachedDiscogs wraps client with store.
func NewCachedDiscogs(store MatchStore, client ArtistResolver, logger hclog.Logger) *CachedDiscogs {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CachedDiscogs{store: store, client: client, logger: logger}
}

// Configured reports whether the wrapped client is configured.
func (c *CachedDiscogs) Configured() bool {
	return c.client.Configured()
}

// SearchArtist returns a fresh cached artist or queries Discogs and caches
// the result.
func (c *CachedDiscogs) SearchArtist(ctx context.Context, name string) (*discogs.ArtistMatch, error) {
	key := normalize.Key(name)

	var cached discogs.ArtistMatch
	if lookupCache(ctx, c.store, c.logger, ratelimit.ProviderDiscogs, key, &cached) {
		return &cached, nil
	}

	match, err := c.client.SearchArtist(ctx, name)
	if err != nil || match == nil {
		return match, err
	}
	storeCache(ctx, c.store, c.logger, ratelimit.ProviderDiscogs, key, match)
	return match, nil
}

// lookupCache decodes a fresh cache entry into v. Store failures are
// logged and treated as misses.
func lookupCache(ctx context.Context, store MatchStore, logger hclog.Logger, provider, key string, v any) bool {
	m, err := store.Get(ctx, provider, key)
	if errors.Is(err, db.ErrNotFound) {
		return false
	}
	if err != nil {
		logger.Warn("reading match cache", "provider", provider, "error", err)
		return false
	}
	if m.FetchedAt.Before(time.Now().Add(-CacheTTL)) {
		return false
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		logger.Warn("decoding cached match", "provider", provider, "error", err)
		return false
	}
	return true
}

func storeCache(ctx context.Context, store MatchStore, logger hclog.Logger, provider, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Warn("encoding match for cache", "provider", provider, "error", err)
		return
	}
	err = store.Upsert(ctx, db.CachedMatch{
		Provider:  provider,
		LookupKey: key,
		Payload:   payload,
		FetchedAt: time.Now(),
	})
	if err != nil {
		logger.Warn("persisting match", "provider", provider, "error", err)
	}
}

var (
	_ VideoSearcher  = (*CachedYouTube)(nil)
	_ ArtistResolver = (*CachedDiscogs)(nil)
	_ VideoSearcher  = (*youtube.Client)(nil)
	_ ArtistResolver = (*discogs.Client)(nil)
	_ MatchStore     = (*db.MatchRepository)(nil)
	_ BatchStore     = (*db.BatchRepository)(nil)
	_ QuotaReporter  = (*ratelimit.Limiter)(nil)
)
