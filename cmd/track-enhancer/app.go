package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/justestif/radio-track-enhancer/internal/config"
	"github.com/justestif/radio-track-enhancer/internal/db"
	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/enhance"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
	"github.com/justestif/radio-track-enhancer/internal/youtube"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger hclog.Logger
	db     *db.DB

	ytLimiter *ratelimit.Limiter
	dgLimiter *ratelimit.Limiter

	youtube *youtube.Client
	discogs *discogs.Client
	service *enhance.Service
}

// newApp wires clients and the enhancement service. With a database URL
// the quota counters, match cache and batch history live in PostgreSQL;
// without one everything stays in memory.
func newApp(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var store ratelimit.QuotaStore = ratelimit.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		a.db = database
		store = database.Quotas()
	}

	a.ytLimiter = ratelimit.New(cfg.YouTubeLimits(),
		ratelimit.WithStore(store),
		ratelimit.WithLogger(logger.Named("ratelimit")))
	a.dgLimiter = ratelimit.New(cfg.DiscogsLimits(),
		ratelimit.WithStore(store),
		ratelimit.WithLogger(logger.Named("ratelimit")))

	ytCfg := &youtube.Config{APIKey: cfg.YouTube.APIKey}
	if err := ytCfg.Validate(); err != nil {
		logger.Warn("YouTube lookups will be skipped", "reason", err)
	}
	dgCfg := &discogs.Config{Token: cfg.Discogs.Token, UserAgent: cfg.Discogs.UserAgent}
	if err := dgCfg.Validate(); err != nil {
		logger.Warn("Discogs lookups will be skipped", "reason", err)
	}

	a.youtube = youtube.NewClient(ytCfg,
		youtube.WithLimiter(a.ytLimiter),
		youtube.WithLogger(logger.Named("youtube")))
	a.discogs = discogs.NewClient(dgCfg,
		discogs.WithLimiter(a.dgLimiter),
		discogs.WithLogger(logger.Named("discogs")))

	var (
		yt enhance.VideoSearcher  = a.youtube
		dg enhance.ArtistResolver = a.discogs
	)
	opts := []enhance.Option{
		enhance.WithLogger(logger.Named("enhance")),
		enhance.WithQuotaReporter(ratelimit.ProviderYouTube, a.ytLimiter),
		enhance.WithQuotaReporter(ratelimit.ProviderDiscogs, a.dgLimiter),
	}
	if a.db != nil {
		matches := a.db.Matches()
		yt = enhance.NewCachedYouTube(matches, a.youtube, logger.Named("cache"))
		dg = enhance.NewCachedDiscogs(matches, a.discogs, logger.Named("cache"))
		opts = append(opts, enhance.WithBatchStore(a.db.Batches()))
	}
	a.service = enhance.NewService(yt, dg, opts...)

	return a, nil
}

// batchOptions returns the configured default batch options.
func (a *app) batchOptions() enhance.Options {
	opts := enhance.DefaultOptions()
	opts.SkipExisting = a.cfg.Enhance.SkipExisting
	opts.ConcurrentPhases = a.cfg.Enhance.ConcurrentPhases
	return opts
}

// pruneCache drops cached matches past their TTL.
func (a *app) pruneCache(ctx context.Context) {
	if a.db == nil {
		return
	}
	n, err := a.db.Matches().DeleteStale(ctx, time.Now().Add(-enhance.CacheTTL))
	if err != nil {
		a.logger.Warn("pruning match cache", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("pruned stale cached matches", "count", n)
	}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
