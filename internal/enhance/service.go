// Package enhance enriches playlist tracks with YouTube videos and Discogs
// artists while keeping each provider within its rate limits.
package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/radio-track-enhancer/internal/db"
	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/normalize"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
	"github.com/justestif/radio-track-enhancer/internal/youtube"
)

// ErrInvalidProvider is returned by QuotaStatus for an unknown provider.
var ErrInvalidProvider = errors.New("invalid provider")

// VideoSearcher abstracts the YouTube client for testing.
type VideoSearcher interface {
	Configured() bool
	Search(ctx context.Context, artist, track string, opts ...youtube.SearchOption) (*youtube.Match, error)
}

// ArtistResolver abstracts the Discogs client for testing.
type ArtistResolver interface {
	Configured() bool
	SearchArtist(ctx context.Context, name string) (*discogs.ArtistMatch, error)
}

// QuotaReporter exposes a provider budget. *ratelimit.Limiter implements it.
type QuotaReporter interface {
	Status(ctx context.Context) ratelimit.Status
}

// BatchStore persists batch records. *db.BatchRepository implements it.
type BatchStore interface {
	Create(ctx context.Context, b *db.Batch) error
}

// Service orchestrates enhancement batches.
type Service struct {
	youtube VideoSearcher
	discogs ArtistResolver
	quotas  map[string]QuotaReporter
	batches BatchStore
	logger  hclog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQuotaReporter registers the budget reported for provider.
func WithQuotaReporter(provider string, r QuotaReporter) Option {
	return func(s *Service) {
		if r != nil {
			s.quotas[provider] = r
		}
	}
}

// WithBatchStore records every finished batch.
func WithBatchStore(store BatchStore) Option {
	return func(s *Service) { s.batches = store }
}

// NewService creates an enhancement service. Either provider may be nil,
// in which case its lookups are skipped.
func NewService(yt VideoSearcher, dg ArtistResolver, opts ...Option) *Service {
	s := &Service{
		youtube: yt,
		discogs: dg,
		quotas:  make(map[string]QuotaReporter),
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuotaStatus returns the current budget of provider.
func (s *Service) QuotaStatus(ctx context.Context, provider string) (ratelimit.Status, error) {
	switch provider {
	case ratelimit.ProviderYouTube, ratelimit.ProviderDiscogs:
	default:
		return ratelimit.Status{}, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	return s.quotaSnapshot(ctx, provider), nil
}

func (s *Service) quotaSnapshot(ctx context.Context, provider string) ratelimit.Status {
	if r, ok := s.quotas[provider]; ok {
		return r.Status(ctx)
	}
	return ratelimit.Status{Provider: provider}
}

// lookup is one deduplicated provider call and the tracks it serves.
type lookup struct {
	key     string
	label   string
	artist  string
	track   string
	indices []int
}

type outcome[T any] struct {
	match *T
	err   error
}

// EnhanceBatch looks up every track on the enabled providers. A failing
// lookup only marks the tracks it serves as failed. The returned Result is
// always complete; the error is non-nil only when ctx ended early.
func (s *Service) EnhanceBatch(ctx context.Context, tracks []TrackQuery, opts Options) (*Result, error) {
	res := &Result{
		BatchID:   uuid.New(),
		Tracks:    make([]EnhancedTrack, len(tracks)),
		StartedAt: time.Now(),
	}
	for i, t := range tracks {
		res.Tracks[i] = EnhancedTrack{TrackQuery: t}
	}

	ytWork := s.planYouTube(res.Tracks, opts)
	dgWork := s.planDiscogs(res.Tracks, opts)

	logger := s.logger.With("batch_id", res.BatchID)
	logger.Info("starting enhancement batch",
		"tracks", len(tracks),
		"youtube_lookups", len(ytWork),
		"discogs_lookups", len(dgWork),
		"concurrent", opts.ConcurrentPhases)

	prog := &progress{total: len(ytWork) + len(dgWork), fn: opts.OnProgress}
	watch := &quotaWatch{svc: s, logger: logger, fn: opts.OnQuotaWarning, warned: make(map[string]bool)}

	var (
		ytOut map[string]outcome[youtube.Match]
		dgOut map[string]outcome[discogs.ArtistMatch]
	)
	runYouTube := func(ctx context.Context) {
		ytOut = runPhase(ctx, logger, PhaseYouTube, ytWork, prog, watch,
			func(ctx context.Context, l *lookup) (*youtube.Match, error) {
				return s.youtube.Search(ctx, l.artist, l.track)
			})
	}
	runDiscogs := func(ctx context.Context) {
		dgOut = runPhase(ctx, logger, PhaseDiscogs, dgWork, prog, watch,
			func(ctx context.Context, l *lookup) (*discogs.ArtistMatch, error) {
				return s.discogs.SearchArtist(ctx, l.artist)
			})
	}

	if opts.ConcurrentPhases {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { runYouTube(gctx); return gctx.Err() })
		g.Go(func() error { runDiscogs(gctx); return gctx.Err() })
		if err := g.Wait(); err != nil {
			logger.Warn("enhancement phases interrupted", "error", err)
		}
	} else {
		runYouTube(ctx)
		runDiscogs(ctx)
	}

	mergeYouTube(res.Tracks, ytWork, ytOut)
	mergeDiscogs(res.Tracks, dgWork, dgOut)

	res.Summary = summarize(res.Tracks)
	res.QuotaUsage = QuotaUsage{
		YouTube: s.quotaSnapshot(ctx, ratelimit.ProviderYouTube),
		Discogs: s.quotaSnapshot(ctx, ratelimit.ProviderDiscogs),
	}
	res.FinishedAt = time.Now()

	logger.Info("enhancement batch finished",
		"total", res.Summary.Total,
		"youtube_found", res.Summary.YouTube.Found,
		"youtube_failed", res.Summary.YouTube.Failed,
		"discogs_found", res.Summary.Discogs.Found,
		"discogs_failed", res.Summary.Discogs.Failed,
		"duration", res.FinishedAt.Sub(res.StartedAt))

	s.record(context.WithoutCancel(ctx), logger, res)

	return res, ctx.Err()
}

// planYouTube marks skipped tracks and groups the rest by (artist, track).
func (s *Service) planYouTube(tracks []EnhancedTrack, opts Options) []*lookup {
	if !opts.EnableYouTube || s.youtube == nil || !s.youtube.Configured() {
		for i := range tracks {
			tracks[i].Status.YouTube = StatusSkipped
		}
		return nil
	}

	var work []*lookup
	byKey := make(map[string]*lookup)
	for i := range tracks {
		t := &tracks[i]
		if opts.SkipExisting && t.YouTubeURL != "" {
			t.Status.YouTube = StatusSkipped
			t.YouTubeMatch = youtube.MatchFromURL(t.YouTubeURL)
			continue
		}
		artist, name := normalize.Query(t.Artist), normalize.Query(t.TrackName)
		if artist == "" || name == "" {
			t.Status.YouTube = StatusFailed
			t.Errors = append(t.Errors, "youtube: missing artist or track name")
			continue
		}

		key := normalize.Key(artist) + "\x00" + normalize.Key(name)
		l, ok := byKey[key]
		if !ok {
			l = &lookup{key: key, label: artist + " - " + name, artist: artist, track: name}
			byKey[key] = l
			work = append(work, l)
		}
		l.indices = append(l.indices, i)
	}
	return work
}

// planDiscogs marks skipped tracks and groups the rest by lower-cased artist.
func (s *Service) planDiscogs(tracks []EnhancedTrack, opts Options) []*lookup {
	if !opts.EnableDiscogs || s.discogs == nil || !s.discogs.Configured() {
		for i := range tracks {
			tracks[i].Status.Discogs = StatusSkipped
		}
		return nil
	}

	var work []*lookup
	byKey := make(map[string]*lookup)
	for i := range tracks {
		t := &tracks[i]
		if opts.SkipExisting && t.DiscogsURL != "" {
			t.Status.Discogs = StatusSkipped
			continue
		}
		artist := normalize.Query(t.Artist)
		if artist == "" {
			t.Status.Discogs = StatusFailed
			t.Errors = append(t.Errors, "discogs: missing artist name")
			continue
		}

		key := normalize.Key(artist)
		l, ok := byKey[key]
		if !ok {
			l = &lookup{key: key, label: artist, artist: artist}
			byKey[key] = l
			work = append(work, l)
		}
		l.indices = append(l.indices, i)
	}
	return work
}

// runPhase performs the lookups of one provider in order. Provider errors
// are logged and kept per lookup; they never stop the phase.
func runPhase[T any](
	ctx context.Context,
	logger hclog.Logger,
	phase Phase,
	work []*lookup,
	prog *progress,
	watch *quotaWatch,
	fetch func(context.Context, *lookup) (*T, error),
) map[string]outcome[T] {
	out := make(map[string]outcome[T], len(work))
	if len(work) > 0 {
		watch.check(ctx, string(phase))
	}

	for _, l := range work {
		if err := ctx.Err(); err != nil {
			out[l.key] = outcome[T]{err: err}
			continue
		}

		match, err := fetch(ctx, l)
		if err != nil {
			logger.Warn("provider lookup failed",
				"provider", phase,
				"artist", l.artist,
				"track", l.track,
				"error", err)
		}
		out[l.key] = outcome[T]{match: match, err: err}

		prog.step(l.label, phase)
		watch.check(ctx, string(phase))
	}
	return out
}

func mergeYouTube(tracks []EnhancedTrack, work []*lookup, out map[string]outcome[youtube.Match]) {
	for _, l := range work {
		o := out[l.key]
		for _, i := range l.indices {
			t := &tracks[i]
			switch {
			case o.err != nil:
				t.Status.YouTube = StatusFailed
				t.Errors = append(t.Errors, "youtube: "+o.err.Error())
			case o.match == nil:
				t.Status.YouTube = StatusFailed
			default:
				t.Status.YouTube = StatusSuccess
				t.YouTubeMatch = o.match
			}
		}
	}
}

func mergeDiscogs(tracks []EnhancedTrack, work []*lookup, out map[string]outcome[discogs.ArtistMatch]) {
	for _, l := range work {
		o := out[l.key]
		for _, i := range l.indices {
			t := &tracks[i]
			switch {
			case o.err != nil:
				t.Status.Discogs = StatusFailed
				t.Errors = append(t.Errors, "discogs: "+o.err.Error())
			case o.match == nil:
				t.Status.Discogs = StatusFailed
			default:
				t.Status.Discogs = StatusSuccess
				t.DiscogsMatch = o.match
			}
		}
	}
}

func summarize(tracks []EnhancedTrack) Summary {
	sum := Summary{Total: len(tracks)}
	for _, t := range tracks {
		count(&sum.YouTube, t.Status.YouTube)
		count(&sum.Discogs, t.Status.Discogs)
	}
	return sum
}

func count(ps *ProviderSummary, st Status) {
	switch st {
	case StatusSuccess:
		ps.Found++
	case StatusFailed:
		ps.Failed++
	case StatusSkipped:
		ps.Skipped++
	}
}

func (s *Service) record(ctx context.Context, logger hclog.Logger, res *Result) {
	if s.batches == nil {
		return
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		logger.Warn("encoding batch summary", "error", err)
		return
	}
	quota, err := json.Marshal(res.QuotaUsage)
	if err != nil {
		logger.Warn("encoding batch quota usage", "error", err)
		return
	}
	err = s.batches.Create(ctx, &db.Batch{
		ID:         res.BatchID,
		TrackCount: len(res.Tracks),
		Summary:    summary,
		QuotaUsage: quota,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
	if err != nil {
		logger.Warn("recording batch", "error", err)
	}
}

// progress serializes OnProgress callbacks across phases.
type progress struct {
	mu        sync.Mutex
	completed int
	total     int
	fn        ProgressFunc
}

func (p *progress) step(label string, phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.fn != nil {
		p.fn(p.completed, p.total, label, phase)
	}
}

// quotaWatch fires the quota warning at most once per provider.
type quotaWatch struct {
	svc    *Service
	logger hclog.Logger
	fn     QuotaWarningFunc

	mu     sync.Mutex
	warned map[string]bool
}

func (w *quotaWatch) check(ctx context.Context, provider string) {
	if _, ok := w.svc.quotas[provider]; !ok {
		return
	}
	st := w.svc.quotaSnapshot(ctx, provider)
	if st.Max == 0 || st.PercentUsed < QuotaWarningThreshold {
		return
	}

	w.mu.Lock()
	if w.warned[provider] {
		w.mu.Unlock()
		return
	}
	w.warned[provider] = true
	w.mu.Unlock()

	w.logger.Warn("provider quota nearly exhausted",
		"provider", provider,
		"used", st.Used,
		"max", st.Max,
		"percent_used", st.PercentUsed)
	if w.fn != nil {
		w.fn(provider, st)
	}
}
