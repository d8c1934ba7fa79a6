package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/justestif/radio-track-enhancer/internal/db"
	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/enhance"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

// MaxBatchSize bounds the number of tracks accepted per enhance request.
const MaxBatchSize = 1000

// maxBodyBytes bounds an enhance request body, well above MaxBatchSize
// tracks with every field filled.
const maxBodyBytes = 4 << 20

const (
	defaultBatchLimit = 20
	maxBatchLimit     = 100
)

// Enhancer runs enhancement batches. *enhance.Service implements it.
type Enhancer interface {
	EnhanceBatch(ctx context.Context, tracks []enhance.TrackQuery, opts enhance.Options) (*enhance.Result, error)
	QuotaStatus(ctx context.Context, provider string) (ratelimit.Status, error)
}

// DiscographyFetcher lists artist releases. *discogs.Client implements it.
type DiscographyFetcher interface {
	GetDiscography(ctx context.Context, artistID int, opts discogs.DiscographyOptions) ([]discogs.Release, error)
}

// BatchReader looks up recorded batches. *db.BatchRepository implements it.
type BatchReader interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Batch, error)
	ListRecent(ctx context.Context, limit int) ([]db.Batch, error)
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	enhancer    Enhancer
	discography DiscographyFetcher
	batches     BatchReader
	defaults    enhance.Options
	logger      hclog.Logger
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithBatchReader enables the /api/v1/batches routes.
func WithBatchReader(b BatchReader) HandlerOption {
	return func(h *Handlers) { h.batches = b }
}

// WithDefaults sets the options used when a request leaves them out.
func WithDefaults(opts enhance.Options) HandlerOption {
	return func(h *Handlers) { h.defaults = opts }
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) HandlerOption {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(enhancer Enhancer, discography DiscographyFetcher, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		enhancer:    enhancer,
		discography: discography,
		defaults:    enhance.DefaultOptions(),
		logger:      hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// enhanceRequest is the body of POST /api/v1/enhance. Nil flags fall back
// to the server defaults.
type enhanceRequest struct {
	Tracks           []enhance.TrackQuery `json:"tracks"`
	EnableYouTube    *bool                `json:"enable_youtube,omitempty"`
	EnableDiscogs    *bool                `json:"enable_discogs,omitempty"`
	SkipExisting     *bool                `json:"skip_existing,omitempty"`
	ConcurrentPhases *bool                `json:"concurrent_phases,omitempty"`
}

func (req enhanceRequest) options(defaults enhance.Options) enhance.Options {
	opts := defaults
	if req.EnableYouTube != nil {
		opts.EnableYouTube = *req.EnableYouTube
	}
	if req.EnableDiscogs != nil {
		opts.EnableDiscogs = *req.EnableDiscogs
	}
	if req.SkipExisting != nil {
		opts.SkipExisting = *req.SkipExisting
	}
	if req.ConcurrentPhases != nil {
		opts.ConcurrentPhases = *req.ConcurrentPhases
	}
	return opts
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Enhance runs a batch (POST /api/v1/enhance). Clients that accept
// text/event-stream receive progress events followed by the result.
func (h *Handlers) Enhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Tracks) > MaxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge, "too many tracks, max "+strconv.Itoa(MaxBatchSize))
		return
	}
	opts := req.options(h.defaults)

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamEnhance(w, r, req.Tracks, opts)
		return
	}

	res, err := h.enhancer.EnhanceBatch(r.Context(), req.Tracks, opts)
	if err != nil {
		h.logger.Warn("enhancement batch interrupted", "error", err)
		if res == nil {
			writeError(w, http.StatusInternalServerError, "enhancement failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) streamEnhance(w http.ResponseWriter, r *http.Request, tracks []enhance.TrackQuery, opts enhance.Options) {
	stream, err := newEventStream(w, h.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts.OnProgress = func(completed, total int, current string, phase enhance.Phase) {
		stream.send("progress", map[string]any{
			"completed": completed,
			"total":     total,
			"current":   current,
			"phase":     phase,
		})
	}
	opts.OnQuotaWarning = func(provider string, st ratelimit.Status) {
		stream.send("quota_warning", st)
	}

	res, err := h.enhancer.EnhanceBatch(r.Context(), tracks, opts)
	if err != nil {
		h.logger.Info("client disconnected during batch", "error", err)
		return
	}
	stream.send("complete", res)
}

// Quota handles GET /api/v1/quota.
func (h *Handlers) Quota(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]ratelimit.Status, 2)
	for _, p := range []string{ratelimit.ProviderYouTube, ratelimit.ProviderDiscogs} {
		st, err := h.enhancer.QuotaStatus(r.Context(), p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out[p] = st
	}
	writeJSON(w, http.StatusOK, out)
}

// ProviderQuota handles GET /api/v1/quota/{provider}.
func (h *Handlers) ProviderQuota(w http.ResponseWriter, r *http.Request) {
	st, err := h.enhancer.QuotaStatus(r.Context(), chi.URLParam(r, "provider"))
	if errors.Is(err, enhance.ErrInvalidProvider) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Discography handles GET /api/v1/discogs/artists/{id}/releases.
func (h *Handlers) Discography(w http.ResponseWriter, r *http.Request) {
	if h.discography == nil {
		writeError(w, http.StatusServiceUnavailable, "discogs is not configured")
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid artist id")
		return
	}

	opts, err := discographyOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	releases, err := h.discography.GetDiscography(r.Context(), id, opts)
	switch {
	case errors.Is(err, discogs.ErrNotFound):
		writeError(w, http.StatusNotFound, "artist not found")
		return
	case err != nil:
		h.logger.Warn("fetching discography", "artist_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "fetching discography failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artist_id": id,
		"releases":  releases,
	})
}

func discographyOptions(r *http.Request) (discogs.DiscographyOptions, error) {
	q := r.URL.Query()
	var opts discogs.DiscographyOptions

	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.New("max must be a positive integer")
		}
		opts.MaxResults = n
	}
	switch v := q.Get("sort"); v {
	case "", "year", "title", "format":
		opts.Sort = v
	default:
		return opts, errors.New("sort must be one of year, title, format")
	}
	switch v := q.Get("order"); v {
	case "", "asc", "desc":
		opts.SortOrder = v
	default:
		return opts, errors.New("order must be asc or desc")
	}
	if v := q.Get("details"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("details must be a boolean")
		}
		opts.IncludeDetails = b
	}
	return opts, nil
}

// batchResponse is a recorded batch as returned by the API.
type batchResponse struct {
	ID         uuid.UUID       `json:"id"`
	TrackCount int             `json:"track_count"`
	Summary    json.RawMessage `json:"summary"`
	QuotaUsage json.RawMessage `json:"quota_usage"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
}

func toBatchResponse(b *db.Batch) batchResponse {
	return batchResponse{
		ID:         b.ID,
		TrackCount: b.TrackCount,
		Summary:    b.Summary,
		QuotaUsage: b.QuotaUsage,
		StartedAt:  b.StartedAt.UTC().Format(timeLayout),
		FinishedAt: b.FinishedAt.UTC().Format(timeLayout),
	}
}

// Batches handles GET /api/v1/batches?limit=N.
func (h *Handlers) Batches(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "batch history requires a database")
		return
	}

	limit := defaultBatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxBatchLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxBatchLimit))
			return
		}
		limit = n
	}

	batches, err := h.batches.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Warn("listing batches", "error", err)
		writeError(w, http.StatusInternalServerError, "listing batches failed")
		return
	}

	out := make([]batchResponse, len(batches))
	for i := range batches {
		out[i] = toBatchResponse(&batches[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// Batch handles GET /api/v1/batches/{id}.
func (h *Handlers) Batch(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "batch history requires a database")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	b, err := h.batches.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		h.logger.Warn("loading batch", "batch_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "loading batch failed")
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(b))
}

var (
	_ Enhancer           = (*enhance.Service)(nil)
	_ DiscographyFetcher = (*discogs.Client)(nil)
	_ BatchReader        = (*db.BatchRepository)(nil)
)
