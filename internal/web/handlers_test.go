package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/radio-track-enhancer/internal/db"
	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/enhance"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

// fakeEnhancer implements Enhancer for testing.
type fakeEnhancer struct {
	mu       sync.Mutex
	gotOpts  enhance.Options
	gotCount int
	err      error
	quotas   map[string]ratelimit.Status
}

func (f *fakeEnhancer) EnhanceBatch(_ context.Context, tracks []enhance.TrackQuery, opts enhance.Options) (*enhance.Result, error) {
	f.mu.Lock()
	f.gotOpts = opts
	f.gotCount = len(tracks)
	f.mu.Unlock()

	res := &enhance.Result{BatchID: uuid.New(), Summary: enhance.Summary{Total: len(tracks)}}
	for i, t := range tracks {
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(tracks), t.Artist+" - "+t.TrackName, enhance.PhaseYouTube)
		}
		res.Tracks = append(res.Tracks, enhance.EnhancedTrack{
			TrackQuery: t,
			Status:     enhance.ProviderStatus{YouTube: enhance.StatusSuccess, Discogs: enhance.StatusSkipped},
		})
	}
	if opts.OnQuotaWarning != nil {
		opts.OnQuotaWarning(ratelimit.ProviderYouTube, ratelimit.Status{Provider: ratelimit.ProviderYouTube, PercentUsed: 85})
	}
	return res, f.err
}

func (f *fakeEnhancer) QuotaStatus(_ context.Context, provider string) (ratelimit.Status, error) {
	st, ok := f.quotas[provider]
	if !ok {
		return ratelimit.Status{}, fmt.Errorf("%w: %q", enhance.ErrInvalidProvider, provider)
	}
	return st, nil
}

// fakeDiscography implements DiscographyFetcher for testing.
type fakeDiscography struct {
	releases []discogs.Release
	err      error
	gotID    int
	gotOpts  discogs.DiscographyOptions
}

func (f *fakeDiscography) GetDiscography(_ context.Context, artistID int, opts discogs.DiscographyOptions) ([]discogs.Release, error) {
	f.gotID = artistID
	f.gotOpts = opts
	return f.releases, f.err
}

// fakeBatches implements BatchReader for testing.
type fakeBatches map[uuid.UUID]*db.Batch

func (f fakeBatches) Get(_ context.Context, id uuid.UUID) (*db.Batch, error) {
	b, ok := f[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return b, nil
}

func (f fakeBatches) ListRecent(_ context.Context, limit int) ([]db.Batch, error) {
	var out []db.Batch
	for _, b := range f {
		if len(out) == limit {
			break
		}
		out = append(out, *b)
	}
	return out, nil
}

func newTestServer(h *Handlers) http.Handler {
	return NewServer(ServerConfig{}, h).Handler()
}

func defaultQuotas() map[string]ratelimit.Status {
	return map[string]ratelimit.Status{
		ratelimit.ProviderYouTube: {Provider: ratelimit.ProviderYouTube, Used: 300, Max: 9000},
		ratelimit.ProviderDiscogs: {Provider: ratelimit.ProviderDiscogs, Used: 4, Max: 55},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(NewHandlers(&fakeEnhancer{}, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEnhance_JSON(t *testing.T) {
	enh := &fakeEnhancer{}
	srv := newTestServer(NewHandlers(enh, nil))

	body := `{"tracks":[{"artist":"Bonobo","track_name":"Kerala"},{"artist":"Khruangbin","track_name":"Maria También"}],"enable_discogs":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enhance", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res enhance.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(res.Tracks) != 2 || res.Summary.Total != 2 {
		t.Errorf("got %d tracks, total %d, want 2", len(res.Tracks), res.Summary.Total)
	}
	if res.Tracks[1].TrackName != "Maria También" {
		t.Errorf("track name = %q", res.Tracks[1].TrackName)
	}

	if enh.gotOpts.EnableDiscogs {
		t.Error("enable_discogs=false was not applied")
	}
	if !enh.gotOpts.EnableYouTube || !enh.gotOpts.SkipExisting {
		t.Errorf("defaults not applied: %+v", enh.gotOpts)
	}
	if enh.gotOpts.OnProgress != nil {
		t.Error("JSON mode should not register a progress callback")
	}
}

func TestEnhance_BadRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "invalid JSON",
			body:       `{"tracks":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too many tracks",
			body:       `{"tracks":[` + strings.Repeat(`{"artist":"a","track_name":"b"},`, MaxBatchSize) + `{"artist":"a","track_name":"b"}]}`,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "oversized body",
			body:       `{"tracks":[{"artist":"` + strings.Repeat("a", maxBodyBytes) + `","track_name":"b"}]}`,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enh := &fakeEnhancer{}
			srv := newTestServer(NewHandlers(enh, nil))

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/enhance", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if enh.gotCount != 0 {
				t.Error("enhancer should not be called for a rejected request")
			}
		})
	}
}

func TestEnhance_Interrupted(t *testing.T) {
	enh := &fakeEnhancer{err: context.Canceled}
	srv := newTestServer(NewHandlers(enh, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/enhance",
		strings.NewReader(`{"tracks":[{"artist":"a","track_name":"b"}]}`)))

	// The partial result is still well-formed and returned.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

func TestEnhance_Stream(t *testing.T) {
	enh := &fakeEnhancer{}
	srv := newTestServer(NewHandlers(enh, nil))

	body := `{"tracks":[{"artist":"Bonobo","track_name":"Kerala"},{"artist":"Floating Points","track_name":"LesAlpx"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enhance", strings.NewReader(body))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readEvents(t, rec.Body.String())
	var names []string
	for _, e := range events {
		names = append(names, e.name)
	}
	want := []string{"progress", "progress", "quota_warning", "complete"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}

	var prog struct {
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
		Current   string `json:"current"`
		Phase     string `json:"phase"`
	}
	if err := json.Unmarshal([]byte(events[1].data), &prog); err != nil {
		t.Fatalf("decoding progress: %v", err)
	}
	if prog.Completed != 2 || prog.Total != 2 || prog.Current != "Floating Points - LesAlpx" || prog.Phase != "youtube" {
		t.Errorf("progress = %+v", prog)
	}

	var res enhance.Result
	if err := json.Unmarshal([]byte(events[3].data), &res); err != nil {
		t.Fatalf("decoding complete: %v", err)
	}
	if len(res.Tracks) != 2 {
		t.Errorf("complete carried %d tracks, want 2", len(res.Tracks))
	}
}

func TestQuota(t *testing.T) {
	srv := newTestServer(NewHandlers(&fakeEnhancer{quotas: defaultQuotas()}, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got map[string]ratelimit.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["youtube"].Used != 300 || got["discogs"].Max != 55 {
		t.Errorf("quota = %+v", got)
	}
}

func TestProviderQuota(t *testing.T) {
	tests := []struct {
		provider   string
		wantStatus int
		wantUsed   int
	}{
		{provider: "youtube", wantStatus: http.StatusOK, wantUsed: 300},
		{provider: "discogs", wantStatus: http.StatusOK, wantUsed: 4},
		{provider: "spotify", wantStatus: http.StatusNotFound},
	}

	srv := newTestServer(NewHandlers(&fakeEnhancer{quotas: defaultQuotas()}, nil))
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quota/"+tt.provider, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var st ratelimit.Status
			if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if st.Used != tt.wantUsed {
				t.Errorf("Used = %d, want %d", st.Used, tt.wantUsed)
			}
		})
	}
}

func TestDiscography(t *testing.T) {
	disc := &fakeDiscography{
		releases: []discogs.Release{
			{SourceReleaseID: 33124, Title: "Black Sands", Year: 2010, Kind: discogs.KindMaster},
		},
	}
	srv := newTestServer(NewHandlers(&fakeEnhancer{}, disc))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/discogs/artists/14373/releases?max=5&sort=title&order=asc&details=true", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if disc.gotID != 14373 {
		t.Errorf("artist id = %d, want 14373", disc.gotID)
	}
	want := discogs.DiscographyOptions{MaxResults: 5, Sort: "title", SortOrder: "asc", IncludeDetails: true}
	if disc.gotOpts.MaxResults != want.MaxResults || disc.gotOpts.Sort != want.Sort ||
		disc.gotOpts.SortOrder != want.SortOrder || disc.gotOpts.IncludeDetails != want.IncludeDetails {
		t.Errorf("options = %+v, want %+v", disc.gotOpts, want)
	}

	var got struct {
		ArtistID int               `json:"artist_id"`
		Releases []discogs.Release `json:"releases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Releases) != 1 || got.Releases[0].Title != "Black Sands" {
		t.Errorf("releases = %+v", got.Releases)
	}
}

func TestDiscography_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		disc       DiscographyFetcher
		wantStatus int
	}{
		{
			name:       "not configured",
			path:       "/api/v1/discogs/artists/1/releases",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "bad id",
			path:       "/api/v1/discogs/artists/abc/releases",
			disc:       &fakeDiscography{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad sort",
			path:       "/api/v1/discogs/artists/1/releases?sort=popularity",
			disc:       &fakeDiscography{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad max",
			path:       "/api/v1/discogs/artists/1/releases?max=-2",
			disc:       &fakeDiscography{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown artist",
			path:       "/api/v1/discogs/artists/1/releases",
			disc:       &fakeDiscography{err: fmt.Errorf("listing releases: %w", discogs.ErrNotFound)},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "provider failure",
			path:       "/api/v1/discogs/artists/1/releases",
			disc:       &fakeDiscography{err: errors.New("connection reset")},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(NewHandlers(&fakeEnhancer{}, tt.disc))

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestBatch(t *testing.T) {
	id := uuid.New()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := fakeBatches{
		id: {
			ID:         id,
			TrackCount: 12,
			Summary:    json.RawMessage(`{"total":12}`),
			QuotaUsage: json.RawMessage(`{}`),
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
		},
	}

	tests := []struct {
		name       string
		reader     BatchReader
		path       string
		wantStatus int
	}{
		{name: "found", reader: store, path: "/api/v1/batches/" + id.String(), wantStatus: http.StatusOK},
		{name: "missing", reader: store, path: "/api/v1/batches/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "bad id", reader: store, path: "/api/v1/batches/nope", wantStatus: http.StatusBadRequest},
		{name: "no database", path: "/api/v1/batches/" + id.String(), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []HandlerOption
			if tt.reader != nil {
				opts = append(opts, WithBatchReader(tt.reader))
			}
			srv := newTestServer(NewHandlers(&fakeEnhancer{}, nil, opts...))

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got batchResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if got.TrackCount != 12 || got.StartedAt != "2026-03-01T12:00:00Z" {
				t.Errorf("batch = %+v", got)
			}
		})
	}
}

func TestBatches(t *testing.T) {
	store := fakeBatches{}
	for i := 0; i < 3; i++ {
		id := uuid.New()
		store[id] = &db.Batch{ID: id, TrackCount: i + 1}
	}

	tests := []struct {
		name       string
		reader     BatchReader
		query      string
		wantStatus int
		wantCount  int
	}{
		{name: "default limit", reader: store, wantStatus: http.StatusOK, wantCount: 3},
		{name: "limit applied", reader: store, query: "?limit=2", wantStatus: http.StatusOK, wantCount: 2},
		{name: "limit too large", reader: store, query: "?limit=500", wantStatus: http.StatusBadRequest},
		{name: "no database", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []HandlerOption
			if tt.reader != nil {
				opts = append(opts, WithBatchReader(tt.reader))
			}
			srv := newTestServer(NewHandlers(&fakeEnhancer{}, nil, opts...))

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batches"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []batchResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("got %d batches, want %d", len(got), tt.wantCount)
			}
		})
	}
}
