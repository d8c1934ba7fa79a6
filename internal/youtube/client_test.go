package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Provider:       ratelimit.ProviderYouTube,
		DailyBudget:    9000,
		CostPerRequest: 100,
	})
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(&Config{APIKey: "test-key"},
		WithBaseURL(srv.URL),
		WithLimiter(testLimiter()),
		WithRetryDelays(time.Millisecond, time.Millisecond),
	)
}

func videoItem(id, title string, thumbs map[string]thumbnail) searchItem {
	var item searchItem
	item.ID.Kind = "youtube#video"
	item.ID.VideoID = id
	item.Snippet.Title = title
	item.Snippet.ChannelTitle = "MassiveAttackVEVO"
	item.Snippet.PublishedAt = time.Date(2009, 10, 25, 7, 0, 0, 0, time.UTC)
	item.Snippet.Thumbnails = thumbs
	return item
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name      string
		response  searchResponse
		wantMatch *Match
	}{
		{
			name: "top hit is mapped",
			response: searchResponse{Items: []searchItem{
				videoItem("u7K72X4eo_s", "Massive Attack - Teardrop", map[string]thumbnail{
					"default": {URL: "https://i.ytimg.com/vi/u7K72X4eo_s/default.jpg"},
					"medium":  {URL: "https://i.ytimg.com/vi/u7K72X4eo_s/mqdefault.jpg"},
				}),
			}},
			wantMatch: &Match{
				VideoID:      "u7K72X4eo_s",
				Title:        "Massive Attack - Teardrop",
				ChannelTitle: "MassiveAttackVEVO",
				ThumbnailURL: "https://i.ytimg.com/vi/u7K72X4eo_s/mqdefault.jpg",
				VideoURL:     "https://www.youtube.com/watch?v=u7K72X4eo_s",
				PublishedAt:  time.Date(2009, 10, 25, 7, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "falls back to default thumbnail",
			response: searchResponse{Items: []searchItem{
				videoItem("abc123def45", "Teardrop", map[string]thumbnail{
					"default": {URL: "https://i.ytimg.com/vi/abc123def45/default.jpg"},
				}),
			}},
			wantMatch: &Match{
				VideoID:      "abc123def45",
				Title:        "Teardrop",
				ChannelTitle: "MassiveAttackVEVO",
				ThumbnailURL: "https://i.ytimg.com/vi/abc123def45/default.jpg",
				VideoURL:     "https://www.youtube.com/watch?v=abc123def45",
				PublishedAt:  time.Date(2009, 10, 25, 7, 0, 0, 0, time.UTC),
			},
		},
		{
			name:      "no items",
			response:  searchResponse{Items: []searchItem{}},
			wantMatch: nil,
		},
		{
			name: "top hit without video ID",
			response: searchResponse{Items: []searchItem{
				videoItem("", "Massive Attack - Topic", nil),
			}},
			wantMatch: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			client := newTestClient(srv)
			got, err := client.Search(context.Background(), "Massive Attack", "Teardrop")
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}

			if tt.wantMatch == nil {
				if got != nil {
					t.Errorf("Search() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Search() = nil, want match")
			}
			if !got.PublishedAt.Equal(tt.wantMatch.PublishedAt) {
				t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, tt.wantMatch.PublishedAt)
			}
			got.PublishedAt = tt.wantMatch.PublishedAt
			if *got != *tt.wantMatch {
				t.Errorf("Search() = %+v, want %+v", got, tt.wantMatch)
			}
		})
	}
}

func TestSearch_QueryParams(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer srv.Close()

	client := newTestClient(srv)
	if _, err := client.Search(context.Background(), " “Massive  Attack” ", "'Teardrop'"); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := map[string]string{
		"part":       "snippet",
		"q":          "Massive Attack Teardrop",
		"key":        "test-key",
		"maxResults": "1",
		"safeSearch": "moderate",
		"order":      "relevance",
		"type":       "video",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("param %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSearch_NotConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	limiter := testLimiter()
	client := NewClient(nil, WithBaseURL(srv.URL), WithLimiter(limiter))

	got, err := client.Search(context.Background(), "Bonobo", "Kerala")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got != nil {
		t.Errorf("Search() = %+v, want nil", got)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
	if st := limiter.Status(context.Background()); st.Used != 0 || st.PercentUsed != 0 {
		t.Errorf("quota status = %+v, want zero usage", st)
	}
}

func TestSearch_QuotaExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Search(context.Background(), "Bonobo", "Kerala")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Search() error = %v, want ErrQuotaExceeded", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected wrapped *APIError with status 403, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1 (no retry)", calls.Load())
	}
	if st := client.Limiter().Status(context.Background()); st.PercentUsed != 100 {
		t.Errorf("PercentUsed = %v, want 100 after provider quota error", st.PercentUsed)
	}
}

func TestSearch_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"backend error"}}`))
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Items: []searchItem{videoItem("abc123def45", "Kerala", nil)}})
	}))
	defer srv.Close()

	client := newTestClient(srv)
	got, err := client.Search(context.Background(), "Bonobo", "Kerala")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got == nil || got.VideoID != "abc123def45" {
		t.Errorf("Search() = %+v, want video abc123def45", got)
	}
	if calls.Load() != 2 {
		t.Errorf("server called %d times, want 2", calls.Load())
	}
	if st := client.Limiter().Status(context.Background()); st.Used != 200 {
		t.Errorf("Used = %d, want 200 (both attempts budgeted)", st.Used)
	}
}

func TestSearch_ClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","errors":[{"reason":"keyInvalid"}]}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Search(context.Background(), "Bonobo", "Kerala")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Search() error = %v, want *APIError", err)
	}
	if apiErr.Reason != "keyInvalid" || apiErr.Message != "API key not valid" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestSearch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	if _, err := client.Search(context.Background(), "Bonobo", "Kerala"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestVideoIDFromURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.youtube.com/watch?v=u7K72X4eo_s", "u7K72X4eo_s"},
		{"https://youtu.be/u7K72X4eo_s", "u7K72X4eo_s"},
		{"https://www.youtube.com/embed/u7K72X4eo_s", "u7K72X4eo_s"},
		{"https://example.com/video", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := VideoIDFromURL(tt.input); got != tt.want {
				t.Errorf("VideoIDFromURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatchFromURL(t *testing.T) {
	m := MatchFromURL("https://music.youtube.com/watch?v=u7K72X4eo_s&list=RD")
	if m == nil {
		t.Fatal("MatchFromURL() = nil, want a match")
	}
	if m.VideoID != "u7K72X4eo_s" || m.VideoURL != "https://www.youtube.com/watch?v=u7K72X4eo_s" {
		t.Errorf("MatchFromURL() = %+v", m)
	}

	if m := MatchFromURL("https://example.com/teardrop"); m != nil {
		t.Errorf("MatchFromURL(non-video) = %+v, want nil", m)
	}
}
