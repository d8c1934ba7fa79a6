package enhance

import (
	"time"

	"github.com/google/uuid"

	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
	"github.com/justestif/radio-track-enhancer/internal/youtube"
)

// TrackQuery is one raw playlist entry to enhance. The URL fields carry
// links the caller already has, used by the skip-existing policy.
type TrackQuery struct {
	Artist     string `json:"artist"`
	TrackName  string `json:"track_name"`
	ExternalID string `json:"external_id,omitempty"`
	YouTubeURL string `json:"youtube_url,omitempty"`
	DiscogsURL string `json:"discogs_url,omitempty"`
}

// Status is the per-provider outcome for one track.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ProviderStatus holds the outcome of each provider for one track.
type ProviderStatus struct {
	YouTube Status `json:"youtube"`
	Discogs Status `json:"discogs"`
}

// EnhancedTrack is a TrackQuery merged with whatever matches were found.
type EnhancedTrack struct {
	TrackQuery
	YouTubeMatch *youtube.Match       `json:"youtube_match"`
	DiscogsMatch *discogs.ArtistMatch `json:"discogs_match"`
	Status       ProviderStatus       `json:"status"`
	Errors       []string             `json:"errors,omitempty"`
}

// ProviderSummary counts outcomes for one provider.
type ProviderSummary struct {
	Found   int `json:"found"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summary aggregates a batch.
type Summary struct {
	Total   int             `json:"total"`
	YouTube ProviderSummary `json:"youtube"`
	Discogs ProviderSummary `json:"discogs"`
}

// QuotaUsage snapshots both providers' budgets at the end of a batch.
type QuotaUsage struct {
	YouTube ratelimit.Status `json:"youtube"`
	Discogs ratelimit.Status `json:"discogs"`
}

// Result is the outcome of EnhanceBatch. It is always well-formed, even
// when every provider call failed.
type Result struct {
	BatchID    uuid.UUID       `json:"batch_id"`
	Tracks     []EnhancedTrack `json:"tracks"`
	Summary    Summary         `json:"summary"`
	QuotaUsage QuotaUsage      `json:"quota_usage"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Phase names the provider pass a progress event belongs to.
type Phase string

const (
	PhaseYouTube Phase = "youtube"
	PhaseDiscogs Phase = "discogs"
)

// ProgressFunc is called after every provider lookup.
type ProgressFunc func(completed, total int, current string, phase Phase)

// QuotaWarningFunc is called once per provider per batch when usage
// crosses QuotaWarningThreshold.
type QuotaWarningFunc func(provider string, status ratelimit.Status)

// QuotaWarningThreshold is the PercentUsed at which OnQuotaWarning fires.
const QuotaWarningThreshold = 80.0

// Options control a single EnhanceBatch call.
type Options struct {
	EnableYouTube bool
	EnableDiscogs bool
	// SkipExisting leaves tracks that already carry a provider URL alone.
	SkipExisting bool
	// ConcurrentPhases overlaps the YouTube and Discogs passes. Each
	// provider still dispatches one request at a time.
	ConcurrentPhases bool

	OnProgress     ProgressFunc
	OnQuotaWarning QuotaWarningFunc
}

// DefaultOptions enables both providers and skips existing links.
func DefaultOptions() Options {
	return Options{
		EnableYouTube: true,
		EnableDiscogs: true,
		SkipExisting:  true,
	}
}
