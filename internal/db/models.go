package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuotaRow is the persisted budget state of one provider.
type QuotaRow struct {
	Provider         string
	WindowStart      time.Time
	RequestsInWindow int
	DayStart         time.Time
	DailyBudgetUsed  int
	UpdatedAt        time.Time
}

// CachedMatch is a provider match stored by lookup key.
type CachedMatch struct {
	Provider  string
	LookupKey string
	Payload   json.RawMessage
	FetchedAt time.Time
}

// Batch records the outcome of one enhancement run.
type Batch struct {
	ID         uuid.UUID
	TrackCount int
	Summary    json.RawMessage
	QuotaUsage json.RawMessage
	StartedAt  time.Time
	FinishedAt time.Time
}
