package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

// QuotaRepository persists provider budget counters. It implements
// ratelimit.QuotaStore so several instances can share one budget.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

var _ ratelimit.QuotaStore = (*QuotaRepository)(nil)

// Get retrieves the stored row for provider.
func (r *QuotaRepository) Get(ctx context.Context, provider string) (*QuotaRow, error) {
	query := `
		SELECT provider, window_start, requests_in_window, day_start, daily_budget_used, updated_at
		FROM provider_quotas
		WHERE provider = $1
	`
	var row QuotaRow
	err := r.pool.QueryRow(ctx, query, provider).Scan(
		&row.Provider,
		&row.WindowStart,
		&row.RequestsInWindow,
		&row.DayStart,
		&row.DailyBudgetUsed,
		&row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying quota: %w", err)
	}
	return &row, nil
}

// Load returns the quota state for provider, or the zero state if none
// has been saved yet.
func (r *QuotaRepository) Load(ctx context.Context, provider string) (ratelimit.QuotaState, error) {
	row, err := r.Get(ctx, provider)
	if errors.Is(err, ErrNotFound) {
		return ratelimit.QuotaState{}, nil
	}
	if err != nil {
		return ratelimit.QuotaState{}, err
	}
	return ratelimit.QuotaState{
		WindowStart:      row.WindowStart,
		RequestsInWindow: row.RequestsInWindow,
		DayStart:         row.DayStart,
		DailyBudgetUsed:  row.DailyBudgetUsed,
	}, nil
}

// Save upserts the quota state for provider.
func (r *QuotaRepository) Save(ctx context.Context, provider string, state ratelimit.QuotaState) error {
	query := `
		INSERT INTO provider_quotas (provider, window_start, requests_in_window, day_start, daily_budget_used, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			window_start = EXCLUDED.window_start,
			requests_in_window = EXCLUDED.requests_in_window,
			day_start = EXCLUDED.day_start,
			daily_budget_used = EXCLUDED.daily_budget_used,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		provider,
		state.WindowStart,
		state.RequestsInWindow,
		state.DayStart,
		state.DailyBudgetUsed,
	)
	if err != nil {
		return fmt.Errorf("upserting quota: %w", err)
	}
	return nil
}
