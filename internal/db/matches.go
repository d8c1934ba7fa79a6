package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchRepository handles cached provider match operations.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves a cached match.
func (r *MatchRepository) Get(ctx context.Context, provider, key string) (*CachedMatch, error) {
	query := `
		SELECT provider, lookup_key, payload, fetched_at
		FROM provider_matches
		WHERE provider = $1 AND lookup_key = $2
	`
	var m CachedMatch
	err := r.pool.QueryRow(ctx, query, provider, key).Scan(
		&m.Provider,
		&m.LookupKey,
		&m.Payload,
		&m.FetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cached match: %w", err)
	}
	return &m, nil
}

// Upsert inserts or replaces a cached match.
func (r *MatchRepository) Upsert(ctx context.Context, m CachedMatch) error {
	query := `
		INSERT INTO provider_matches (provider, lookup_key, payload, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, lookup_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at
	`
	_, err := r.pool.Exec(ctx, query, m.Provider, m.LookupKey, m.Payload, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("upserting cached match: %w", err)
	}
	return nil
}

// DeleteStale removes matches fetched before olderThan and returns how many
// rows were deleted.
func (r *MatchRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM provider_matches WHERE fetched_at < $1`
	tag, err := r.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting stale matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
