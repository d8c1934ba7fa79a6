package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BatchRepository handles enhancement batch records.
type BatchRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a batch record.
func (r *BatchRepository) Create(ctx context.Context, b *Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO enhancement_batches (id, track_count, summary, quota_usage, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		b.ID,
		b.TrackCount,
		b.Summary,
		b.QuotaUsage,
		b.StartedAt,
		b.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

// Get retrieves a batch by ID.
func (r *BatchRepository) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	query := `
		SELECT id, track_count, summary, quota_usage, started_at, finished_at
		FROM enhancement_batches
		WHERE id = $1
	`
	var b Batch
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.TrackCount,
		&b.Summary,
		&b.QuotaUsage,
		&b.StartedAt,
		&b.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch: %w", err)
	}
	return &b, nil
}

// ListRecent returns the most recent batches, newest first.
func (r *BatchRepository) ListRecent(ctx context.Context, limit int) ([]Batch, error) {
	query := `
		SELECT id, track_count, summary, quota_usage, started_at, finished_at
		FROM enhancement_batches
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(
			&b.ID,
			&b.TrackCount,
			&b.Summary,
			&b.QuotaUsage,
			&b.StartedAt,
			&b.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
