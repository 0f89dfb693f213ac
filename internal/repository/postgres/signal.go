// Package postgres implements the persistence interfaces against
// PostgreSQL with database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/atlasmedia/pulse/internal/domain"
)

// SignalRepo persists signals. The (source_type, external_id) pair carries
// a unique constraint; inserts racing the same entry resolve to one row.
type SignalRepo struct{ db *sql.DB }

// NewSignalRepo creates a Postgres-backed signal repository.
func NewSignalRepo(db *sql.DB) *SignalRepo { return &SignalRepo{db: db} }

// InsertIfAbsent inserts the signal unless its (source_type, external_id)
// pair already exists. Reports whether a row was actually written.
func (r *SignalRepo) InsertIfAbsent(ctx context.Context, s *domain.Signal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO signals
			(id, source_type, external_id, url, title, author, community, industry,
			 created_at_external, upvotes, comments, upvote_ratio, velocity,
			 raw_excerpt, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source_type, external_id) DO NOTHING
	`, s.ID, s.SourceType, s.ExternalID, s.URL, s.Title, s.Author, s.Community, s.Industry,
		s.CreatedAtExternal, s.Metrics.Upvotes, s.Metrics.Comments, s.Metrics.UpvoteRatio,
		s.Metrics.Velocity, s.RawExcerpt, s.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert signal rows: %w", err)
	}
	return n > 0, nil
}

// ListByIndustry returns signals for one industry with an external creation
// time at or after since, newest first.
func (r *SignalRepo) ListByIndustry(ctx context.Context, industry string, since time.Time) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_type, external_id, url, title, author, community, industry,
		       created_at_external, upvotes, comments, upvote_ratio, velocity,
		       raw_excerpt, ingested_at
		FROM signals
		WHERE industry = $1 AND created_at_external >= $2
		ORDER BY created_at_external DESC
	`, industry, since)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(
			&s.ID, &s.SourceType, &s.ExternalID, &s.URL, &s.Title, &s.Author,
			&s.Community, &s.Industry, &s.CreatedAtExternal,
			&s.Metrics.Upvotes, &s.Metrics.Comments, &s.Metrics.UpvoteRatio,
			&s.Metrics.Velocity, &s.RawExcerpt, &s.IngestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByIDs resolves a set of signal IDs, preserving no particular order.
func (r *SignalRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_type, external_id, url, title, author, community, industry,
		       created_at_external, upvotes, comments, upvote_ratio, velocity,
		       raw_excerpt, ingested_at
		FROM signals
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list signals by id: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(
			&s.ID, &s.SourceType, &s.ExternalID, &s.URL, &s.Title, &s.Author,
			&s.Community, &s.Industry, &s.CreatedAtExternal,
			&s.Metrics.Upvotes, &s.Metrics.Comments, &s.Metrics.UpvoteRatio,
			&s.Metrics.Velocity, &s.RawExcerpt, &s.IngestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
