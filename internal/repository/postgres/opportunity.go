package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atlasmedia/pulse/internal/domain"
)

// OpportunityRepo persists opportunities and their signal membership.
type OpportunityRepo struct{ db *sql.DB }

// NewOpportunityRepo creates a Postgres-backed opportunity repository.
func NewOpportunityRepo(db *sql.DB) *OpportunityRepo { return &OpportunityRepo{db: db} }

// ListFilter narrows an opportunity listing. Zero values mean "any".
type ListFilter struct {
	Industry string
	Status   domain.OpportunityStatus
	Channel  domain.Channel
	ClientID string
	Limit    int
	Offset   int
}

// Create inserts the opportunity and its signal links in one transaction.
func (r *OpportunityRepo) Create(ctx context.Context, o *domain.Opportunity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create opportunity: %w", err)
	}
	defer tx.Rollback()

	var seoJSON []byte
	if o.SEOData != nil {
		seoJSON, err = json.Marshal(o.SEOData)
		if err != nil {
			return fmt.Errorf("marshal seo data: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO opportunities
			(id, industry, client_id, channel, status, title, score,
			 score_engagement, score_freshness, score_relevance, score_novelty,
			 score_seasonality, seo_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, o.ID, o.Industry, o.ClientID, o.Channel, o.Status, o.Title, o.Score,
		o.ScoreBreakdown.Engagement, o.ScoreBreakdown.Freshness,
		o.ScoreBreakdown.Relevance, o.ScoreBreakdown.Novelty,
		o.ScoreBreakdown.Seasonality, nullBytes(seoJSON), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	for _, s := range o.Signals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO opportunity_signals (opportunity_id, signal_id)
			VALUES ($1, $2)
		`, o.ID, s.ID); err != nil {
			return fmt.Errorf("link signal %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create opportunity: %w", err)
	}
	return nil
}

// Get loads one opportunity with its signals.
func (r *OpportunityRepo) Get(ctx context.Context, id string) (*domain.Opportunity, error) {
	o := &domain.Opportunity{}
	var seoJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, industry, client_id, channel, status, title, score,
		       score_engagement, score_freshness, score_relevance, score_novelty,
		       score_seasonality, seo_data, created_at, updated_at
		FROM opportunities
		WHERE id = $1
	`, id).Scan(
		&o.ID, &o.Industry, &o.ClientID, &o.Channel, &o.Status, &o.Title, &o.Score,
		&o.ScoreBreakdown.Engagement, &o.ScoreBreakdown.Freshness,
		&o.ScoreBreakdown.Relevance, &o.ScoreBreakdown.Novelty,
		&o.ScoreBreakdown.Seasonality, &seoJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}

	if len(seoJSON) > 0 {
		o.SEOData = &domain.SEOData{}
		if err := json.Unmarshal(seoJSON, o.SEOData); err != nil {
			return nil, fmt.Errorf("parse seo data: %w", err)
		}
	}

	signals, err := r.signalsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Signals = signals
	return o, nil
}

// List returns opportunities matching the filter plus the unpaged total.
func (r *OpportunityRepo) List(ctx context.Context, f ListFilter) ([]domain.Opportunity, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, val)
		idx++
	}
	if f.Industry != "" {
		add(" AND industry = $%d", f.Industry)
	}
	if f.Status != "" {
		add(" AND status = $%d", f.Status)
	}
	if f.Channel != "" {
		add(" AND channel = $%d", f.Channel)
	}
	if f.ClientID != "" {
		add(" AND client_id = $%d", f.ClientID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM opportunities"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}

	q := `
		SELECT id, industry, client_id, channel, status, title, score,
		       score_engagement, score_freshness, score_relevance, score_novelty,
		       score_seasonality, created_at, updated_at
		FROM opportunities` + where +
		fmt.Sprintf(" ORDER BY score DESC, created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(
			&o.ID, &o.Industry, &o.ClientID, &o.Channel, &o.Status, &o.Title, &o.Score,
			&o.ScoreBreakdown.Engagement, &o.ScoreBreakdown.Freshness,
			&o.ScoreBreakdown.Relevance, &o.ScoreBreakdown.Novelty,
			&o.ScoreBreakdown.Seasonality, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateStatus writes a new status. Transition legality is the caller's
// responsibility; the repository only touches rows that exist.
func (r *OpportunityRepo) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE opportunities SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update opportunity status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update opportunity status rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecentKeywordTitles returns the latest opportunity titles for an
// industry, feeding the novelty scorer's repeat-topic memory.
func (r *OpportunityRepo) RecentKeywordTitles(ctx context.Context, industry string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT title FROM opportunities
		WHERE industry = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, industry, limit)
	if err != nil {
		return nil, fmt.Errorf("recent titles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *OpportunityRepo) signalsFor(ctx context.Context, opportunityID string) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.source_type, s.external_id, s.url, s.title, s.author,
		       s.community, s.industry, s.created_at_external, s.upvotes,
		       s.comments, s.upvote_ratio, s.velocity, s.raw_excerpt, s.ingested_at
		FROM signals s
		JOIN opportunity_signals os ON os.signal_id = s.id
		WHERE os.opportunity_id = $1
		ORDER BY s.velocity DESC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("opportunity signals: %w", err)
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
			return nil, fmt.Errorf("scan opportunity signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// nullBytes maps an empty byte slice to SQL NULL for nullable JSONB columns.
func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// timeOrNow defaults zero times on insert paths.
func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
