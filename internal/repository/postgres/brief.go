package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlasmedia/pulse/internal/domain"
)

// BriefRepo persists content briefs. Content is stored as JSONB and never
// updated after insert; review fields and the supersede pointer are the
// only mutable columns.
type BriefRepo struct{ db *sql.DB }

// NewBriefRepo creates a Postgres-backed brief repository.
func NewBriefRepo(db *sql.DB) *BriefRepo { return &BriefRepo{db: db} }

const briefColumns = `id, opportunity_id, channel, status, content,
	COALESCE(instruction,''), created_by, approved_by, rejected_reason,
	superseded_by_brief_id, created_at, updated_at`

// Create inserts a new brief row.
func (r *BriefRepo) Create(ctx context.Context, b *domain.Brief) error {
	content, err := json.Marshal(b.Content)
	if err != nil {
		return fmt.Errorf("marshal brief content: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO briefs
			(id, opportunity_id, channel, status, content, instruction,
			 created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.OpportunityID, b.Channel, b.Status, content, b.Instruction,
		b.CreatedBy, timeOrNow(b.CreatedAt), timeOrNow(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert brief: %w", err)
	}
	return nil
}

// Get loads one brief by ID.
func (r *BriefRepo) Get(ctx context.Context, id string) (*domain.Brief, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+briefColumns+`
		FROM briefs
		WHERE id = $1
	`, id)

	b, err := scanBrief(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get brief: %w", err)
	}
	return b, nil
}

// UpdateReview writes a review outcome. Approval and rejection are
// mutually exclusive, so one of the audit pointers is always nil.
func (r *BriefRepo) UpdateReview(ctx context.Context, id string, status domain.BriefStatus, approvedBy, rejectedReason *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE briefs
		SET status = $1, approved_by = $2, rejected_reason = $3, updated_at = NOW()
		WHERE id = $4
	`, status, approvedBy, rejectedReason, id)
	if err != nil {
		return fmt.Errorf("update brief review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update brief review rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSuperseded freezes a brief and points it at its replacement.
func (r *BriefRepo) MarkSuperseded(ctx context.Context, id, supersededByID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE briefs
		SET status = $1, superseded_by_brief_id = $2, updated_at = NOW()
		WHERE id = $3
	`, domain.BriefSuperseded, supersededByID, id)
	if err != nil {
		return fmt.Errorf("mark brief superseded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark brief superseded rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOpportunity returns all briefs for one opportunity, newest first,
// superseded history included.
func (r *BriefRepo) ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.Brief, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+briefColumns+`
		FROM briefs
		WHERE opportunity_id = $1
		ORDER BY created_at DESC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list briefs: %w", err)
	}
	defer rows.Close()

	var out []domain.Brief
	for rows.Next() {
		b, err := scanBrief(rows)
		if err != nil {
			return nil, fmt.Errorf("scan brief: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBrief(row rowScanner) (*domain.Brief, error) {
	b := &domain.Brief{}
	var content []byte
	if err := row.Scan(
		&b.ID, &b.OpportunityID, &b.Channel, &b.Status, &content, &b.Instruction,
		&b.CreatedBy, &b.ApprovedBy, &b.RejectedReason, &b.SupersededByBriefID,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &b.Content); err != nil {
			return nil, fmt.Errorf("parse brief content: %w", err)
		}
	}
	return b, nil
}
