package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/atlasmedia/pulse/internal/domain"
)

// AlertRepo persists deduplicated anomaly alerts. The fingerprint column
// carries a unique constraint; a detector sweep re-finding the same
// anomaly on the same day is a no-op.
type AlertRepo struct{ db *sql.DB }

// NewAlertRepo creates a Postgres-backed alert repository.
func NewAlertRepo(db *sql.DB) *AlertRepo { return &AlertRepo{db: db} }

// AlertFilter narrows an alert listing. Zero values mean "any".
type AlertFilter struct {
	Status   domain.AlertStatus
	Source   string
	Severity domain.AlertSeverity
	Limit    int
	Offset   int
}

// InsertIfAbsent inserts the alert unless its fingerprint already exists.
// Reports whether a row was actually written.
func (r *AlertRepo) InsertIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, fingerprint, source, anomaly_type, entity_id, severity, status,
			 title, description, impact, current_value, previous_value,
			 change_percent, suggested_actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (fingerprint) DO NOTHING
	`, a.ID, a.Fingerprint, a.Source, a.AnomalyType, a.EntityID, a.Severity,
		a.Status, a.Title, a.Description, a.Impact, a.CurrentValue,
		a.PreviousValue, a.ChangePercent, pq.Array(a.SuggestedActions),
		timeOrNow(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert alert rows: %w", err)
	}
	return n > 0, nil
}

// Get loads one alert by ID.
func (r *AlertRepo) Get(ctx context.Context, id string) (*domain.Alert, error) {
	a := &domain.Alert{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, source, anomaly_type, entity_id, severity, status,
		       title, description, impact, current_value, previous_value,
		       change_percent, suggested_actions, created_at
		FROM alerts
		WHERE id = $1
	`, id).Scan(
		&a.ID, &a.Fingerprint, &a.Source, &a.AnomalyType, &a.EntityID,
		&a.Severity, &a.Status, &a.Title, &a.Description, &a.Impact,
		&a.CurrentValue, &a.PreviousValue, &a.ChangePercent,
		pq.Array(&a.SuggestedActions), &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// List returns alerts matching the filter, newest first, plus the unpaged
// total.
func (r *AlertRepo) List(ctx context.Context, f AlertFilter) ([]domain.Alert, int, error) {
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
	if f.Status != "" {
		add(" AND status = $%d", f.Status)
	}
	if f.Source != "" {
		add(" AND source = $%d", f.Source)
	}
	if f.Severity != "" {
		add(" AND severity = $%d", f.Severity)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	q := `
		SELECT id, fingerprint, source, anomaly_type, entity_id, severity, status,
		       title, description, impact, current_value, previous_value,
		       change_percent, suggested_actions, created_at
		FROM alerts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(
			&a.ID, &a.Fingerprint, &a.Source, &a.AnomalyType, &a.EntityID,
			&a.Severity, &a.Status, &a.Title, &a.Description, &a.Impact,
			&a.CurrentValue, &a.PreviousValue, &a.ChangePercent,
			pq.Array(&a.SuggestedActions), &a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// UpdateStatus moves an alert between open, acknowledged, and resolved.
func (r *AlertRepo) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = $1 WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert status rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
