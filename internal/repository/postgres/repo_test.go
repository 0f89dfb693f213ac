package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/atlasmedia/pulse/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestSignalInsertIfAbsent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSignalRepo(db)
	s := &domain.Signal{
		ID:         uuid.New().String(),
		SourceType: "reddit",
		ExternalID: "t3_abc1",
		Title:      "protein coffee",
		Industry:   "fitness",
	}

	mock.ExpectExec("INSERT INTO signals").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.InsertIfAbsent(context.Background(), s)
	if err != nil {
		t.Fatalf("InsertIfAbsent() error: %v", err)
	}
	if !inserted {
		t.Error("expected insert to report a new row")
	}
}

func TestSignalInsertIfAbsentDuplicate(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSignalRepo(db)

	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate.
	mock.ExpectExec("INSERT INTO signals").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), &domain.Signal{ID: "x"})
	if err != nil {
		t.Fatalf("InsertIfAbsent() error: %v", err)
	}
	if inserted {
		t.Error("duplicate must not report an insert")
	}
}

func TestSignalListByIndustry(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSignalRepo(db)
	now := time.Now().UTC()

	cols := []string{
		"id", "source_type", "external_id", "url", "title", "author",
		"community", "industry", "created_at_external", "upvotes", "comments",
		"upvote_ratio", "velocity", "raw_excerpt", "ingested_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs("fitness", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "reddit", "t3_1", "u", "title one", "a", "r/fitness",
				"fitness", now, 120, 30, 0.94, 15.5, "body", now).
			AddRow("s2", "reddit", "t3_2", "u", "title two", "a", "r/fitness",
				"fitness", now, 40, 5, 0.88, 4.1, "body", now))

	out, err := repo.ListByIndustry(context.Background(), "fitness", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ListByIndustry() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d signals, want 2", len(out))
	}
	if out[0].Metrics.Upvotes != 120 || out[0].Metrics.Velocity != 15.5 {
		t.Errorf("metrics not scanned: %+v", out[0].Metrics)
	}
}

func TestOpportunityGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOpportunityRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM opportunities").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestOpportunityGetWithSignals(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOpportunityRepo(db)
	now := time.Now().UTC()

	oppCols := []string{
		"id", "industry", "client_id", "channel", "status", "title", "score",
		"score_engagement", "score_freshness", "score_relevance",
		"score_novelty", "score_seasonality", "seo_data", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM opportunities").
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows(oppCols).
			AddRow("opp-1", "fitness", nil, "youtube", "new", "protein coffee", 72,
				22, 18, 15, 10, 7, []byte(`{"opportunity_type":"demand_capture","search_volume":900,"has_ranking_data":true,"gate_evaluated":true,"gate_passed":true}`),
				now, now))

	sigCols := []string{
		"id", "source_type", "external_id", "url", "title", "author",
		"community", "industry", "created_at_external", "upvotes", "comments",
		"upvote_ratio", "velocity", "raw_excerpt", "ingested_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM signals s").
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows(sigCols).
			AddRow("s1", "reddit", "t3_1", "u", "t", "a", "c", "fitness", now,
				10, 2, 0.9, 1.2, "b", now))

	opp, err := repo.Get(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if opp.Score != 72 || opp.ScoreBreakdown.Engagement != 22 {
		t.Errorf("score columns not scanned: %+v", opp)
	}
	if opp.SEOData == nil || opp.SEOData.OpportunityType != domain.DemandCapture {
		t.Errorf("seo data not decoded: %+v", opp.SEOData)
	}
	if len(opp.Signals) != 1 {
		t.Errorf("got %d signals, want 1", len(opp.Signals))
	}
}

func TestOpportunityCreateLinksSignals(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOpportunityRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO opportunities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO opportunity_signals").
		WithArgs("opp-1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO opportunity_signals").
		WithArgs("opp-1", "s2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &domain.Opportunity{
		ID:        "opp-1",
		Industry:  "fitness",
		Channel:   domain.ChannelYouTube,
		Status:    domain.OpportunityNew,
		Title:     "protein coffee",
		Score:     72,
		Signals:   []domain.Signal{{ID: "s1"}, {ID: "s2"}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOpportunityUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOpportunityRepo(db)

	mock.ExpectExec("UPDATE opportunities").
		WithArgs(string(domain.OpportunityArchived), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.OpportunityArchived)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestBriefRoundTrip(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewBriefRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO briefs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Brief{
		ID:            "b1",
		OpportunityID: "opp-1",
		Channel:       domain.ChannelInstagram,
		Status:        domain.BriefDraft,
		Content:       domain.BriefContent{Hook: "h", Hashtags: []string{"#proffee"}},
		CreatedBy:     "user-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	cols := []string{
		"id", "opportunity_id", "channel", "status", "content", "instruction",
		"created_by", "approved_by", "rejected_reason", "superseded_by_brief_id",
		"created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM briefs").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b1", "opp-1", "instagram", "draft",
				[]byte(`{"hook":"h","hashtags":["#proffee"]}`), "",
				"user-1", nil, nil, nil, now, now))

	b, err := repo.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if b.Content.Hook != "h" || len(b.Content.Hashtags) != 1 {
		t.Errorf("content not decoded: %+v", b.Content)
	}
	if b.ApprovedBy != nil || b.SupersededByBriefID != nil {
		t.Errorf("nullable audit fields: %+v", b)
	}
}

func TestBriefMarkSuperseded(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewBriefRepo(db)

	mock.ExpectExec("UPDATE briefs").
		WithArgs(string(domain.BriefSuperseded), "b2", "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkSuperseded(context.Background(), "b1", "b2"); err != nil {
		t.Fatalf("MarkSuperseded() error: %v", err)
	}
}

func TestAlertInsertIfAbsentDedup(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAlertRepo(db)
	a := &domain.Alert{
		ID:          uuid.New().String(),
		Fingerprint: "shopify:revenue_drop:shop1:2026-08-29",
		Source:      "shopify",
		AnomalyType: "revenue_drop",
		EntityID:    "shop1",
		Severity:    domain.SeverityCritical,
		Status:      domain.AlertOpen,
	}

	mock.ExpectExec("INSERT INTO alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), a)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.InsertIfAbsent(context.Background(), a)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("same fingerprint must not insert twice")
	}
}

func TestAlertListFilters(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAlertRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(string(domain.AlertOpen), "shopify").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{
		"id", "fingerprint", "source", "anomaly_type", "entity_id", "severity",
		"status", "title", "description", "impact", "current_value",
		"previous_value", "change_percent", "suggested_actions", "created_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs(string(domain.AlertOpen), "shopify", 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "fp", "shopify", "revenue_drop", "shop1", "critical",
				"open", "Revenue crash", "desc", "impact", 500.0, 1100.0, -54.55,
				[]byte(`{"check checkout flow"}`), now))

	out, total, err := repo.List(context.Background(), AlertFilter{
		Status: domain.AlertOpen,
		Source: "shopify",
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 1 || len(out) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(out))
	}
	if out[0].ChangePercent != -54.55 || len(out[0].SuggestedActions) != 1 {
		t.Errorf("alert not scanned: %+v", out[0])
	}
}
