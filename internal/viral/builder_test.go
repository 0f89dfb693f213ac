package viral

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atlasmedia/pulse/internal/domain"
)

type memSignalStore struct {
	signals []domain.Signal
	err     error
}

func (m *memSignalStore) ListByIndustry(_ context.Context, _ string, _ time.Time) ([]domain.Signal, error) {
	return m.signals, m.err
}

type memOppStore struct {
	created      []domain.Opportunity
	byID         map[string]*domain.Opportunity
	recentTitles []string
}

func newMemOppStore() *memOppStore {
	return &memOppStore{byID: map[string]*domain.Opportunity{}}
}

func (m *memOppStore) Create(_ context.Context, o *domain.Opportunity) error {
	cp := *o
	m.created = append(m.created, cp)
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOppStore) Get(_ context.Context, id string) (*domain.Opportunity, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOppStore) UpdateStatus(_ context.Context, id string, status domain.OpportunityStatus) error {
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memOppStore) RecentKeywordTitles(_ context.Context, _ string, _ int) ([]string, error) {
	return m.recentTitles, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateOpportunities(_ context.Context) error {
	c.calls++
	return nil
}

func buildSignals(now time.Time) []domain.Signal {
	mk := func(id, title, excerpt string, ageHours int, upvotes int) domain.Signal {
		return domain.Signal{
			ID:                id,
			Title:             title,
			RawExcerpt:        excerpt,
			CreatedAtExternal: now.Add(-time.Duration(ageHours) * time.Hour),
			Metrics:           domain.SignalMetrics{Upvotes: upvotes, Comments: upvotes / 10, Velocity: float64(upvotes) / float64(ageHours)},
		}
	}

	signals := []domain.Signal{
		// Hot protein coffee cluster.
		mk("s1", "protein coffee is everywhere now", "tried a scoop in cold brew", 4, 900),
		mk("s2", "protein coffee recipes thread", "collecting protein coffee recipes", 8, 400),
		mk("s3", "cold brew protein coffee experiment", "week long protein experiment", 12, 300),
		// Older cold plunge cluster.
		mk("s4", "cold plunge recovery benefits", "daily recovery habit in the tub", 100, 200),
		mk("s5", "cold plunge recovery setup at home", "building a recovery tub", 110, 150),
		// Spam entries, dropped before clustering.
		mk("s6", "Huge GIVEAWAY protein powder", "dm me to enter", 2, 5000),
		mk("s7", "THIS IS THE BEST SUPPLEMENT EVER MADE", "", 3, 100),
	}

	// Filler singleton clusters.
	for i := 0; i < 13; i++ {
		signals = append(signals, mk(
			fmt.Sprintf("f%d", i),
			fmt.Sprintf("topic%d alpha%d beta%d", i, i, i),
			"",
			48+i, 50,
		))
	}
	return signals
}

func testBuildParams() BuildParams {
	return BuildParams{
		Industry: "fitness",
		Channels: []domain.Channel{domain.ChannelYouTube, domain.ChannelInstagram},
		Limit:    5,
		Days:     14,
	}
}

func TestBuildEndToEnd(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := newMemOppStore()
	inv := &countingInvalidator{}
	b := NewBuilder(&memSignalStore{signals: buildSignals(now)}, store, inv, nil,
		WithClock(func() time.Time { return now }))

	result, err := b.Build(context.Background(), testBuildParams())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if result.SignalsSeen != 20 {
		t.Errorf("signals seen = %d, want 20", result.SignalsSeen)
	}
	if result.SpamDropped != 2 {
		t.Errorf("spam dropped = %d, want 2", result.SpamDropped)
	}
	if len(result.Opportunities) != 5 {
		t.Fatalf("got %d opportunities, want limit 5", len(result.Opportunities))
	}

	// Sorted descending by score.
	for i := 1; i < len(result.Opportunities); i++ {
		if result.Opportunities[i].Score > result.Opportunities[i-1].Score {
			t.Errorf("opportunities not sorted at %d: %d > %d",
				i, result.Opportunities[i].Score, result.Opportunities[i-1].Score)
		}
	}

	// The protein coffee cluster outranks everything else.
	top := result.Opportunities[0]
	if top.Title != "protein coffee is everywhere now" {
		t.Errorf("top title %q, want highest-velocity protein coffee signal", top.Title)
	}
	if len(top.Signals) != 3 {
		t.Errorf("top cluster has %d signals, want 3", len(top.Signals))
	}
	if top.Status != domain.OpportunityNew {
		t.Errorf("new opportunity status %s", top.Status)
	}

	// Channels round-robin in rank order.
	if result.Opportunities[0].Channel != domain.ChannelYouTube ||
		result.Opportunities[1].Channel != domain.ChannelInstagram ||
		result.Opportunities[2].Channel != domain.ChannelYouTube {
		t.Errorf("channel assignment: %s, %s, %s",
			result.Opportunities[0].Channel,
			result.Opportunities[1].Channel,
			result.Opportunities[2].Channel)
	}

	if inv.calls != 1 {
		t.Errorf("cache invalidated %d times, want 1", inv.calls)
	}
	if len(store.created) != 5 {
		t.Errorf("persisted %d opportunities, want 5", len(store.created))
	}
}

func TestBuildDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	run := func() []string {
		b := NewBuilder(&memSignalStore{signals: buildSignals(now)}, newMemOppStore(), nil, nil,
			WithClock(func() time.Time { return now }))
		res, err := b.Build(context.Background(), testBuildParams())
		if err != nil {
			t.Fatalf("Build() error: %v", err)
		}
		var titles []string
		for _, o := range res.Opportunities {
			titles = append(titles, o.Title)
		}
		return titles
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("rank %d changed between identical builds: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestBuildValidation(t *testing.T) {
	b := NewBuilder(&memSignalStore{}, newMemOppStore(), nil, nil)

	tests := []struct {
		name   string
		mutate func(*BuildParams)
		field  string
	}{
		{"missing industry", func(p *BuildParams) { p.Industry = "" }, "industry"},
		{"no channels", func(p *BuildParams) { p.Channels = nil }, "channels"},
		{"unknown channel", func(p *BuildParams) { p.Channels = []domain.Channel{"tiktok"} }, "channels"},
		{"limit too high", func(p *BuildParams) { p.Limit = 51 }, "limit"},
		{"zero days", func(p *BuildParams) { p.Days = 0 }, "days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testBuildParams()
			tt.mutate(&params)
			_, err := b.Build(context.Background(), params)
			ve, ok := domain.AsValidation(err)
			if !ok {
				t.Fatalf("got %v, want validation error", err)
			}
			if _, present := ve.Fields[tt.field]; !present {
				t.Errorf("fields %v missing %q", ve.Fields, tt.field)
			}
		})
	}
}

func TestBuildSignalStoreFailure(t *testing.T) {
	b := NewBuilder(&memSignalStore{err: errors.New("connection refused")}, newMemOppStore(), nil, nil)

	_, err := b.Build(context.Background(), testBuildParams())
	if err == nil {
		t.Fatal("expected infrastructure error to surface")
	}
}

func TestBuildNoveltyUsesHistory(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	fresh := newMemOppStore()
	b1 := NewBuilder(&memSignalStore{signals: buildSignals(now)}, fresh, nil, nil,
		WithClock(func() time.Time { return now }))
	res1, err := b1.Build(context.Background(), testBuildParams())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}

	// A store that already produced protein coffee opportunities penalizes
	// the repeat topic.
	seen := newMemOppStore()
	seen.recentTitles = []string{"protein coffee is everywhere now", "cold brew protein coffee experiment"}
	b2 := NewBuilder(&memSignalStore{signals: buildSignals(now)}, seen, nil, nil,
		WithClock(func() time.Time { return now }))
	res2, err := b2.Build(context.Background(), testBuildParams())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if res2.Opportunities[0].ScoreBreakdown.Novelty >= res1.Opportunities[0].ScoreBreakdown.Novelty {
		t.Errorf("novelty with history %d, without %d; history should penalize",
			res2.Opportunities[0].ScoreBreakdown.Novelty,
			res1.Opportunities[0].ScoreBreakdown.Novelty)
	}
}

func TestBuildWithSEO(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	intel := &StaticSearchIntelligence{
		Volumes: map[string]int{"protein": 5000, "coffee": 3000},
	}
	b := NewBuilder(&memSignalStore{signals: buildSignals(now)}, newMemOppStore(), nil, intel,
		WithClock(func() time.Time { return now }))

	params := testBuildParams()
	params.SEO = SEOOptions{Enabled: true}
	res, err := b.Build(context.Background(), params)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if res.SEOSummary == nil {
		t.Fatal("seo summary missing")
	}
	if res.SEOSummary.Classified != len(res.Opportunities) {
		t.Errorf("classified %d, want %d", res.SEOSummary.Classified, len(res.Opportunities))
	}
	if res.Opportunities[0].SEOData == nil ||
		res.Opportunities[0].SEOData.OpportunityType != domain.DemandCapture {
		t.Errorf("top opportunity seo: %+v", res.Opportunities[0].SEOData)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	store := newMemOppStore()
	store.byID["opp-1"] = &domain.Opportunity{ID: "opp-1", Status: domain.OpportunityNew}
	b := NewBuilder(&memSignalStore{}, store, nil, nil)

	opp, err := b.UpdateStatus(context.Background(), "opp-1", domain.OpportunityShortlisted)
	if err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}
	if opp.Status != domain.OpportunityShortlisted {
		t.Errorf("status %s, want shortlisted", opp.Status)
	}

	// Backward move is rejected.
	if _, err := b.UpdateStatus(context.Background(), "opp-1", domain.OpportunityNew); err == nil {
		t.Error("backward transition should fail")
	} else if _, ok := domain.AsInvalidTransition(err); !ok {
		t.Errorf("got %v, want invalid transition", err)
	}

	// Archive from anywhere, then re-archive is a no-op success.
	if _, err := b.UpdateStatus(context.Background(), "opp-1", domain.OpportunityArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := b.UpdateStatus(context.Background(), "opp-1", domain.OpportunityArchived); err != nil {
		t.Errorf("re-archive should be a no-op, got %v", err)
	}

	// Nothing leaves archived.
	if _, err := b.UpdateStatus(context.Background(), "opp-1", domain.OpportunityGenerated); err == nil {
		t.Error("transition out of archived should fail")
	}

	// Unknown status is a validation error.
	_, err = b.UpdateStatus(context.Background(), "opp-1", "parked")
	if _, ok := domain.AsValidation(err); !ok {
		t.Errorf("got %v, want validation error", err)
	}
}
