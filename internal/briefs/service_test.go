package briefs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlasmedia/pulse/internal/domain"
)

type memBriefStore struct {
	mu     sync.Mutex
	briefs map[string]*domain.Brief
}

func newMemBriefStore() *memBriefStore {
	return &memBriefStore{briefs: map[string]*domain.Brief{}}
}

func (m *memBriefStore) Create(_ context.Context, b *domain.Brief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.briefs[b.ID] = &cp
	return nil
}

func (m *memBriefStore) Get(_ context.Context, id string) (*domain.Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBriefStore) UpdateReview(_ context.Context, id string, status domain.BriefStatus, approvedBy, rejectedReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	b.ApprovedBy = approvedBy
	b.RejectedReason = rejectedReason
	return nil
}

func (m *memBriefStore) MarkSuperseded(_ context.Context, id, supersededByID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = domain.BriefSuperseded
	b.SupersededByBriefID = &supersededByID
	return nil
}

func (m *memBriefStore) ListByOpportunity(_ context.Context, opportunityID string) ([]domain.Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Brief
	for _, b := range m.briefs {
		if b.OpportunityID == opportunityID {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakeOppReader struct {
	opp *domain.Opportunity
}

func (f *fakeOppReader) Get(_ context.Context, id string) (*domain.Opportunity, error) {
	if f.opp == nil || f.opp.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.opp, nil
}

// scriptedGenerator fails on prompts containing any failSubstr, otherwise
// returns output.
type scriptedGenerator struct {
	mu         sync.Mutex
	output     string
	failSubstr string
	calls      int
}

func (g *scriptedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.failSubstr != "" && strings.Contains(prompt, g.failSubstr) {
		return "", errors.New("model overloaded")
	}
	return g.output, nil
}

func testOpportunity() *domain.Opportunity {
	return &domain.Opportunity{
		ID:       "opp-1",
		Industry: "fitness",
		Title:    "protein coffee",
		Status:   domain.OpportunityShortlisted,
		Signals: []domain.Signal{
			{Title: "I tried protein coffee for a week", RawExcerpt: "scoop in cold brew"},
		},
	}
}

func newTestService(store Store, gen *scriptedGenerator) *Service {
	return NewService(store, &fakeOppReader{opp: testOpportunity()}, gen, time.Second)
}

func TestGenerateContentPackagesAllChannels(t *testing.T) {
	store := newMemBriefStore()
	gen := &scriptedGenerator{output: `{"hook":"h","angle":"a"}`}
	svc := newTestService(store, gen)

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube, domain.ChannelInstagram, domain.ChannelBlog},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("GenerateContentPackages() error: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if len(res.Generations) != 3 {
		t.Fatalf("got %d generations, want 3", len(res.Generations))
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}
	for _, b := range res.Generations {
		if b.Status != domain.BriefDraft {
			t.Errorf("channel %s: status %s, want draft", b.Channel, b.Status)
		}
		if b.Content.Hook != "h" {
			t.Errorf("channel %s: content not decoded: %+v", b.Channel, b.Content)
		}
		if b.CreatedBy != "user-1" {
			t.Errorf("channel %s: created_by %q", b.Channel, b.CreatedBy)
		}
	}
	if len(store.briefs) != 3 {
		t.Errorf("store has %d briefs, want 3", len(store.briefs))
	}
}

func TestGenerateContentPackagesPartialFailure(t *testing.T) {
	store := newMemBriefStore()
	// The Instagram template is the only one that asks for hashtags.
	gen := &scriptedGenerator{output: `{"hook":"h"}`, failSubstr: "Instagram"}
	svc := newTestService(store, gen)

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube, domain.ChannelInstagram},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("GenerateContentPackages() error: %v", err)
	}
	if !res.Success {
		t.Error("one surviving channel should still count as success")
	}
	if len(res.Generations) != 1 || res.Generations[0].Channel != domain.ChannelYouTube {
		t.Errorf("generations: %+v", res.Generations)
	}
	if len(res.Errors) != 1 || res.Errors[0].Channel != domain.ChannelInstagram {
		t.Errorf("errors: %+v", res.Errors)
	}
}

func TestGenerateContentPackagesTotalFailure(t *testing.T) {
	store := newMemBriefStore()
	gen := &scriptedGenerator{output: `{"hook":"h"}`, failSubstr: "protein coffee"}
	svc := newTestService(store, gen)

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube, domain.ChannelBlog},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("GenerateContentPackages() error: %v", err)
	}
	if res.Success {
		t.Error("all channels failed, success must be false")
	}
	if len(res.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(res.Errors))
	}
}

func TestGenerateContentPackagesValidation(t *testing.T) {
	svc := newTestService(newMemBriefStore(), &scriptedGenerator{output: "{}"})

	_, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		Channels: []domain.Channel{domain.Channel("tiktok")},
	})
	ve, ok := domain.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"opportunity_id", "channels", "user_id"} {
		if _, present := ve.Fields[field]; !present {
			t.Errorf("validation missing field %q: %+v", field, ve.Fields)
		}
	}
}

func TestApproveAndRejectDraftOnly(t *testing.T) {
	store := newMemBriefStore()
	gen := &scriptedGenerator{output: `{"hook":"h"}`}
	svc := newTestService(store, gen)

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id := res.Generations[0].ID

	approved, err := svc.Approve(context.Background(), id, "reviewer-1")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if approved.Status != domain.BriefApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != "reviewer-1" {
		t.Errorf("approved brief: %+v", approved)
	}

	// An approved brief cannot be approved again or rejected.
	if _, err := svc.Approve(context.Background(), id, "reviewer-2"); err == nil {
		t.Error("re-approve should fail")
	}
	reason := "off brand"
	_, err = svc.Reject(context.Background(), id, &reason)
	if _, ok := domain.AsInvalidTransition(err); !ok {
		t.Errorf("rejecting an approved brief: got %v, want invalid transition", err)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	store := newMemBriefStore()
	svc := newTestService(store, &scriptedGenerator{output: `{"hook":"h"}`})

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelBlog},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	reason := "too generic"
	rejected, err := svc.Reject(context.Background(), res.Generations[0].ID, &reason)
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if rejected.Status != domain.BriefRejected || rejected.RejectedReason == nil || *rejected.RejectedReason != "too generic" {
		t.Errorf("rejected brief: %+v", rejected)
	}
}

func TestRegenerateAngleSupersedes(t *testing.T) {
	store := newMemBriefStore()
	svc := newTestService(store, &scriptedGenerator{output: `{"hook":"h","angle":"contrarian"}`})

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	oldID := res.Generations[0].ID

	regen, err := svc.RegenerateAngle(context.Background(), oldID, "take the contrarian view", "user-2")
	if err != nil {
		t.Fatalf("RegenerateAngle() error: %v", err)
	}
	if !regen.Success || regen.Brief == nil {
		t.Fatalf("regenerate result: %+v", regen)
	}
	if regen.Brief.ID == oldID {
		t.Error("regeneration must create a new brief, not edit the old one")
	}
	if regen.Brief.Instruction != "take the contrarian view" {
		t.Errorf("instruction: %q", regen.Brief.Instruction)
	}
	if regen.Brief.Channel != domain.ChannelYouTube {
		t.Errorf("channel not inherited: %s", regen.Brief.Channel)
	}

	old, err := store.Get(context.Background(), oldID)
	if err != nil {
		t.Fatalf("get old brief: %v", err)
	}
	if old.Status != domain.BriefSuperseded {
		t.Errorf("old brief status %s, want superseded", old.Status)
	}
	if old.SupersededByBriefID == nil || *old.SupersededByBriefID != regen.Brief.ID {
		t.Errorf("old brief forward pointer: %v", old.SupersededByBriefID)
	}
}

func TestRegenerateAngleRejectedBrief(t *testing.T) {
	store := newMemBriefStore()
	svc := newTestService(store, &scriptedGenerator{output: `{"hook":"h"}`})

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelBlog},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	reason := "wrong tone"
	if _, err := svc.Reject(context.Background(), res.Generations[0].ID, &reason); err != nil {
		t.Fatalf("reject: %v", err)
	}

	regen, err := svc.RegenerateAngle(context.Background(), res.Generations[0].ID, "warmer tone", "user-1")
	if err != nil {
		t.Fatalf("RegenerateAngle() error: %v", err)
	}
	if !regen.Success {
		t.Errorf("rejected briefs are regenerable: %+v", regen)
	}
}

func TestRegenerateAngleFrozenStates(t *testing.T) {
	store := newMemBriefStore()
	svc := newTestService(store, &scriptedGenerator{output: `{"hook":"h"}`})

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id := res.Generations[0].ID
	if _, err := svc.Approve(context.Background(), id, "reviewer-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = svc.RegenerateAngle(context.Background(), id, "different angle", "user-1")
	if _, ok := domain.AsInvalidTransition(err); !ok {
		t.Errorf("regenerating an approved brief: got %v, want invalid transition", err)
	}
}

func TestRegenerateAngleGenerationFailure(t *testing.T) {
	store := newMemBriefStore()
	gen := &scriptedGenerator{output: `{"hook":"h"}`}
	svc := newTestService(store, gen)

	res, err := svc.GenerateContentPackages(context.Background(), GenerateParams{
		OpportunityID: "opp-1",
		Channels:      []domain.Channel{domain.ChannelYouTube},
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	oldID := res.Generations[0].ID

	// All prompts mention the opportunity title, so everything fails now.
	gen.failSubstr = "protein coffee"
	regen, err := svc.RegenerateAngle(context.Background(), oldID, "new angle", "user-1")
	if err != nil {
		t.Fatalf("RegenerateAngle() error: %v", err)
	}
	if regen.Success {
		t.Error("generation failed, success must be false")
	}

	// The old brief stays live when regeneration fails.
	old, _ := store.Get(context.Background(), oldID)
	if old.Status != domain.BriefDraft {
		t.Errorf("old brief status %s, want draft", old.Status)
	}
}
