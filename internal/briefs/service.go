package briefs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/llm"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
)

// Store persists briefs. Brief rows are append-only: content never changes
// after insert, only status and audit fields do.
type Store interface {
	Create(ctx context.Context, b *domain.Brief) error
	Get(ctx context.Context, id string) (*domain.Brief, error)
	UpdateReview(ctx context.Context, id string, status domain.BriefStatus, approvedBy, rejectedReason *string) error
	MarkSuperseded(ctx context.Context, id, supersededByID string) error
	ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.Brief, error)
}

// OpportunityReader resolves the opportunity a generation targets.
type OpportunityReader interface {
	Get(ctx context.Context, id string) (*domain.Opportunity, error)
}

// Service orchestrates brief generation and review.
type Service struct {
	store         Store
	opportunities OpportunityReader
	generator     llm.Generator
	renderer      *PromptRenderer
	timeout       time.Duration
}

// NewService wires the brief service with explicit collaborators.
func NewService(store Store, opportunities OpportunityReader, generator llm.Generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		store:         store,
		opportunities: opportunities,
		generator:     generator,
		renderer:      NewPromptRenderer(),
		timeout:       timeout,
	}
}

// GenerateParams are the inputs to one multi-channel generation request.
type GenerateParams struct {
	OpportunityID string           `json:"opportunity_id"`
	Channels      []domain.Channel `json:"channels"`
	UserID        string           `json:"user_id"`
	ClientName    string           `json:"client_name,omitempty"`
	Instruction   string           `json:"instruction,omitempty"`
}

// ChannelError records a per-channel generation failure.
type ChannelError struct {
	Channel domain.Channel `json:"channel"`
	Message string         `json:"message"`
}

// GenerateResult is the explicit result shape of one generation request.
// Success means at least one channel produced a brief: one channel's
// failure never aborts the others.
type GenerateResult struct {
	Generations []domain.Brief `json:"data"`
	Errors      []ChannelError `json:"errors,omitempty"`
	Success     bool           `json:"success"`
}

// GenerateContentPackages generates one draft brief per requested channel.
// Channels fan out concurrently: each is an independent LLM call with its
// own timeout, so one slow channel never blocks another.
func (s *Service) GenerateContentPackages(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	if err := validateGenerateParams(params); err != nil {
		return nil, err
	}

	opp, err := s.opportunities.Get(ctx, params.OpportunityID)
	if err != nil {
		return nil, err
	}

	type channelOutcome struct {
		brief *domain.Brief
		err   *ChannelError
	}

	outcomes := make([]channelOutcome, len(params.Channels))
	var wg sync.WaitGroup
	for i, channel := range params.Channels {
		wg.Add(1)
		go func(i int, channel domain.Channel) {
			defer wg.Done()

			genCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			brief, err := s.generateOne(genCtx, opp, channel, params)
			if err != nil {
				logger.Warn("channel generation failed",
					"opportunity", opp.ID, "channel", channel, "error", err)
				outcomes[i] = channelOutcome{err: &ChannelError{Channel: channel, Message: err.Error()}}
				return
			}
			outcomes[i] = channelOutcome{brief: brief}
		}(i, channel)
	}
	wg.Wait()

	result := &GenerateResult{}
	for _, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, *o.err)
			continue
		}
		result.Generations = append(result.Generations, *o.brief)
	}
	result.Success = len(result.Errors) < len(params.Channels)
	return result, nil
}

// generateOne renders the channel prompt, runs the typed generation with
// its bounded repair retry, and persists the draft brief.
func (s *Service) generateOne(ctx context.Context, opp *domain.Opportunity, channel domain.Channel, params GenerateParams) (*domain.Brief, error) {
	pctx := PromptContext{
		Title:       opp.Title,
		Industry:    opp.Industry,
		Channel:     channel,
		Instruction: params.Instruction,
		ClientName:  params.ClientName,
	}
	for _, sig := range opp.Signals {
		pctx.SignalTitles = append(pctx.SignalTitles, sig.Title)
		if sig.RawExcerpt != "" {
			pctx.Excerpts = append(pctx.Excerpts, sig.RawExcerpt)
		}
	}

	system, err := s.renderer.System(pctx)
	if err != nil {
		return nil, err
	}
	prompt, err := s.renderer.Prompt(pctx)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.GenerateJSON[domain.BriefContent](ctx, s.generator, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}
	if !parsed.OK() {
		return nil, parsed.Err
	}

	now := time.Now().UTC()
	brief := &domain.Brief{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Channel:       channel,
		Status:        domain.BriefDraft,
		Content:       parsed.Value,
		Instruction:   params.Instruction,
		CreatedBy:     params.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, brief); err != nil {
		return nil, fmt.Errorf("persist brief: %w", err)
	}
	return brief, nil
}

// Approve transitions a draft brief to approved with an audit trail.
// Only drafts can be reviewed.
func (s *Service) Approve(ctx context.Context, id, approverID string) (*domain.Brief, error) {
	brief, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if brief.Status != domain.BriefDraft {
		return nil, &domain.InvalidTransitionError{
			Entity: "brief",
			From:   string(brief.Status),
			To:     string(domain.BriefApproved),
		}
	}
	if err := s.store.UpdateReview(ctx, id, domain.BriefApproved, &approverID, nil); err != nil {
		return nil, err
	}
	brief.Status = domain.BriefApproved
	brief.ApprovedBy = &approverID
	return brief, nil
}

// Reject transitions a draft brief to rejected, recording the reason.
func (s *Service) Reject(ctx context.Context, id string, reason *string) (*domain.Brief, error) {
	brief, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if brief.Status != domain.BriefDraft {
		return nil, &domain.InvalidTransitionError{
			Entity: "brief",
			From:   string(brief.Status),
			To:     string(domain.BriefRejected),
		}
	}
	if err := s.store.UpdateReview(ctx, id, domain.BriefRejected, nil, reason); err != nil {
		return nil, err
	}
	brief.Status = domain.BriefRejected
	brief.RejectedReason = reason
	return brief, nil
}

// RegenerateResult is the explicit outcome of an angle regeneration.
type RegenerateResult struct {
	Success    bool          `json:"success"`
	Brief      *domain.Brief `json:"data,omitempty"`
	OldBriefID string        `json:"old_brief_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// RegenerateAngle supersedes an existing draft or rejected brief with a
// freshly generated one carrying the reviewer's instruction. History is
// append-only: the old brief is never edited, it points forward at its
// replacement.
func (s *Service) RegenerateAngle(ctx context.Context, briefID, instruction, userID string) (*RegenerateResult, error) {
	old, err := s.store.Get(ctx, briefID)
	if err != nil {
		return nil, err
	}
	if !old.Status.CanRegenerate() {
		return nil, &domain.InvalidTransitionError{
			Entity: "brief",
			From:   string(old.Status),
			To:     string(domain.BriefSuperseded),
		}
	}

	opp, err := s.opportunities.Get(ctx, old.OpportunityID)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	newBrief, err := s.generateOne(genCtx, opp, old.Channel, GenerateParams{
		OpportunityID: opp.ID,
		UserID:        userID,
		Instruction:   instruction,
	})
	if err != nil {
		return &RegenerateResult{Success: false, Error: err.Error()}, nil
	}

	if err := s.store.MarkSuperseded(ctx, old.ID, newBrief.ID); err != nil {
		return nil, fmt.Errorf("mark superseded: %w", err)
	}

	return &RegenerateResult{Success: true, Brief: newBrief, OldBriefID: old.ID}, nil
}

func validateGenerateParams(params GenerateParams) error {
	fields := map[string]string{}
	if params.OpportunityID == "" {
		fields["opportunity_id"] = "opportunity_id is required"
	}
	if len(params.Channels) == 0 {
		fields["channels"] = "at least one channel is required"
	}
	for _, c := range params.Channels {
		if !domain.ValidChannel(c) {
			fields["channels"] = "unknown channel " + string(c)
		}
	}
	if params.UserID == "" {
		fields["user_id"] = "user_id is required"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}
