package viral

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
)

// SignalStore reads stored signals for a build window.
type SignalStore interface {
	ListByIndustry(ctx context.Context, industry string, since time.Time) ([]domain.Signal, error)
}

// OpportunityStore persists built opportunities and serves status updates.
type OpportunityStore interface {
	Create(ctx context.Context, o *domain.Opportunity) error
	Get(ctx context.Context, id string) (*domain.Opportunity, error)
	UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error
	RecentKeywordTitles(ctx context.Context, industry string, limit int) ([]string, error)
}

// CacheInvalidator drops cached opportunity reads after a successful build.
type CacheInvalidator interface {
	InvalidateOpportunities(ctx context.Context) error
}

// BuildParams are the inputs to one build request.
type BuildParams struct {
	Industry  string           `json:"industry"`
	ClientID  *string          `json:"client_id,omitempty"`
	Channels  []domain.Channel `json:"channels"`
	Limit     int              `json:"limit"`
	Days      int              `json:"days"`
	UseAI     bool             `json:"use_ai"`
	SEO       SEOOptions       `json:"seo"`
}

// SEOSummary aggregates gate outcomes across one build.
type SEOSummary struct {
	Classified    int `json:"classified"`
	DemandCapture int `json:"demand_capture"`
	GateFailures  int `json:"gate_failures"`
}

// BuildResult is the explicit result shape of one build. The builder never
// panics across this boundary; infrastructure failures come back as errors.
type BuildResult struct {
	Opportunities []domain.Opportunity `json:"data"`
	SEOSummary    *SEOSummary          `json:"seo_summary,omitempty"`
	SignalsSeen   int                  `json:"signals_seen"`
	SpamDropped   int                  `json:"spam_dropped"`
}

// Builder orchestrates signal retrieval → spam filtering → clustering →
// scoring → persistence. All collaborators are injected; the builder holds
// no process-wide state.
type Builder struct {
	signals       SignalStore
	opportunities OpportunityStore
	cache         CacheInvalidator
	intel         SearchIntelligence
	scoringCtx    func(industry string, clientID *string) ScoringContext
	minOverlap    int
	now           func() time.Time
}

// BuilderOption tweaks builder construction.
type BuilderOption func(*Builder)

// WithClock overrides the builder's clock, mainly for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithMinOverlap sets the cluster-mate keyword overlap threshold.
func WithMinOverlap(n int) BuilderOption {
	return func(b *Builder) { b.minOverlap = n }
}

// WithScoringContext supplies per-industry scoring context resolution.
func WithScoringContext(fn func(industry string, clientID *string) ScoringContext) BuilderOption {
	return func(b *Builder) { b.scoringCtx = fn }
}

// NewBuilder creates a builder with explicit collaborators.
func NewBuilder(signals SignalStore, opportunities OpportunityStore, cache CacheInvalidator, intel SearchIntelligence, opts ...BuilderOption) *Builder {
	b := &Builder{
		signals:       signals,
		opportunities: opportunities,
		cache:         cache,
		intel:         intel,
		minOverlap:    2,
		now:           time.Now,
		scoringCtx: func(string, *string) ScoringContext {
			return DefaultScoringContext()
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs one opportunity build: pulls signals for the industry/time
// window, drops spam, clusters survivors, scores each cluster, sorts
// descending by score (most-recent-signal-first on ties), truncates to the
// limit, and persists the result as new opportunities. On success the
// opportunity read cache is invalidated so fresh builds are visible
// immediately.
func (b *Builder) Build(ctx context.Context, params BuildParams) (*BuildResult, error) {
	if err := validateBuildParams(params); err != nil {
		return nil, err
	}

	now := b.now()
	since := now.Add(-time.Duration(params.Days) * 24 * time.Hour)

	signals, err := b.signals.ListByIndustry(ctx, params.Industry, since)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}

	result := &BuildResult{SignalsSeen: len(signals)}

	clean := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if IsSpam(SpamInput{Title: s.Title, RawExcerpt: s.RawExcerpt}) {
			result.SpamDropped++
			continue
		}
		clean = append(clean, s)
	}

	scoringCtx := b.scoringCtx(params.Industry, params.ClientID)
	if err := b.seedPriorKeywords(ctx, params.Industry, &scoringCtx); err != nil {
		// Novelty degrades gracefully without history; not fatal.
		logger.Warn("prior keyword seed failed", "industry", params.Industry, "error", err)
	}

	clusters := ClusterSignals(clean, b.minOverlap)

	type scored struct {
		cluster   Cluster
		breakdown domain.ScoreBreakdown
		newest    time.Time
	}
	ranked := make([]scored, 0, len(clusters))
	for _, c := range clusters {
		newest := c.Signals[0].CreatedAtExternal
		for _, s := range c.Signals {
			if s.CreatedAtExternal.After(newest) {
				newest = s.CreatedAtExternal
			}
		}
		ranked = append(ranked, scored{
			cluster:   c,
			breakdown: ScoreCluster(c, now, scoringCtx),
			newest:    newest,
		})
	}

	// Descending by score; ties go to the cluster with the most recent
	// signal. SliceStable keeps input order as the final tie-break so
	// identical inputs rank identically.
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].breakdown.Total(), ranked[j].breakdown.Total()
		if si != sj {
			return si > sj
		}
		return ranked[i].newest.After(ranked[j].newest)
	})

	if len(ranked) > params.Limit {
		ranked = ranked[:params.Limit]
	}

	var summary *SEOSummary
	if params.SEO.Enabled {
		summary = &SEOSummary{}
	}

	for i, r := range ranked {
		opp := domain.Opportunity{
			ID:             uuid.New().String(),
			Industry:       params.Industry,
			ClientID:       params.ClientID,
			Channel:        params.Channels[i%len(params.Channels)],
			Status:         domain.OpportunityNew,
			Title:          topSignalTitle(r.cluster),
			Score:          r.breakdown.Total(),
			ScoreBreakdown: r.breakdown,
			Signals:        r.cluster.Signals,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if params.SEO.Enabled && b.intel != nil {
			seo, err := ClassifySEO(ctx, b.intel, r.cluster.Keywords, params.SEO)
			if err != nil {
				logger.Warn("seo classification failed", "opportunity", opp.ID, "error", err)
			} else {
				opp.SEOData = seo
				summary.Classified++
				if seo.OpportunityType == domain.DemandCapture {
					summary.DemandCapture++
				}
				if !seo.GatePassed {
					summary.GateFailures++
				}
			}
		}

		if err := b.opportunities.Create(ctx, &opp); err != nil {
			return nil, fmt.Errorf("persist opportunity: %w", err)
		}
		result.Opportunities = append(result.Opportunities, opp)
	}
	result.SEOSummary = summary

	if b.cache != nil {
		if err := b.cache.InvalidateOpportunities(ctx); err != nil {
			logger.Warn("opportunity cache invalidation failed", "error", err)
		}
	}

	logger.Info("opportunity build complete",
		"industry", params.Industry,
		"signals", result.SignalsSeen,
		"spam_dropped", result.SpamDropped,
		"opportunities", len(result.Opportunities))

	return result, nil
}

// UpdateStatus performs a single-step status write, rejecting illegal
// transitions before touching the store.
func (b *Builder) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) (*domain.Opportunity, error) {
	if !domain.ValidOpportunityStatus(status) {
		return nil, domain.NewValidationError(map[string]string{"status": "unknown status " + string(status)})
	}

	opp, err := b.opportunities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionOpportunity(opp.Status, status) {
		return nil, &domain.InvalidTransitionError{
			Entity: "opportunity",
			From:   string(opp.Status),
			To:     string(status),
		}
	}
	if err := b.opportunities.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	opp.Status = status
	return opp, nil
}

// seedPriorKeywords folds recent opportunity titles into the novelty
// context so repeat topics score lower.
func (b *Builder) seedPriorKeywords(ctx context.Context, industry string, sc *ScoringContext) error {
	titles, err := b.opportunities.RecentKeywordTitles(ctx, industry, 50)
	if err != nil {
		return err
	}
	if sc.PriorKeywords == nil {
		sc.PriorKeywords = make(map[string]struct{})
	}
	for _, t := range titles {
		for k := range ExtractKeywords(t) {
			sc.PriorKeywords[k] = struct{}{}
		}
	}
	return nil
}

// topSignalTitle picks the highest-velocity signal's title as the
// opportunity headline.
func topSignalTitle(c Cluster) string {
	best := c.Signals[0]
	for _, s := range c.Signals[1:] {
		if s.Metrics.Velocity > best.Metrics.Velocity {
			best = s
		}
	}
	return best.Title
}

func validateBuildParams(params BuildParams) error {
	fields := map[string]string{}
	if params.Industry == "" {
		fields["industry"] = "industry is required"
	}
	if len(params.Channels) == 0 {
		fields["channels"] = "at least one channel is required"
	}
	for _, c := range params.Channels {
		if !domain.ValidChannel(c) {
			fields["channels"] = "unknown channel " + string(c)
		}
	}
	if params.Limit <= 0 || params.Limit > 50 {
		fields["limit"] = "limit must be between 1 and 50"
	}
	if params.Days <= 0 || params.Days > 90 {
		fields["days"] = "days must be between 1 and 90"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}
