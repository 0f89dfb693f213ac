package viral

import (
	"math"
	"time"

	"github.com/atlasmedia/pulse/internal/domain"
)

// Sub-score caps. They sum to exactly 100, which keeps the total in range
// before the defensive clamp in ScoreBreakdown.Total.
const (
	CapEngagement  = 30
	CapFreshness   = 20
	CapRelevance   = 25
	CapNovelty     = 15
	CapSeasonality = 10
)

// SeasonalWindow marks a date range in which an industry topic is in season.
type SeasonalWindow struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// ScoringContext carries the business-tunable inputs for the relevance,
// novelty, and seasonality sub-scores. Each sub-score reads only its own
// slice of the context; none reads another's output.
type ScoringContext struct {
	// ContextTerms are industry/client keywords; each hit is worth
	// RelevancePointsPerHit up to the cap.
	ContextTerms map[string]struct{}
	// PriorKeywords are keywords of previously built opportunities; each
	// collision costs NoveltyPenaltyPerHit from the full novelty score.
	PriorKeywords map[string]struct{}
	// SeasonalWindows are the industry's in-season ranges.
	SeasonalWindows []SeasonalWindow

	RelevancePointsPerHit int
	NoveltyPenaltyPerHit  int
	SeasonalityNearDays   int
}

// DefaultScoringContext returns a context with the tuned point values.
func DefaultScoringContext() ScoringContext {
	return ScoringContext{
		ContextTerms:          map[string]struct{}{},
		PriorKeywords:         map[string]struct{}{},
		RelevancePointsPerHit: 5,
		NoveltyPenaltyPerHit:  5,
		SeasonalityNearDays:   14,
	}
}

// EngagementScore is logarithmic so runaway virality cannot dominate the
// total: min(30, round(log10(upvotes+1)*5 + log10(comments+1)*3)).
func EngagementScore(upvotes, comments int) int {
	if upvotes < 0 {
		upvotes = 0
	}
	if comments < 0 {
		comments = 0
	}
	raw := math.Log10(float64(upvotes)+1)*5 + math.Log10(float64(comments)+1)*3
	score := int(math.Round(raw))
	if score > CapEngagement {
		return CapEngagement
	}
	return score
}

// FreshnessScore decays linearly from 20 at age zero to 0 at 240 hours.
func FreshnessScore(ageHours float64) int {
	score := int(math.Round(20 - ageHours/12))
	if score < 0 {
		return 0
	}
	if score > CapFreshness {
		return CapFreshness
	}
	return score
}

// RelevanceScore awards points per keyword hit against the industry/client
// context terms, capped at 25. Monotone non-decreasing in hits.
func RelevanceScore(keywords map[string]struct{}, ctx ScoringContext) int {
	perHit := ctx.RelevancePointsPerHit
	if perHit <= 0 {
		perHit = 5
	}
	score := CountOverlap(keywords, ctx.ContextTerms) * perHit
	if score > CapRelevance {
		return CapRelevance
	}
	return score
}

// NoveltyScore starts from the full 15 and subtracts a penalty per keyword
// already seen in prior opportunities, floored at 0. Monotone non-increasing
// in collisions.
func NoveltyScore(keywords map[string]struct{}, ctx ScoringContext) int {
	penalty := ctx.NoveltyPenaltyPerHit
	if penalty <= 0 {
		penalty = 5
	}
	score := CapNovelty - CountOverlap(keywords, ctx.PriorKeywords)*penalty
	if score < 0 {
		return 0
	}
	return score
}

// SeasonalityScore awards the full 10 inside a seasonal window, 5 within
// the near-window margin, and 0 otherwise.
func SeasonalityScore(now time.Time, ctx ScoringContext) int {
	nearDays := ctx.SeasonalityNearDays
	if nearDays <= 0 {
		nearDays = 14
	}
	margin := time.Duration(nearDays) * 24 * time.Hour

	best := 0
	for _, w := range ctx.SeasonalWindows {
		if !now.Before(w.Start) && !now.After(w.End) {
			return CapSeasonality
		}
		if !now.Before(w.Start.Add(-margin)) && !now.After(w.End.Add(margin)) && best < 5 {
			best = 5
		}
	}
	return best
}

// ScoreCluster computes the full breakdown for a cluster of signals at the
// given instant. Engagement and freshness use the cluster's aggregate
// metrics and most recent signal; the remaining sub-scores use the combined
// keyword set.
func ScoreCluster(c Cluster, now time.Time, ctx ScoringContext) domain.ScoreBreakdown {
	upvotes, comments := 0, 0
	newest := c.Signals[0].CreatedAtExternal
	for _, s := range c.Signals {
		upvotes += s.Metrics.Upvotes
		comments += s.Metrics.Comments
		if s.CreatedAtExternal.After(newest) {
			newest = s.CreatedAtExternal
		}
	}

	return domain.ScoreBreakdown{
		Engagement:  EngagementScore(upvotes, comments),
		Freshness:   FreshnessScore(now.Sub(newest).Hours()),
		Relevance:   RelevanceScore(c.Keywords, ctx),
		Novelty:     NoveltyScore(c.Keywords, ctx),
		Seasonality: SeasonalityScore(now, ctx),
	}
}
