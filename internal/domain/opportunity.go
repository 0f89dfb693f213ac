package domain

import "time"

// Channel identifies a content distribution channel.
type Channel string

const (
	ChannelYouTube   Channel = "youtube"
	ChannelInstagram Channel = "instagram"
	ChannelBlog      Channel = "blog"
)

// ValidChannel reports whether c is a known channel.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelYouTube, ChannelInstagram, ChannelBlog:
		return true
	}
	return false
}

// OpportunityStatus enumerates the lifecycle states of an opportunity.
type OpportunityStatus string

const (
	OpportunityNew         OpportunityStatus = "new"
	OpportunityShortlisted OpportunityStatus = "shortlisted"
	OpportunityGenerated   OpportunityStatus = "generated"
	OpportunityArchived    OpportunityStatus = "archived"
)

// opportunityRank orders the forward-only states. Archived is handled
// separately since it is reachable from anywhere.
var opportunityRank = map[OpportunityStatus]int{
	OpportunityNew:         0,
	OpportunityShortlisted: 1,
	OpportunityGenerated:   2,
}

// ValidOpportunityStatus reports whether s is a known status.
func ValidOpportunityStatus(s OpportunityStatus) bool {
	if s == OpportunityArchived {
		return true
	}
	_, ok := opportunityRank[s]
	return ok
}

// CanTransitionOpportunity reports whether moving from→to is legal.
// Statuses only move forward (new → shortlisted → generated); archived is
// reachable from any state and terminal apart from a no-op re-archive.
func CanTransitionOpportunity(from, to OpportunityStatus) bool {
	if to == OpportunityArchived {
		return true
	}
	if from == OpportunityArchived {
		return false
	}
	fr, ok := opportunityRank[from]
	if !ok {
		return false
	}
	tr, ok := opportunityRank[to]
	if !ok {
		return false
	}
	return tr >= fr
}

// ScoreBreakdown holds the five independently capped sub-scores.
// Caps: engagement 30, freshness 20, relevance 25, novelty 15,
// seasonality 10, summing to exactly 100.
type ScoreBreakdown struct {
	Engagement  int `json:"engagement"`
	Freshness   int `json:"freshness"`
	Relevance   int `json:"relevance"`
	Novelty     int `json:"novelty"`
	Seasonality int `json:"seasonality"`
}

// Total returns the sum of the sub-scores clamped to [0,100].
func (b ScoreBreakdown) Total() int {
	t := b.Engagement + b.Freshness + b.Relevance + b.Novelty + b.Seasonality
	if t < 0 {
		return 0
	}
	if t > 100 {
		return 100
	}
	return t
}

// OpportunityType classifies the SEO posture of an opportunity.
type OpportunityType string

const (
	DemandCapture  OpportunityType = "demand_capture"
	DemandCreation OpportunityType = "demand_creation"
)

// SEOData carries search-intelligence classification for an opportunity.
type SEOData struct {
	OpportunityType OpportunityType `json:"opportunity_type"`
	SearchVolume    int             `json:"search_volume"`
	HasRankingData  bool            `json:"has_ranking_data"`
	GateEvaluated   bool            `json:"gate_evaluated"`
	GatePassed      bool            `json:"gate_passed"`
	GateReasons     []string        `json:"gate_reasons,omitempty"`
}

// Opportunity is a scored, channel-targetable content idea derived from a
// cluster of signals. Opportunities are never hard-deleted, only archived.
type Opportunity struct {
	ID             string            `json:"id" db:"id"`
	Industry       string            `json:"industry" db:"industry"`
	ClientID       *string           `json:"client_id,omitempty" db:"client_id"`
	Channel        Channel           `json:"channel" db:"channel"`
	Status         OpportunityStatus `json:"status" db:"status"`
	Title          string            `json:"title" db:"title"`
	Score          int               `json:"score" db:"score"`
	ScoreBreakdown ScoreBreakdown    `json:"score_breakdown"`
	Signals        []Signal          `json:"signals,omitempty"`
	SEOData        *SEOData          `json:"seo_data,omitempty"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}
