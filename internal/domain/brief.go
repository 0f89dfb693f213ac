package domain

import "time"

// BriefStatus enumerates the lifecycle states of a content brief.
type BriefStatus string

const (
	BriefDraft      BriefStatus = "draft"
	BriefApproved   BriefStatus = "approved"
	BriefRejected   BriefStatus = "rejected"
	BriefSuperseded BriefStatus = "superseded"
)

// ValidBriefStatus reports whether s is a known brief status.
func ValidBriefStatus(s BriefStatus) bool {
	switch s {
	case BriefDraft, BriefApproved, BriefRejected, BriefSuperseded:
		return true
	}
	return false
}

// CanRegenerate reports whether a brief in status s may be superseded by a
// regenerated angle. Only drafts and rejected briefs are fair game; approved
// and already-superseded briefs are frozen history.
func (s BriefStatus) CanRegenerate() bool {
	return s == BriefDraft || s == BriefRejected
}

// BriefContent is the channel-specific generated payload. Sections vary by
// channel: a YouTube brief carries a script, an Instagram brief a post and
// hashtags, a blog brief an outline.
type BriefContent struct {
	Hook        string   `json:"hook,omitempty"`
	Script      string   `json:"script,omitempty"`
	Post        string   `json:"post,omitempty"`
	Outline     []string `json:"outline,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
	CallToAction string  `json:"call_to_action,omitempty"`
	Angle       string   `json:"angle,omitempty"`
}

// Brief is a generated, versioned content package for one opportunity and
// channel. Briefs are append-only: content is never edited in place, a new
// brief supersedes the old one.
type Brief struct {
	ID                 string       `json:"id" db:"id"`
	OpportunityID      string       `json:"opportunity_id" db:"opportunity_id"`
	Channel            Channel      `json:"channel" db:"channel"`
	Status             BriefStatus  `json:"status" db:"status"`
	Content            BriefContent `json:"content"`
	Instruction        string       `json:"instruction,omitempty" db:"instruction"`
	CreatedBy          string       `json:"created_by" db:"created_by"`
	ApprovedBy         *string      `json:"approved_by,omitempty" db:"approved_by"`
	RejectedReason     *string      `json:"rejected_reason,omitempty" db:"rejected_reason"`
	SupersededByBriefID *string     `json:"superseded_by_brief_id,omitempty" db:"superseded_by_brief_id"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}
