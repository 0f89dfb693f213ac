package domain

import (
	"math"
	"time"
)

// ExcerptMaxLen is the stored excerpt length before truncation.
const ExcerptMaxLen = 500

// SignalMetrics holds normalized engagement metrics for a signal.
type SignalMetrics struct {
	Upvotes      int     `json:"upvotes" db:"upvotes"`
	Comments     int     `json:"comments" db:"comments"`
	UpvoteRatio  float64 `json:"upvote_ratio" db:"upvote_ratio"`
	Velocity     float64 `json:"velocity" db:"velocity"`
}

// Signal is a normalized external content item (e.g. a Reddit post).
// Signals are immutable once stored; clustering and scoring only read them.
type Signal struct {
	ID                string        `json:"id" db:"id"`
	SourceType        string        `json:"source_type" db:"source_type"`
	ExternalID        string        `json:"external_id" db:"external_id"`
	URL               string        `json:"url" db:"url"`
	Title             string        `json:"title" db:"title"`
	Author            string        `json:"author" db:"author"`
	Community         string        `json:"community" db:"community"`
	Industry          string        `json:"industry" db:"industry"`
	CreatedAtExternal time.Time     `json:"created_at_external" db:"created_at_external"`
	Metrics           SignalMetrics `json:"metrics"`
	RawExcerpt        string        `json:"raw_excerpt" db:"raw_excerpt"`
	IngestedAt        time.Time     `json:"ingested_at" db:"ingested_at"`
}

// ComputeVelocity returns upvotes per hour since creation, rounded to two
// decimals. At or before the creation instant it falls back to the raw
// upvote count so we never divide by zero.
func ComputeVelocity(upvotes int, createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours <= 0 {
		return float64(upvotes)
	}
	return math.Round(float64(upvotes)/ageHours*100) / 100
}

// TruncateExcerpt normalizes a raw body to the stored excerpt form:
// at most ExcerptMaxLen characters plus an ellipsis when cut.
func TruncateExcerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= ExcerptMaxLen {
		return body
	}
	return string(runes[:ExcerptMaxLen]) + "…"
}

// AgeHours returns the signal's age relative to now, in hours.
func (s *Signal) AgeHours(now time.Time) float64 {
	return now.Sub(s.CreatedAtExternal).Hours()
}
