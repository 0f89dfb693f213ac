package domain

import (
	"fmt"
	"time"
)

// AlertSeverity grades how urgent an anomaly is.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// AlertStatus enumerates alert lifecycle states. The detector only ever
// creates open alerts; resolution is a manual action.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is a persisted, deduplicated anomaly notification.
type Alert struct {
	ID               string        `json:"id" db:"id"`
	Fingerprint      string        `json:"fingerprint" db:"fingerprint"`
	Source           string        `json:"source" db:"source"`
	AnomalyType      string        `json:"anomaly_type" db:"anomaly_type"`
	EntityID         string        `json:"entity_id" db:"entity_id"`
	Severity         AlertSeverity `json:"severity" db:"severity"`
	Status           AlertStatus   `json:"status" db:"status"`
	Title            string        `json:"title" db:"title"`
	Description      string        `json:"description" db:"description"`
	Impact           string        `json:"impact" db:"impact"`
	CurrentValue     float64       `json:"current_value" db:"current_value"`
	PreviousValue    float64       `json:"previous_value" db:"previous_value"`
	ChangePercent    float64       `json:"change_percent" db:"change_percent"`
	SuggestedActions []string      `json:"suggested_actions"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// AlertFingerprint builds the deterministic dedup key scoping an alert to
// one source, anomaly type, entity, and calendar day.
func AlertFingerprint(source, anomalyType, entityID string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", source, anomalyType, entityID, day.UTC().Format("2006-01-02"))
}
