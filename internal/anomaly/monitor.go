package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
)

// ShopifySource provides daily Shopify metrics for one shop.
type ShopifySource interface {
	DailyMetrics(ctx context.Context, shop string, days int) ([]DailyPoint, error)
}

// AdsSource provides daily Google Ads metrics for one customer account.
type AdsSource interface {
	DailyMetrics(ctx context.Context, customerID string, days int) ([]AdsDailyPoint, error)
}

// AlertWriter persists alerts with fingerprint deduplication.
type AlertWriter interface {
	InsertIfAbsent(ctx context.Context, a *domain.Alert) (bool, error)
}

// Monitor sweeps all configured accounts, runs detection, and persists new
// alerts. Re-running a sweep on the same day is idempotent: the
// per-day fingerprint deduplicates at the persistence layer.
type Monitor struct {
	shopify    ShopifySource
	ads        AdsSource
	alerts     AlertWriter
	thresholds Thresholds
	shops      []string
	customers  []string
	now        func() time.Time
}

// NewMonitor wires a monitor. Nil sources disable that side of the sweep.
func NewMonitor(shopify ShopifySource, ads AdsSource, alerts AlertWriter, t Thresholds) *Monitor {
	return &Monitor{
		shopify:    shopify,
		ads:        ads,
		alerts:     alerts,
		thresholds: t,
		now:        time.Now,
	}
}

// SetShops configures the Shopify shops to sweep.
func (m *Monitor) SetShops(shops []string) { m.shops = shops }

// SetCustomers configures the Google Ads customer IDs to sweep.
func (m *Monitor) SetCustomers(ids []string) { m.customers = ids }

// WithClock overrides the monitor's clock, mainly for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// SweepResult summarizes one full monitoring pass.
type SweepResult struct {
	EntitiesChecked int `json:"entities_checked"`
	AnomaliesFound  int `json:"anomalies_found"`
	AlertsCreated   int `json:"alerts_created"`
	Deduplicated    int `json:"deduplicated"`
}

// Sweep runs detection over every configured entity. One entity's fetch
// failure is logged and skipped, never aborting the rest of the sweep.
func (m *Monitor) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	if m.shopify != nil {
		for _, shop := range m.shops {
			result.EntitiesChecked++
			points, err := m.shopify.DailyMetrics(ctx, shop, 14)
			if err != nil {
				logger.Warn("shopify metrics fetch failed", "shop", shop, "error", err)
				continue
			}
			anomalies := DetectShopify(points, m.thresholds)
			if err := m.persist(ctx, "shopify", shop, anomalies, result); err != nil {
				return result, err
			}
		}
	}

	if m.ads != nil {
		for _, customer := range m.customers {
			result.EntitiesChecked++
			points, err := m.ads.DailyMetrics(ctx, customer, 14)
			if err != nil {
				logger.Warn("google ads metrics fetch failed", "customer", customer, "error", err)
				continue
			}
			anomalies := DetectGoogleAds(points, m.thresholds)
			if err := m.persist(ctx, "google_ads", customer, anomalies, result); err != nil {
				return result, err
			}
		}
	}

	logger.Info("anomaly sweep complete",
		"entities", result.EntitiesChecked,
		"anomalies", result.AnomaliesFound,
		"created", result.AlertsCreated,
		"deduplicated", result.Deduplicated)
	return result, nil
}

func (m *Monitor) persist(ctx context.Context, source, entityID string, anomalies []Anomaly, result *SweepResult) error {
	now := m.now().UTC()
	for _, a := range anomalies {
		result.AnomaliesFound++
		alert := &domain.Alert{
			ID:               uuid.New().String(),
			Fingerprint:      domain.AlertFingerprint(source, a.Type, entityID, now),
			Source:           source,
			AnomalyType:      a.Type,
			EntityID:         entityID,
			Severity:         a.Severity,
			Status:           domain.AlertOpen,
			Title:            a.Title,
			Description:      a.Description,
			Impact:           a.Impact,
			CurrentValue:     a.CurrentValue,
			PreviousValue:    a.PreviousValue,
			ChangePercent:    a.ChangePercent,
			SuggestedActions: a.SuggestedActions,
			CreatedAt:        now,
		}
		inserted, err := m.alerts.InsertIfAbsent(ctx, alert)
		if err != nil {
			return fmt.Errorf("persist alert %s: %w", alert.Fingerprint, err)
		}
		if inserted {
			result.AlertsCreated++
		} else {
			result.Deduplicated++
		}
	}
	return nil
}
