// Package anomaly implements threshold-based regression detection over
// trailing 7-day windows of commerce and ads metrics. The detector is a
// stateless function: deduplication happens at the persistence layer via
// deterministic fingerprints.
package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/atlasmedia/pulse/internal/domain"
)

// DailyPoint is one day of synced Shopify metrics.
type DailyPoint struct {
	Date    time.Time `json:"date"`
	Revenue float64   `json:"revenue"`
	Orders  int       `json:"orders"`
	Refunds int       `json:"refunds"`
}

// AdsDailyPoint is one day of synced Google Ads metrics.
type AdsDailyPoint struct {
	Date        time.Time `json:"date"`
	Spend       float64   `json:"spend"`
	Clicks      int       `json:"clicks"`
	Conversions int       `json:"conversions"`
}

// Thresholds configure severity tiers. Drop thresholds are negative
// percentages; RefundRateHighAbs is an absolute rate (0.1 = 10%).
type Thresholds struct {
	MinBaseline        int
	RevenueCriticalPct float64
	RevenueHighPct     float64
	OrdersCriticalPct  float64
	OrdersHighPct      float64
	AOVMediumPct       float64
	RefundRateHighAbs  float64
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBaseline:        10,
		RevenueCriticalPct: -40,
		RevenueHighPct:     -20,
		OrdersCriticalPct:  -40,
		OrdersHighPct:      -20,
		AOVMediumPct:       -15,
		RefundRateHighAbs:  0.1,
	}
}

// Anomaly is one detected regression, carrying both the raw window values
// and business-readable framing for the alert it becomes.
type Anomaly struct {
	Type             string
	Severity         domain.AlertSeverity
	Title            string
	Description      string
	Impact           string
	CurrentValue     float64
	PreviousValue    float64
	ChangePercent    float64
	SuggestedActions []string
}

type window struct {
	revenue float64
	orders  int
	refunds int
}

// DetectShopify compares the trailing 7-day window against the 7 days
// before it. It needs at least 14 daily points and a previous-week order
// count at or above the minimum baseline; otherwise there is nothing to
// report and it returns an empty slice (not an error).
func DetectShopify(points []DailyPoint, t Thresholds) []Anomaly {
	if len(points) < 14 {
		return nil
	}

	sorted := make([]DailyPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	cur, prev := window{}, window{}
	n := len(sorted)
	for _, p := range sorted[n-7:] {
		cur.revenue += p.Revenue
		cur.orders += p.Orders
		cur.refunds += p.Refunds
	}
	for _, p := range sorted[n-14 : n-7] {
		prev.revenue += p.Revenue
		prev.orders += p.Orders
		prev.refunds += p.Refunds
	}

	// Low-volume accounts produce noisy percentage swings.
	if prev.orders < t.MinBaseline {
		return nil
	}

	var out []Anomaly

	// Revenue: the critical check short-circuits the high check.
	revChange := percentChange(cur.revenue, prev.revenue)
	if revChange <= t.RevenueCriticalPct {
		out = append(out, Anomaly{
			Type:          "revenue_crash",
			Severity:      domain.SeverityCritical,
			Title:         "Revenue crashed week over week",
			Description:   "Weekly revenue fell sharply versus the prior 7 days.",
			Impact:        "Store income is at risk; investigate immediately.",
			CurrentValue:  round2(cur.revenue),
			PreviousValue: round2(prev.revenue),
			ChangePercent: round2(revChange),
			SuggestedActions: []string{
				"Check store availability and checkout flow",
				"Review recent pricing or theme changes",
				"Compare traffic sources for the same window",
			},
		})
	} else if revChange <= t.RevenueHighPct {
		out = append(out, Anomaly{
			Type:          "revenue_drop",
			Severity:      domain.SeverityHigh,
			Title:         "Revenue dropped week over week",
			Description:   "Weekly revenue is down versus the prior 7 days.",
			Impact:        "Sustained drops compound quickly at weekly scale.",
			CurrentValue:  round2(cur.revenue),
			PreviousValue: round2(prev.revenue),
			ChangePercent: round2(revChange),
			SuggestedActions: []string{
				"Review top product performance",
				"Check ad spend and campaign delivery",
			},
		})
	}

	ordChange := percentChange(float64(cur.orders), float64(prev.orders))
	if ordChange <= t.OrdersCriticalPct {
		out = append(out, Anomaly{
			Type:          "orders_crash",
			Severity:      domain.SeverityCritical,
			Title:         "Order volume crashed week over week",
			Description:   "Weekly orders fell sharply versus the prior 7 days.",
			Impact:        "A crash this size usually means a broken funnel, not seasonality.",
			CurrentValue:  float64(cur.orders),
			PreviousValue: float64(prev.orders),
			ChangePercent: round2(ordChange),
			SuggestedActions: []string{
				"Test the checkout end to end",
				"Check payment provider status",
				"Verify tracking and analytics tags",
			},
		})
	} else if ordChange <= t.OrdersHighPct {
		out = append(out, Anomaly{
			Type:          "orders_drop",
			Severity:      domain.SeverityHigh,
			Title:         "Order volume dropped week over week",
			Description:   "Weekly orders are down versus the prior 7 days.",
			Impact:        "Fewer orders this week than the established baseline.",
			CurrentValue:  float64(cur.orders),
			PreviousValue: float64(prev.orders),
			ChangePercent: round2(ordChange),
			SuggestedActions: []string{
				"Compare conversion rate week over week",
				"Review active promotions and landing pages",
			},
		})
	}

	curAOV := aov(cur.revenue, cur.orders)
	prevAOV := aov(prev.revenue, prev.orders)
	aovChange := percentChange(curAOV, prevAOV)
	if aovChange <= t.AOVMediumPct {
		out = append(out, Anomaly{
			Type:          "aov_drop",
			Severity:      domain.SeverityMedium,
			Title:         "Average order value dropped",
			Description:   "Customers are spending less per order than last week.",
			Impact:        "Lower AOV erodes margin even at flat order volume.",
			CurrentValue:  round2(curAOV),
			PreviousValue: round2(prevAOV),
			ChangePercent: round2(aovChange),
			SuggestedActions: []string{
				"Review bundle and upsell placement",
				"Check whether a discount code is being over-applied",
			},
		})
	}

	// Refund rate uses the current window only.
	if cur.orders > 0 {
		refundRate := float64(cur.refunds) / float64(cur.orders)
		if refundRate >= t.RefundRateHighAbs {
			out = append(out, Anomaly{
				Type:          "refund_rate_high",
				Severity:      domain.SeverityHigh,
				Title:         "Refund rate is elevated",
				Description:   "Refunds this week exceed the acceptable share of orders.",
				Impact:        "High refund rates signal product or fulfillment problems.",
				CurrentValue:  round2(refundRate * 100),
				PreviousValue: round2(refundRateOf(prev) * 100),
				ChangePercent: round2(percentChange(refundRate, refundRateOf(prev))),
				SuggestedActions: []string{
					"Read recent refund reasons",
					"Check shipping delays and carrier performance",
				},
			})
		}
	}

	return out
}

// DetectGoogleAds runs the same windowed comparison over ads metrics:
// conversion drops and cost-per-acquisition spikes.
func DetectGoogleAds(points []AdsDailyPoint, t Thresholds) []Anomaly {
	if len(points) < 14 {
		return nil
	}

	sorted := make([]AdsDailyPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var curSpend, prevSpend float64
	var curConv, prevConv int
	n := len(sorted)
	for _, p := range sorted[n-7:] {
		curSpend += p.Spend
		curConv += p.Conversions
	}
	for _, p := range sorted[n-14 : n-7] {
		prevSpend += p.Spend
		prevConv += p.Conversions
	}

	if prevConv < t.MinBaseline {
		return nil
	}

	var out []Anomaly

	convChange := percentChange(float64(curConv), float64(prevConv))
	if convChange <= t.OrdersCriticalPct {
		out = append(out, Anomaly{
			Type:          "conversions_crash",
			Severity:      domain.SeverityCritical,
			Title:         "Ad conversions crashed week over week",
			Description:   "Weekly conversions fell sharply versus the prior 7 days.",
			Impact:        "Paid acquisition is not converting; budget is burning.",
			CurrentValue:  float64(curConv),
			PreviousValue: float64(prevConv),
			ChangePercent: round2(convChange),
			SuggestedActions: []string{
				"Check conversion tracking tags",
				"Review disapproved ads and policy issues",
				"Pause underperforming campaigns",
			},
		})
	} else if convChange <= t.OrdersHighPct {
		out = append(out, Anomaly{
			Type:          "conversions_drop",
			Severity:      domain.SeverityHigh,
			Title:         "Ad conversions dropped week over week",
			Description:   "Weekly conversions are down versus the prior 7 days.",
			Impact:        "Acquisition efficiency is slipping.",
			CurrentValue:  float64(curConv),
			PreviousValue: float64(prevConv),
			ChangePercent: round2(convChange),
			SuggestedActions: []string{
				"Compare search impression share week over week",
				"Review bid strategy changes",
			},
		})
	}

	curCPA := aov(curSpend, curConv)
	prevCPA := aov(prevSpend, prevConv)
	cpaChange := percentChange(curCPA, prevCPA)
	// CPA moves in the opposite direction: an increase is bad.
	if prevCPA > 0 && cpaChange >= -t.AOVMediumPct {
		out = append(out, Anomaly{
			Type:          "cpa_spike",
			Severity:      domain.SeverityMedium,
			Title:         "Cost per acquisition spiked",
			Description:   "Each conversion costs noticeably more than last week.",
			Impact:        "Rising CPA shrinks return on ad spend.",
			CurrentValue:  round2(curCPA),
			PreviousValue: round2(prevCPA),
			ChangePercent: round2(cpaChange),
			SuggestedActions: []string{
				"Review keyword-level CPC changes",
				"Tighten audience targeting",
			},
		})
	}

	return out
}

// percentChange returns the change from prev to cur in percent.
// A zero baseline yields 0 rather than infinity.
func percentChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// aov is revenue per order; 0 when there are no orders.
func aov(revenue float64, orders int) float64 {
	if orders == 0 {
		return 0
	}
	return revenue / float64(orders)
}

func refundRateOf(w window) float64 {
	if w.orders == 0 {
		return 0
	}
	return float64(w.refunds) / float64(w.orders)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
