package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atlasmedia/pulse/internal/pkg/httpretry"
)

// ShopifyClient pulls daily order metrics from the Shopify Admin API and
// aggregates them into daily points. One request covers the full lookback
// window; stores large enough to page past 250 orders a day are out of scope
// for this sync.
type ShopifyClient struct {
	client      *httpretry.RetryClient
	accessToken string
	apiVersion  string
	baseURL     func(shop string) string
	now         func() time.Time
}

// NewShopifyClient builds a client authenticated with an Admin API token.
func NewShopifyClient(accessToken string, timeout time.Duration) *ShopifyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShopifyClient{
		client:      httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		accessToken: accessToken,
		apiVersion:  "2024-01",
		baseURL: func(shop string) string {
			return fmt.Sprintf("https://%s.myshopify.com", shop)
		},
		now: time.Now,
	}
}

// WithBaseURL overrides shop URL construction, mainly for tests.
func (c *ShopifyClient) WithBaseURL(fn func(shop string) string) *ShopifyClient {
	c.baseURL = fn
	return c
}

type shopifyOrder struct {
	CreatedAt       time.Time `json:"created_at"`
	TotalPrice      string    `json:"total_price"`
	FinancialStatus string    `json:"financial_status"`
	CancelledAt     *string   `json:"cancelled_at"`
}

type shopifyOrdersResponse struct {
	Orders []shopifyOrder `json:"orders"`
}

// DailyMetrics fetches orders for the trailing window and buckets them by
// UTC day. Days with no orders still appear as zero points so the detector
// always sees a full window.
func (c *ShopifyClient) DailyMetrics(ctx context.Context, shop string, days int) ([]DailyPoint, error) {
	since := c.now().UTC().AddDate(0, 0, -days)

	q := url.Values{}
	q.Set("status", "any")
	q.Set("created_at_min", since.Format(time.RFC3339))
	q.Set("limit", "250")
	q.Set("fields", "created_at,total_price,financial_status,cancelled_at")

	endpoint := fmt.Sprintf("%s/admin/api/%s/orders.json?%s", c.baseURL(shop), c.apiVersion, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build shopify request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch shopify orders for %s: %w", shop, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("shopify returned %d for %s: %s", resp.StatusCode, shop, string(body))
	}

	var payload shopifyOrdersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode shopify orders: %w", err)
	}

	byDay := map[string]*DailyPoint{}
	for _, o := range payload.Orders {
		if o.CancelledAt != nil {
			continue
		}
		day := o.CreatedAt.UTC().Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		p, ok := byDay[key]
		if !ok {
			p = &DailyPoint{Date: day}
			byDay[key] = p
		}
		price, err := strconv.ParseFloat(o.TotalPrice, 64)
		if err == nil {
			p.Revenue += price
		}
		p.Orders++
		if o.FinancialStatus == "refunded" || o.FinancialStatus == "partially_refunded" {
			p.Refunds++
		}
	}

	return fillDays(byDay, since, days), nil
}

// fillDays produces a dense, chronological run of points with zeros for
// quiet days.
func fillDays(byDay map[string]*DailyPoint, since time.Time, days int) []DailyPoint {
	start := since.Truncate(24 * time.Hour)
	points := make([]DailyPoint, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		if p, ok := byDay[day.Format("2006-01-02")]; ok {
			points = append(points, *p)
		} else {
			points = append(points, DailyPoint{Date: day})
		}
	}
	return points
}

// GoogleAdsClient pulls daily campaign metrics through the Google Ads
// reporting search endpoint.
type GoogleAdsClient struct {
	client   *httpretry.RetryClient
	devToken string
	baseURL  string
	now      func() time.Time
}

// NewGoogleAdsClient builds a reporting client with a developer token.
func NewGoogleAdsClient(devToken string, timeout time.Duration) *GoogleAdsClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleAdsClient{
		client:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		devToken: devToken,
		baseURL:  "https://googleads.googleapis.com/v16",
		now:      time.Now,
	}
}

// WithBaseURL overrides the API origin, mainly for tests.
func (c *GoogleAdsClient) WithBaseURL(base string) *GoogleAdsClient {
	c.baseURL = base
	return c
}

type adsSearchRequest struct {
	Query string `json:"query"`
}

type adsSearchResponse struct {
	Results []struct {
		Segments struct {
			Date string `json:"date"`
		} `json:"segments"`
		Metrics struct {
			CostMicros  string  `json:"costMicros"`
			Clicks      string  `json:"clicks"`
			Conversions float64 `json:"conversions"`
		} `json:"metrics"`
	} `json:"results"`
}

// DailyMetrics runs a GAQL query segmented by date over the trailing window.
func (c *GoogleAdsClient) DailyMetrics(ctx context.Context, customerID string, days int) ([]AdsDailyPoint, error) {
	query := fmt.Sprintf(
		"SELECT segments.date, metrics.cost_micros, metrics.clicks, metrics.conversions "+
			"FROM customer WHERE segments.date DURING LAST_%d_DAYS", days)

	body, err := json.Marshal(adsSearchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode ads query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:search", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ads request: %w", err)
	}
	req.Header.Set("developer-token", c.devToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ads metrics for %s: %w", customerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google ads returned %d for %s: %s", resp.StatusCode, customerID, string(raw))
	}

	var payload adsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ads response: %w", err)
	}

	points := make([]AdsDailyPoint, 0, len(payload.Results))
	for _, r := range payload.Results {
		date, err := time.Parse("2006-01-02", r.Segments.Date)
		if err != nil {
			continue
		}
		costMicros, _ := strconv.ParseInt(r.Metrics.CostMicros, 10, 64)
		clicks, _ := strconv.Atoi(r.Metrics.Clicks)
		points = append(points, AdsDailyPoint{
			Date:        date,
			Spend:       float64(costMicros) / 1_000_000,
			Clicks:      clicks,
			Conversions: int(r.Metrics.Conversions),
		})
	}
	return points, nil
}
