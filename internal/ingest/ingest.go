// Package ingest pulls external content feeds and normalizes entries into
// stored signals. Ingestion is idempotent: an entry already seen under the
// same source and external ID is skipped, never duplicated.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/atlasmedia/pulse/internal/config"
	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/pkg/httpretry"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
)

// SignalWriter persists normalized signals. InsertIfAbsent reports whether
// the row was actually inserted, false meaning the (source_type,
// external_id) pair already existed.
type SignalWriter interface {
	InsertIfAbsent(ctx context.Context, s *domain.Signal) (bool, error)
}

// FeedResult summarizes one feed fetch.
type FeedResult struct {
	Feed     string `json:"feed"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

// Fetcher retrieves and normalizes one feed at a time. Transient upstream
// failures (429, 5xx, network errors) are retried with backoff before the
// fetch is reported failed.
type Fetcher struct {
	client *httpretry.RetryClient
	parser *gofeed.Parser
	store  SignalWriter
	now    func() time.Time
}

// NewFetcher creates a fetcher. A nil doer gets a default HTTP client with
// the given timeout.
func NewFetcher(store SignalWriter, timeout time.Duration) *Fetcher {
	httpClient := &http.Client{Timeout: timeout}
	return &Fetcher{
		client: httpretry.NewRetryClient(httpClient, 3),
		parser: gofeed.NewParser(),
		store:  store,
		now:    time.Now,
	}
}

// WithClock overrides the fetcher's clock, mainly for tests.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// FetchFeed pulls one feed, normalizes its entries, and inserts the ones
// not seen before.
func (f *Fetcher) FetchFeed(ctx context.Context, feed config.FeedConfig) (*FeedResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "pulse-ingest/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: status %d", feed.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.URL, err)
	}

	result := &FeedResult{Feed: feed.URL, Fetched: len(parsed.Items)}
	now := f.now()

	for _, item := range parsed.Items {
		signal := f.normalize(item, feed, now)
		if signal == nil {
			result.Skipped++
			continue
		}
		inserted, err := f.store.InsertIfAbsent(ctx, signal)
		if err != nil {
			return result, fmt.Errorf("insert signal %s: %w", signal.ExternalID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

// normalize maps one feed entry to the stored signal form. Entries without
// a usable identity or title are dropped.
func (f *Fetcher) normalize(item *gofeed.Item, feed config.FeedConfig, now time.Time) *domain.Signal {
	if item == nil || item.Title == "" {
		return nil
	}
	externalID := item.GUID
	if externalID == "" {
		externalID = item.Link
	}
	if externalID == "" {
		return nil
	}

	createdAt := now
	if item.PublishedParsed != nil {
		createdAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		createdAt = item.UpdatedParsed.UTC()
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return &domain.Signal{
		ID:                uuid.New().String(),
		SourceType:        feed.SourceType,
		ExternalID:        externalID,
		URL:               item.Link,
		Title:             item.Title,
		Author:            author,
		Community:         feed.Community,
		Industry:          feed.Industry,
		CreatedAtExternal: createdAt,
		RawExcerpt:        domain.TruncateExcerpt(body),
		IngestedAt:        now,
	}
}

// Runner polls all configured feeds on a fixed interval until ctx is
// canceled. One failing feed never stops the others.
type Runner struct {
	fetcher *Fetcher
	cfg     config.IngestConfig
}

// NewRunner wires a polling runner over the given fetcher.
func NewRunner(fetcher *Fetcher, cfg config.IngestConfig) *Runner {
	return &Runner{fetcher: fetcher, cfg: cfg}
}

// Run blocks, sweeping all feeds immediately and then on every interval
// tick, until ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	for _, feed := range r.cfg.Feeds {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
		result, err := r.fetcher.FetchFeed(fetchCtx, feed)
		cancel()
		if err != nil {
			logger.Warn("feed fetch failed", "feed", feed.URL, "error", err)
			continue
		}
		logger.Info("feed sweep complete",
			"feed", result.Feed,
			"fetched", result.Fetched,
			"inserted", result.Inserted,
			"skipped", result.Skipped)
	}
}
