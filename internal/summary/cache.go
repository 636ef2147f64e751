package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"neighborly/internal/ai"
	"neighborly/internal/metrics"
	"neighborly/internal/store"
)

// Cache memoizes AI summaries per content item. A summary is stored
// against the version of the text it was computed from and is stale as
// soon as the item is edited. Short content is never summarized.
//
// At most one summarization is in flight per item; concurrent callers
// for the same item wait for the winner instead of issuing duplicate
// calls. No lock is held across the summarizer call itself.
type Cache struct {
	store         store.Store
	summarizer    ai.Summarizer
	wordThreshold int

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewCache(contentStore store.Store, summarizer ai.Summarizer, wordThreshold int) *Cache {
	if wordThreshold <= 0 {
		wordThreshold = 50
	}
	return &Cache{
		store:         contentStore,
		summarizer:    summarizer,
		wordThreshold: wordThreshold,
		inflight:      make(map[string]chan struct{}),
	}
}

// Get returns the summary for item, computing and persisting it when
// the cached one is missing or stale. An empty summary with a nil
// error means the item is below the word threshold. A summarizer
// failure returns an empty summary and the error; the cache is left
// unset so the next call retries, and callers fall back to raw text.
func (c *Cache) Get(ctx context.Context, item *store.ContentItem) (string, error) {
	if len(strings.Fields(item.Text)) < c.wordThreshold {
		metrics.SummaryCacheHits.WithLabelValues("below_threshold").Inc()
		return "", nil
	}

	if item.Summary != "" && item.SummaryVersion == item.Version {
		metrics.SummaryCacheHits.WithLabelValues("hit").Inc()
		return item.Summary, nil
	}

	for {
		c.mu.Lock()
		wait, ok := c.inflight[item.ID]
		if !ok {
			done := make(chan struct{})
			c.inflight[item.ID] = done
			c.mu.Unlock()

			summary, err := c.summarize(ctx, item.ID)

			c.mu.Lock()
			delete(c.inflight, item.ID)
			close(done)
			c.mu.Unlock()

			return summary, err
		}
		c.mu.Unlock()

		// Another caller is summarizing this item; wait and re-check.
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		current, err := c.store.Get(ctx, item.ID)
		if err != nil {
			return "", err
		}
		if current.Summary != "" && current.SummaryVersion == current.Version {
			metrics.SummaryCacheHits.WithLabelValues("hit").Inc()
			return current.Summary, nil
		}
	}
}

func (c *Cache) summarize(ctx context.Context, id string) (string, error) {
	// Re-fetch so a racing edit's text wins over the snapshot we were
	// handed.
	item, err := c.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Deleted {
		return "", store.ErrNotFound
	}

	if len(strings.Fields(item.Text)) < c.wordThreshold {
		metrics.SummaryCacheHits.WithLabelValues("below_threshold").Inc()
		return "", nil
	}

	if item.Summary != "" && item.SummaryVersion == item.Version {
		metrics.SummaryCacheHits.WithLabelValues("hit").Inc()
		return item.Summary, nil
	}

	metrics.SummaryCacheHits.WithLabelValues("miss").Inc()

	summary, err := c.summarizer.Summarize(ctx, item.Text)
	if err != nil {
		metrics.SummarizerCalls.WithLabelValues("error").Inc()
		slog.Warn("summarization failed, falling back to raw text",
			"content_id", item.ID, "error", err)
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		metrics.SummarizerCalls.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("summarizer returned empty summary")
	}

	metrics.SummarizerCalls.WithLabelValues("success").Inc()

	// Persist keyed to the version we summarized; the store ignores the
	// write if a newer edit already bumped the version.
	if err := c.store.SetSummary(ctx, item.ID, summary, item.Version); err != nil {
		slog.Warn("failed to persist summary", "content_id", item.ID, "error", err)
	}

	return summary, nil
}
