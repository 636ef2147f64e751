package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"neighborly/internal/ai"
	"neighborly/internal/index"
	"neighborly/internal/metrics"
	"neighborly/internal/store"
)

// Coordinator keeps the embedding index converged with the content
// store. Mutations mark items dirty; a single drain goroutine at a
// time re-embeds dirty items until the set is empty. Refresh is
// at-least-once and eventually consistent: a reader may briefly see a
// stale or missing embedding for freshly mutated content, but once
// mutations stop every item ends up indexed at its latest version.
//
// Only the dirty set and the in-flight flag are shared mutable state;
// neither lock is held across an embedder call.
type Coordinator struct {
	store    store.Store
	index    index.Index
	embedder ai.Embedder

	mu      sync.Mutex
	dirty   map[string]struct{}
	running bool

	wg sync.WaitGroup
}

func NewCoordinator(contentStore store.Store, idx index.Index, embedder ai.Embedder) *Coordinator {
	return &Coordinator{
		store:    contentStore,
		index:    idx,
		embedder: embedder,
		dirty:    make(map[string]struct{}),
	}
}

// MarkDirty flags an item for re-embedding and starts a drain if none
// is running. Callers must only invoke this after their store write
// has committed.
func (c *Coordinator) MarkDirty(id string) {
	c.mu.Lock()
	c.dirty[id] = struct{}{}
	metrics.DirtyItems.Set(float64(len(c.dirty)))
	start := !c.running
	if start {
		c.running = true
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if start {
		go func() {
			defer c.wg.Done()
			c.drain(context.Background())
		}()
	}
}

// Delete removes an item from the index after its tombstone has been
// committed. Removal is final, so no version check is needed; a dirty
// mark that raced the delete resolves to a no-op in the drain loop.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", id, err)
	}
	c.updateIndexSize(ctx)
	return nil
}

// Rebuild purges tombstoned rows, marks every live item dirty, and
// drains synchronously. Used at startup and for manual refreshes.
func (c *Coordinator) Rebuild(ctx context.Context) error {
	purged, err := c.store.PurgeDeleted(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge tombstones: %w", err)
	}
	if purged > 0 {
		slog.Info("Reclaimed tombstoned content", "purged", purged)
	}

	items, err := c.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list content for rebuild: %w", err)
	}

	c.mu.Lock()
	for _, item := range items {
		c.dirty[item.ID] = struct{}{}
	}
	metrics.DirtyItems.Set(float64(len(c.dirty)))
	for c.running {
		// An async drain is in flight; let it finish, then take over.
		c.mu.Unlock()
		c.wg.Wait()
		c.mu.Lock()
	}
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	c.drain(ctx)
	return nil
}

// Wait blocks until any in-flight drain has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// drain loops until the dirty set is empty, then releases the
// in-flight flag. The release re-checks the set under the lock so a
// mark that raced the final pass is never stranded. Items whose
// refresh failed are put back dirty only on exit: they wait for the
// next trigger instead of spinning this run.
func (c *Coordinator) drain(ctx context.Context) {
	start := time.Now()
	processed := 0
	var failed []string

	for {
		c.mu.Lock()
		if len(c.dirty) == 0 {
			for _, id := range failed {
				c.dirty[id] = struct{}{}
			}
			c.running = false
			metrics.DirtyItems.Set(float64(len(c.dirty)))
			c.mu.Unlock()
			break
		}
		batch := make([]string, 0, len(c.dirty))
		for id := range c.dirty {
			batch = append(batch, id)
		}
		c.dirty = make(map[string]struct{})
		c.mu.Unlock()

		for _, id := range batch {
			if ctx.Err() != nil {
				// Shutdown mid-drain: put everything back and stop.
				c.requeue(append(batch, failed...))
				metrics.RefreshRuns.WithLabelValues("canceled").Inc()
				return
			}
			if !c.refreshOne(ctx, id) {
				failed = append(failed, id)
			}
			processed++
		}
	}

	status := "success"
	if len(failed) > 0 {
		status = "partial"
	}
	metrics.RefreshRuns.WithLabelValues(status).Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	c.updateIndexSize(ctx)

	if processed > 0 {
		slog.Debug("Refresh drain completed",
			"items", processed, "duration", time.Since(start))
	}
}

// refreshOne brings a single item's index entry up to date with the
// store and reports whether the id is settled for this run. Last
// writer wins on version: the current record is fetched fresh, and if
// an edit lands while its embedding is being computed the item is
// re-marked dirty so this run picks it up again. A false return means
// the refresh failed and the caller should leave the id for the next
// trigger.
func (c *Coordinator) refreshOne(ctx context.Context, id string) bool {
	item, err := c.store.Get(ctx, id)
	if err == store.ErrNotFound {
		// Physically gone; make sure the index agrees.
		if err := c.index.Remove(ctx, id); err != nil {
			slog.Error("Failed to remove missing item from index", "content_id", id, "error", err)
			return false
		}
		return true
	}
	if err != nil {
		slog.Error("Failed to fetch item for refresh", "content_id", id, "error", err)
		return false
	}

	if item.Deleted {
		if err := c.index.Remove(ctx, id); err != nil {
			slog.Error("Failed to remove tombstoned item from index", "content_id", id, "error", err)
			return false
		}
		return true
	}

	// Embedding is a pure function of the text, so an entry already at
	// the current version is safely skippable.
	if indexed, ok, err := c.index.EmbeddedVersion(ctx, id); err == nil && ok && indexed == item.Version {
		return true
	}

	embedding, err := c.embedder.Embed(ctx, IndexText(item))
	if err != nil {
		metrics.EmbeddingGenerations.WithLabelValues("error").Inc()
		slog.Error("Failed to embed content, leaving dirty for retry",
			"content_id", id, "version", item.Version, "error", err)
		return false
	}

	if err := c.index.Upsert(ctx, id, item.Version, embedding); err != nil {
		metrics.EmbeddingGenerations.WithLabelValues("error").Inc()
		slog.Error("Failed to upsert embedding", "content_id", id, "error", err)
		return false
	}
	metrics.EmbeddingGenerations.WithLabelValues("success").Inc()

	// Re-check after the upsert, not before. A delete can commit at any
	// point while the vector is in flight; only a read that happens
	// after the index write is guaranteed to see any tombstone whose
	// removal that write could have clobbered. Delete wins: the fresh
	// entry is torn back out. A newer version means the vector just
	// written is stale, so the id goes back on the dirty set.
	current, err := c.store.Get(ctx, id)
	if err == store.ErrNotFound {
		if err := c.index.Remove(ctx, id); err != nil {
			slog.Error("Failed to remove purged item from index", "content_id", id, "error", err)
			return false
		}
		return true
	}
	if err != nil {
		return false
	}
	if current.Deleted {
		if err := c.index.Remove(ctx, id); err != nil {
			slog.Error("Failed to remove tombstoned item from index", "content_id", id, "error", err)
			return false
		}
		return true
	}

	if current.Version != item.Version {
		c.remark(id)
	}
	return true
}

func (c *Coordinator) remark(id string) {
	c.mu.Lock()
	c.dirty[id] = struct{}{}
	metrics.DirtyItems.Set(float64(len(c.dirty)))
	c.mu.Unlock()
}

func (c *Coordinator) requeue(ids []string) {
	c.mu.Lock()
	for _, id := range ids {
		c.dirty[id] = struct{}{}
	}
	metrics.DirtyItems.Set(float64(len(c.dirty)))
	c.running = false
	c.mu.Unlock()
}

func (c *Coordinator) updateIndexSize(ctx context.Context) {
	if n, err := c.index.Len(ctx); err == nil {
		metrics.IndexedItems.Set(float64(n))
	}
}

// IndexText builds the document actually embedded for an item. Help
// request status and volunteer count are folded in so relation changes
// alter the indexed text.
func IndexText(item *store.ContentItem) string {
	var b strings.Builder
	if item.Title != "" {
		b.WriteString(item.Title)
		b.WriteString("\n")
	}
	b.WriteString(item.Text)

	switch item.Kind {
	case store.KindPost:
		if item.Category != "" {
			fmt.Fprintf(&b, "\nCategory: %s", item.Category)
		}
	case store.KindHelpRequest:
		if item.Location != "" {
			fmt.Fprintf(&b, "\nLocation: %s", item.Location)
		}
		if item.Resolved {
			b.WriteString("\nStatus: resolved")
		} else {
			fmt.Fprintf(&b, "\nStatus: open, %d volunteer(s)", len(item.Volunteers))
		}
	}

	return b.String()
}
