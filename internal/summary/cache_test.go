package summary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"neighborly/internal/store"
)

type fakeSummarizer struct {
	calls   atomic.Int64
	fail    atomic.Bool
	empty   atomic.Bool
	entered chan struct{} // closed once a call is in flight, when set
	release chan struct{} // blocks calls until closed, when set
	once    sync.Once
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.fail.Load() {
		return "", fmt.Errorf("summarizer unavailable")
	}
	if f.empty.Load() {
		return "", nil
	}
	return "summary of: " + text[:20], nil
}

func longText() string {
	return strings.Repeat("neighborhood cleanup volunteers needed saturday morning ", 10)
}

func TestCache_ShortContentNotSummarized(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{}
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: "short post"}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := cache.Get(ctx, item)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty for short content", got)
	}
	if n := summarizer.calls.Load(); n != 0 {
		t.Errorf("summarizer calls = %d, want 0", n)
	}
}

func TestCache_MemoizesPerVersion(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{}
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: longText()}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, err := cache.Get(ctx, item)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first == "" {
		t.Fatal("Get() returned empty summary")
	}
	if n := summarizer.calls.Load(); n != 1 {
		t.Errorf("summarizer calls after first Get = %d, want 1", n)
	}

	// Second request hits the cache: exactly zero further calls.
	cached, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("store Get() error = %v", err)
	}
	if cached.SummaryVersion != 1 {
		t.Errorf("SummaryVersion = %d, want 1", cached.SummaryVersion)
	}
	second, err := cache.Get(ctx, cached)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if second != first {
		t.Errorf("cached summary = %q, want %q", second, first)
	}
	if n := summarizer.calls.Load(); n != 1 {
		t.Errorf("summarizer calls after cached Get = %d, want 1", n)
	}
}

func TestCache_EditInvalidates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{}
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: longText()}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := cache.Get(ctx, item); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Edit bumps the version; the cached summary is now stale.
	item.Text = strings.Repeat("updated community garden plans with new raised beds ", 10)
	if err := s.Update(ctx, item); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	edited, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("store Get() error = %v", err)
	}
	if _, err := cache.Get(ctx, edited); err != nil {
		t.Fatalf("Get() after edit error = %v", err)
	}

	// Exactly one recompute: not zero, not two.
	if n := summarizer.calls.Load(); n != 2 {
		t.Errorf("summarizer calls after edit = %d, want 2", n)
	}

	final, _ := s.Get(ctx, "p1")
	if final.SummaryVersion != final.Version {
		t.Errorf("SummaryVersion = %d, Version = %d, want equal", final.SummaryVersion, final.Version)
	}
}

func TestCache_FailureNotPoisoned(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{}
	summarizer.fail.Store(true)
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: longText()}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := cache.Get(ctx, item)
	if err == nil {
		t.Fatal("Get() error = nil, want summarization failure")
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty on failure", got)
	}

	// The failure must not be cached: the next call retries and wins.
	stored, _ := s.Get(ctx, "p1")
	if stored.Summary != "" {
		t.Errorf("failure poisoned the cache with %q", stored.Summary)
	}

	summarizer.fail.Store(false)
	got, err = cache.Get(ctx, stored)
	if err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if got == "" {
		t.Error("Get() after recovery returned empty summary")
	}
	if n := summarizer.calls.Load(); n != 2 {
		t.Errorf("summarizer calls = %d, want 2", n)
	}
}

func TestCache_EmptySummaryNotCached(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{}
	summarizer.empty.Store(true)
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: longText()}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := cache.Get(ctx, item); err == nil {
		t.Fatal("Get() error = nil, want error for empty summary")
	}

	stored, _ := s.Get(ctx, "p1")
	if stored.Summary != "" || stored.SummaryVersion != 0 {
		t.Errorf("empty summary was cached: %q v%d", stored.Summary, stored.SummaryVersion)
	}
}

func TestCache_SingleFlightPerItem(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	summarizer := &fakeSummarizer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := NewCache(s, summarizer, 50)

	item := &store.ContentItem{ID: "p1", Kind: store.KindPost, Text: longText()}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			got, err := cache.Get(ctx, item)
			if err != nil {
				t.Errorf("Get() error = %v", err)
			}
			results <- got
		}()
	}

	// Once one call is in flight, releasing it must satisfy both
	// callers with a single summarizer invocation.
	<-summarizer.entered
	close(summarizer.release)

	first := <-results
	second := <-results
	if first != second {
		t.Errorf("concurrent Gets disagree: %q vs %q", first, second)
	}
	if n := summarizer.calls.Load(); n != 1 {
		t.Errorf("summarizer calls = %d, want 1 for concurrent Gets", n)
	}
}
