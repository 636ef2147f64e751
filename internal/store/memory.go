package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*ContentItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*ContentItem)}
}

func (s *MemoryStore) Create(ctx context.Context, item *ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now

	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *item
	cp.Volunteers = append([]string(nil), item.Volunteers...)
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, item *ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok || existing.Deleted {
		return ErrNotFound
	}

	existing.Title = item.Title
	existing.Text = item.Text
	existing.Category = item.Category
	existing.Location = item.Location
	existing.Resolved = item.Resolved
	existing.Volunteers = append([]string(nil), item.Volunteers...)
	existing.Version++
	existing.UpdatedAt = time.Now()

	item.Version = existing.Version
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}

	item.Deleted = true
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetSummary(ctx context.Context, id, summary string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}

	// A later edit wins over an older summary.
	if item.Version != version {
		return nil
	}

	item.Summary = summary
	item.SummaryVersion = version
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*ContentItem
	for _, item := range s.items {
		if item.Deleted {
			continue
		}
		cp := *item
		cp.Volunteers = append([]string(nil), item.Volunteers...)
		items = append(items, &cp)
	}
	return items, nil
}

func (s *MemoryStore) PurgeDeleted(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, item := range s.items {
		if item.Deleted {
			delete(s.items, id)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
