package index

import (
	"context"
	"math"
	"sort"
	"sync"
)

type entry struct {
	version   int64
	embedding []float32
	norm      float64
}

// MemoryIndex is a brute-force in-memory cosine similarity index.
// Entries are replaced wholesale under the write lock, so a concurrent
// Search never observes a half-written vector.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]entry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, id string, version int64, embedding []float32) error {
	vec := append([]float32(nil), embedding...)

	m.mu.Lock()
	m.entries[id] = entry{version: version, embedding: vec, norm: norm(vec)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	queryNorm := norm(embedding)

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for id, e := range m.entries {
		matches = append(matches, Match{
			ID:         id,
			Version:    e.version,
			Similarity: cosine(embedding, queryNorm, e.embedding, e.norm),
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Version != matches[j].Version {
			return matches[i].Version > matches[j].Version
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryIndex) EmbeddedVersion(ctx context.Context, id string) (int64, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	return e.version, ok, nil
}

func (m *MemoryIndex) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
