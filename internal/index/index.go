package index

import "context"

// Match is a single similarity search hit.
type Match struct {
	ID         string
	Version    int64
	Similarity float64
}

// Index maps content ids to their embedding at a given version and
// supports nearest-neighbor retrieval by cosine similarity. Search
// ordering is deterministic: similarity descending, then version
// descending, then id ascending.
type Index interface {
	// Upsert atomically replaces the entry for id.
	Upsert(ctx context.Context, id string, version int64, embedding []float32) error
	// Remove deletes the entry for id, if any.
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, embedding []float32, k int) ([]Match, error)
	// EmbeddedVersion reports the version the index currently holds for
	// id. Used to skip re-embedding unchanged content.
	EmbeddedVersion(ctx context.Context, id string) (int64, bool, error)
	Len(ctx context.Context) (int, error)
}
