package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PgvectorIndex stores embeddings in Postgres using the pgvector
// extension and delegates similarity search to the `<=>` cosine
// distance operator.
type PgvectorIndex struct {
	db *sql.DB
}

func NewPgvectorIndex(db *sql.DB) (*PgvectorIndex, error) {
	idx := &PgvectorIndex{db: db}
	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize embedding schema: %w", err)
	}
	return idx, nil
}

func (p *PgvectorIndex) initSchema() error {
	if _, err := p.db.Exec("CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS content_embeddings (
			content_id UUID PRIMARY KEY,
			version BIGINT NOT NULL,
			embedding vector(1536) NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := p.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create content_embeddings table: %w", err)
	}

	// May fail while the table is empty; ivfflat needs data to train on.
	vectorIndexSQL := "CREATE INDEX IF NOT EXISTS idx_content_embeddings_embedding ON content_embeddings USING ivfflat (embedding vector_cosine_ops);"
	if _, err := p.db.Exec(vectorIndexSQL); err != nil {
		fmt.Printf("Warning: could not create vector index yet: %v\n", err)
	}

	return nil
}

func (p *PgvectorIndex) Upsert(ctx context.Context, id string, version int64, embedding []float32) error {
	query := `
		INSERT INTO content_embeddings (content_id, version, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_id)
		DO UPDATE SET
			version = EXCLUDED.version,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`

	if _, err := p.db.ExecContext(ctx, query, id, version, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (p *PgvectorIndex) Remove(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM content_embeddings WHERE content_id = $1", id); err != nil {
		return fmt.Errorf("failed to remove embedding: %w", err)
	}
	return nil
}

func (p *PgvectorIndex) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT content_id, version, 1 - (embedding <=> $1) AS similarity
		FROM content_embeddings
		ORDER BY embedding <=> $1 ASC, version DESC, content_id ASC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Version, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

func (p *PgvectorIndex) EmbeddedVersion(ctx context.Context, id string) (int64, bool, error) {
	var version int64
	err := p.db.QueryRowContext(ctx,
		"SELECT version FROM content_embeddings WHERE content_id = $1", id).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get embedded version: %w", err)
	}
	return version, true, nil
}

func (p *PgvectorIndex) Len(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}
